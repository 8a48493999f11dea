package config_test

import (
	"testing"

	"github.com/ethan/go2-webrtc-driver/pkg/config"
	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RemoteRequiresSerial(t *testing.T) {
	_, err := config.New(config.Connection{Method: config.Remote})
	require.Error(t, err)
	assert.True(t, driverr.Is(err, driverr.ConfigError))

	conn, err := config.New(config.Connection{Method: config.Remote, Serial: "B42A0000XYZ"})
	require.NoError(t, err)
	assert.Equal(t, "B42A0000XYZ", conn.Serial)
}

func TestNew_LocalSTARequiresSerialOrIP(t *testing.T) {
	_, err := config.New(config.Connection{Method: config.LocalSTA})
	require.Error(t, err)
	assert.True(t, driverr.Is(err, driverr.ConfigError))

	conn, err := config.New(config.Connection{Method: config.LocalSTA, IP: "192.168.1.42"})
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.42", conn.IP)

	conn, err = config.New(config.Connection{Method: config.LocalSTA, Serial: "B42A0000XYZ"})
	require.NoError(t, err)
	assert.Equal(t, "B42A0000XYZ", conn.Serial)
}

func TestNew_LocalAPPinsFixedIP(t *testing.T) {
	conn, err := config.New(config.Connection{Method: config.LocalAP})
	require.NoError(t, err)
	assert.Equal(t, config.LocalAPPeerIP, conn.IP)
}

func TestParseMethod(t *testing.T) {
	cases := map[string]config.Method{
		"localap":  config.LocalAP,
		"ap":       config.LocalAP,
		"localsta": config.LocalSTA,
		"sta":      config.LocalSTA,
		"remote":   config.Remote,
		"cloud":    config.Remote,
	}
	for in, want := range cases {
		got, err := config.ParseMethod(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := config.ParseMethod("bogus")
	assert.Error(t, err)
}
