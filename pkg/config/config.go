// Package config holds the connection descriptor that selects how the
// driver reaches a Go2, plus optional cloud credentials loaded from a
// .env-style file.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
)

// Method selects which of the three signaling transports to use.
type Method int

const (
	// LocalAP connects directly to the robot's own access point at a
	// fixed address; no serial or IP is required.
	LocalAP Method = iota
	// LocalSTA connects over a shared Wi-Fi network the robot has joined;
	// requires either a serial number (resolved via LAN discovery) or an
	// explicit IP.
	LocalSTA
	// Remote connects via Unitree's cloud relay; requires a serial number
	// and cloud credentials.
	Remote
)

func (m Method) String() string {
	switch m {
	case LocalAP:
		return "LocalAP"
	case LocalSTA:
		return "LocalSTA"
	case Remote:
		return "Remote"
	default:
		return "Unknown"
	}
}

// LocalAPPeerIP is the fixed address of the robot's own access point.
const LocalAPPeerIP = "192.168.12.1"

// Connection describes how to reach one Go2.
type Connection struct {
	Method   Method
	Serial   string
	IP       string
	Username string
	Password string
}

// New validates a Connection against the invariants for its Method and
// returns it, or a driverr.ConfigError if the descriptor is incomplete.
func New(conn Connection) (*Connection, error) {
	switch conn.Method {
	case Remote:
		if conn.Serial == "" {
			return nil, driverr.New(driverr.ConfigError, "remote connections require a serial number")
		}
	case LocalSTA:
		if conn.Serial == "" && conn.IP == "" {
			return nil, driverr.New(driverr.ConfigError, "local STA connections require a serial number or an IP address")
		}
	case LocalAP:
		conn.IP = LocalAPPeerIP
	default:
		return nil, driverr.New(driverr.ConfigError, fmt.Sprintf("unknown connection method %v", conn.Method))
	}
	return &conn, nil
}

// CloudCredentials holds the Unitree account used to authenticate Remote
// connections.
type CloudCredentials struct {
	Email    string
	Password string
}

// Env holds everything loadable from a .env file: cloud credentials and
// defaults for an unattended CLI session.
type Env struct {
	Cloud  CloudCredentials
	Serial string
	IP     string
	Method string
}

// LoadEnv reads a .env-style KEY=value file. Unknown keys are ignored so
// the same file can carry unrelated application settings.
func LoadEnv(path string) (*Env, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer file.Close()

	env := &Env{}
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			decodedValue = value
		}

		switch key {
		case "go2_email":
			env.Cloud.Email = decodedValue
		case "go2_password":
			env.Cloud.Password = decodedValue
		case "go2_serial":
			env.Serial = decodedValue
		case "go2_ip":
			env.IP = decodedValue
		case "go2_method":
			env.Method = decodedValue
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env file: %w", err)
	}

	return env, nil
}

// ParseMethod converts a .env-style method string into a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "localap", "ap":
		return LocalAP, nil
	case "localsta", "sta", "local":
		return LocalSTA, nil
	case "remote", "cloud":
		return Remote, nil
	default:
		return 0, driverr.New(driverr.ConfigError, fmt.Sprintf("unknown connection method %q", s))
	}
}
