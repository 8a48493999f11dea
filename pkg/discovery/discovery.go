// Package discovery implements LAN discovery of Go2 robots via UDP
// multicast: broadcast a query datagram, collect serial-to-IP replies
// until a timeout elapses.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/logger"
	"github.com/sigurn/crc8"
)

const (
	recvPort       = 10134
	multicastGroup = "231.1.1.1"
	multicastPort  = 10131
)

var crc8Table = crc8.MakeTable(crc8.CRC8)

// Beacon is one reply to a discovery query.
type Beacon struct {
	Serial string
	IP     string
}

type beaconMessage struct {
	SN string `json:"sn"`
	IP string `json:"ip,omitempty"`
}

// Scan broadcasts a discovery query on the LAN and collects replies until
// ctx is done or the given timeout elapses, whichever comes first.
func Scan(ctx context.Context, timeout time.Duration, log *logger.Logger) (map[string]string, error) {
	if log == nil {
		log = logger.Default()
	}

	group := &net.UDPAddr{IP: net.ParseIP(multicastGroup), Port: recvPort}
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("join discovery multicast group: %w", err)
	}
	defer conn.Close()

	query, err := json.Marshal(map[string]string{"name": "unitree_dapengche"})
	if err != nil {
		return nil, fmt.Errorf("marshal discovery query: %w", err)
	}

	dst := &net.UDPAddr{IP: net.ParseIP(multicastGroup), Port: multicastPort}
	sender, err := net.DialUDP("udp4", nil, dst)
	if err != nil {
		return nil, fmt.Errorf("dial discovery multicast group: %w", err)
	}
	defer sender.Close()
	if _, err := sender.Write(query); err != nil {
		return nil, fmt.Errorf("send discovery query: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	found := make(map[string]string)
	seen := make(map[byte]bool) // dedups repeated identical beacons by CRC-8 fingerprint
	buf := make([]byte, 1024)

	for {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return found, nil
			}
			return found, nil
		}

		data := buf[:n]
		fingerprint := crc8.Checksum(data, crc8Table)
		if seen[fingerprint] {
			continue
		}
		seen[fingerprint] = true

		var msg beaconMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("failed to decode discovery datagram", "from", addr.String(), "err", err)
			continue
		}
		if msg.SN == "" {
			continue
		}

		ip := msg.IP
		if ip == "" {
			ip = addr.IP.String()
		}
		found[msg.SN] = ip
		log.Info("discovered device", "serial", msg.SN, "ip", ip)
	}
}
