// Package innerreq implements the data channel's "rtc_inner_req" surface:
// RTT probe replies, network-status polling, and paced file upload/download
// against the robot's local file store.
package innerreq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/config"
	"github.com/ethan/go2-webrtc-driver/pkg/correlator"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
	"github.com/ethan/go2-webrtc-driver/pkg/pubsub"
)

// Request types understood under the "rtc_inner_req" message type.
const (
	ReqPublicNetworkStatus  = "public_network_status"
	ReqPushStaticFile       = "push_static_file"
	ReqRequestStaticFile    = "request_static_file"
	ReqDisableTrafficSaving = "disable_traffic_saving"
	reqRTTProbe             = "rtt_probe_send_from_mechine"
)

// Network status classifications reported to callers.
const (
	Status4G   = "4G"
	StatusSTAT = "STA-T"
	StatusSTAL = "STA-L"
)

// Publisher is the subset of pubsub.PubSub the inner-request handlers need.
type Publisher interface {
	Publish(ctx context.Context, topic string, data any, msgType string) (*correlator.Envelope, error)
	PublishWithoutCallback(topic string, data any, msgType string) error
}

// ProbeResponder answers the robot's round-trip-time probes by echoing the
// probe info straight back.
type ProbeResponder struct {
	publisher Publisher
}

// NewProbeResponder builds a ProbeResponder bound to publisher.
func NewProbeResponder(publisher Publisher) *ProbeResponder {
	return &ProbeResponder{publisher: publisher}
}

// HandleProbe echoes info back to the robot unmodified.
func (p *ProbeResponder) HandleProbe(info map[string]any) error {
	return p.publisher.PublishWithoutCallback("", info, pubsub.TypeRTCInnerReq)
}

// NetworkStatus polls the robot's network status on a dynamic interval
// (1s normally, 0.5s while the link is still negotiating) until it
// classifies the connection, then stops.
type NetworkStatus struct {
	publisher Publisher
	method    config.Method
	logger    *logger.Logger

	mu        sync.Mutex
	status    string
	callbacks []func(string)
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewNetworkStatus builds a NetworkStatus poller for a connection using the
// given method (Remote connections report Wi-Fi as "STA-T", local ones as
// "STA-L").
func NewNetworkStatus(publisher Publisher, method config.Method, log *logger.Logger) *NetworkStatus {
	if log == nil {
		log = logger.Default()
	}
	return &NetworkStatus{publisher: publisher, method: method, logger: log}
}

// OnStatus registers a callback invoked once the connection mode is known.
func (n *NetworkStatus) OnStatus(callback func(string)) {
	if callback != nil {
		n.callbacks = append(n.callbacks, callback)
	}
}

// Status returns the last classified network status, or "" if unknown.
func (n *NetworkStatus) Status() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Start begins polling. Calling Start while already running is a no-op.
func (n *NetworkStatus) Start(ctx context.Context) {
	n.mu.Lock()
	if n.cancel != nil {
		n.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.mu.Unlock()

	n.wg.Add(1)
	go n.loop(runCtx)
}

// Stop halts polling and waits for the loop to exit.
func (n *NetworkStatus) Stop() {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
		n.wg.Wait()
	}
}

func (n *NetworkStatus) loop(ctx context.Context) {
	defer n.wg.Done()
	delay := time.Second

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			nextDelay, done := n.poll(ctx)
			if done {
				return
			}
			delay = nextDelay
			timer.Reset(delay)
		}
	}
}

// poll issues one status request and returns the delay before the next
// attempt, plus whether polling should stop.
func (n *NetworkStatus) poll(ctx context.Context) (time.Duration, bool) {
	resp, err := n.publisher.Publish(ctx, "", map[string]any{
		"req_type": ReqPublicNetworkStatus,
	}, pubsub.TypeRTCInnerReq)
	if err != nil {
		n.logger.DebugSignaling("network status request failed", "error", err)
		return time.Second, false
	}

	status, _ := getStringField(resp.Info, "status")
	return n.handleStatus(status)
}

func (n *NetworkStatus) handleStatus(status string) (time.Duration, bool) {
	switch status {
	case "Undefined", "NetworkStatus.DISCONNECTED":
		return 500 * time.Millisecond, false
	case "NetworkStatus.ON_4G_CONNECTED":
		n.setStatus(Status4G)
		return 0, true
	case "NetworkStatus.ON_WIFI_CONNECTED":
		if n.method == config.Remote {
			n.setStatus(StatusSTAT)
		} else {
			n.setStatus(StatusSTAL)
		}
		return 0, true
	default:
		return time.Second, false
	}
}

func (n *NetworkStatus) setStatus(status string) {
	n.mu.Lock()
	n.status = status
	n.mu.Unlock()
	for _, cb := range n.callbacks {
		cb(status)
	}
}

func getStringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}
