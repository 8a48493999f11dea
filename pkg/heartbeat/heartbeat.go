// Package heartbeat keeps the data channel's liveness signal flowing: a
// small timestamped message sent every two seconds for as long as the
// channel is open.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/logger"
	"github.com/ethan/go2-webrtc-driver/pkg/pubsub"
	"golang.org/x/time/rate"
)

const interval = 2 * time.Second

// Publisher is the subset of pubsub.PubSub the heartbeat needs.
type Publisher interface {
	PublishWithoutCallback(topic string, data any, msgType string) error
	IsOpen() bool
}

// Heartbeat paces an interval-bound "heartbeat" message over a data
// channel's pubsub layer.
type Heartbeat struct {
	publisher Publisher
	logger    *logger.Logger

	mu           sync.Mutex
	lastResponse time.Time
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// New builds a Heartbeat bound to publisher.
func New(publisher Publisher, log *logger.Logger) *Heartbeat {
	if log == nil {
		log = logger.Default()
	}
	return &Heartbeat{publisher: publisher, logger: log}
}

// Start begins sending heartbeats every two seconds until Stop is called or
// ctx is cancelled. Calling Start while already running is a no-op.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	if h.cancel != nil {
		h.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.mu.Unlock()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			if err := limiter.Wait(runCtx); err != nil {
				return
			}
			h.send()
		}
	}()
}

// Stop halts the heartbeat loop and waits for it to exit.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		h.wg.Wait()
	}
}

func (h *Heartbeat) send() {
	if !h.publisher.IsOpen() {
		return
	}
	now := time.Now()
	data := map[string]any{
		"timeInStr": now.Format("2006-01-02 15:04:05"),
		"timeInNum": now.Unix(),
	}
	if err := h.publisher.PublishWithoutCallback("", data, pubsub.TypeHeartbeat); err != nil {
		h.logger.DebugHeartbeat("failed to send heartbeat", "error", err)
	}
}

// HandleResponse records that a heartbeat reply was received.
func (h *Heartbeat) HandleResponse() {
	h.mu.Lock()
	h.lastResponse = time.Now()
	h.mu.Unlock()
	h.logger.DebugHeartbeat("heartbeat response received")
}

// LastResponse returns the time of the most recent heartbeat reply, or the
// zero time if none has been received yet.
func (h *Heartbeat) LastResponse() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastResponse
}
