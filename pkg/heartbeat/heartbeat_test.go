package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakePublisher struct {
	mu    sync.Mutex
	open  bool
	sends int
}

func (f *fakePublisher) PublishWithoutCallback(topic string, data any, msgType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return nil
}

func (f *fakePublisher) IsOpen() bool { return f.open }

func (f *fakePublisher) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func TestHeartbeat_DoesNotSendWhileClosed(t *testing.T) {
	pub := &fakePublisher{open: false}
	hb := New(pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hb.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	hb.Stop()

	if pub.sendCount() != 0 {
		t.Fatalf("expected no heartbeats while channel closed, got %d", pub.sendCount())
	}
}

func TestHeartbeat_StopHaltsLoop(t *testing.T) {
	pub := &fakePublisher{open: true}
	hb := New(pub, nil)

	hb.Start(context.Background())
	hb.Stop()

	countAfterStop := pub.sendCount()
	time.Sleep(20 * time.Millisecond)
	if pub.sendCount() != countAfterStop {
		t.Fatal("heartbeat loop should not send after Stop")
	}
}

func TestHeartbeat_HandleResponseRecordsTimestamp(t *testing.T) {
	hb := New(&fakePublisher{open: true}, nil)
	if !hb.LastResponse().IsZero() {
		t.Fatal("expected zero time before any response")
	}
	hb.HandleResponse()
	if hb.LastResponse().IsZero() {
		t.Fatal("expected LastResponse to be set")
	}
}

func TestHeartbeat_StartIsIdempotent(t *testing.T) {
	pub := &fakePublisher{open: true}
	hb := New(pub, nil)

	hb.Start(context.Background())
	hb.Start(context.Background())
	hb.Stop()
}
