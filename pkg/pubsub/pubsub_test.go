package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/correlator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	open bool
	sent [][]byte
}

func (f *fakeSender) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeSender) IsOpen() bool { return f.open }

func (f *fakeSender) lastMessage() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var m map[string]any
	_ = json.Unmarshal(f.sent[len(f.sent)-1], &m)
	return m
}

func TestPublish_ClosedChannelReturnsNotOpen(t *testing.T) {
	sender := &fakeSender{open: false}
	ps := New(sender, nil)

	_, err := ps.Publish(context.Background(), "rt/test", nil, "")
	assert.Error(t, err)
}

func TestPublish_ResolvesOnMatchingResponse(t *testing.T) {
	sender := &fakeSender{open: true}
	ps := New(sender, nil)

	done := make(chan *correlator.Envelope, 1)
	go func() {
		resp, err := ps.Publish(context.Background(), "rt/test", map[string]any{"uuid": "abc"}, "request")
		require.NoError(t, err)
		done <- resp
	}()

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) == 1
	}, time.Second, time.Millisecond)

	msg := sender.lastMessage()
	assert.Equal(t, "request", msg["type"])
	assert.Equal(t, "rt/test", msg["topic"])

	require.NoError(t, ps.Dispatch(&correlator.Envelope{
		Type: "request",
		Data: map[string]any{"uuid": "abc", "result": "ok"},
	}))

	select {
	case resp := <-done:
		assert.Equal(t, "ok", resp.Data["result"])
	case <-time.After(time.Second):
		t.Fatal("publish did not resolve")
	}
}

func TestPublish_ContextCancel(t *testing.T) {
	sender := &fakeSender{open: true}
	ps := New(sender, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := ps.Publish(ctx, "rt/test", map[string]any{"uuid": "never-resolves"}, "request")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishRequestNew_GeneratesIDAndEncodesParameter(t *testing.T) {
	sender := &fakeSender{open: true}
	ps := New(sender, nil)

	go func() {
		_, _ = ps.PublishRequestNew(context.Background(), "rt/api", RequestOptions{
			APIID:     1001,
			Parameter: map[string]any{"x": 1},
		})
	}()

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) == 1
	}, time.Second, time.Millisecond)

	msg := sender.lastMessage()
	data := msg["data"].(map[string]any)
	header := data["header"].(map[string]any)
	identity := header["identity"].(map[string]any)

	assert.NotEmpty(t, identity["id"])
	assert.EqualValues(t, 1001, identity["api_id"])
	assert.Equal(t, `{"x":1}`, data["parameter"])
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	sender := &fakeSender{open: true}
	ps := New(sender, nil)

	received := make(chan *correlator.Envelope, 1)
	require.NoError(t, ps.Subscribe("rt/lf/lowstate", func(e *correlator.Envelope) {
		received <- e
	}))

	msg := sender.lastMessage()
	assert.Equal(t, TypeSubscribe, msg["type"])

	require.NoError(t, ps.Dispatch(&correlator.Envelope{
		Type:  "msg",
		Topic: "rt/lf/lowstate",
		Data:  map[string]any{"battery": 80},
	}))

	select {
	case e := <-received:
		assert.EqualValues(t, 80, e.Data["battery"])
	default:
		t.Fatal("expected subscription callback to fire")
	}

	require.NoError(t, ps.Unsubscribe("rt/lf/lowstate"))
	msg = sender.lastMessage()
	assert.Equal(t, TypeUnsubscribe, msg["type"])

	require.NoError(t, ps.Dispatch(&correlator.Envelope{
		Type:  "msg",
		Topic: "rt/lf/lowstate",
		Data:  map[string]any{"battery": 79},
	}))
	select {
	case <-received:
		t.Fatal("callback should not fire after unsubscribe")
	default:
	}
}
