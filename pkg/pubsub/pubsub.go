// Package pubsub implements the data-channel's topic-based request/response
// surface: publish (with or without awaiting a reply), subscribe,
// unsubscribe, and the structured "publish_request_new" RPC envelope used
// for app-facing API calls.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/correlator"
	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
)

// Message types understood by the data channel, per the vendor wire
// protocol's DATA_CHANNEL_TYPE table.
const (
	TypeValidation  = "validation"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeMsg         = "msg"
	TypeRequest     = "request"
	TypeResponse    = "response"
	TypeVideo       = "vid"
	TypeAudio       = "aud"
	TypeErr         = "err"
	TypeHeartbeat   = "heartbeat"
	TypeRTCInnerReq = "rtc_inner_req"
	TypeRTCReport   = "rtc_report"
	TypeAddError    = "add_error"
	TypeRemoveError = "rm_error"
	TypeErrors      = "errors"
)

// Sender abstracts the underlying data channel transport so this package
// does not need to depend on pion directly.
type Sender interface {
	Send(data []byte) error
	IsOpen() bool
}

// envelope is the wire shape of every outbound message.
type envelope struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  any    `json:"data,omitempty"`
}

// PubSub tracks subscriptions and pending request correlators for one data
// channel.
type PubSub struct {
	sender        Sender
	correlator    *correlator.Correlator
	logger        *logger.Logger
	subscriptions map[string]func(*correlator.Envelope)
}

// New builds a PubSub bound to sender.
func New(sender Sender, log *logger.Logger) *PubSub {
	if log == nil {
		log = logger.Default()
	}
	return &PubSub{
		sender:        sender,
		correlator:    correlator.New(),
		logger:        log,
		subscriptions: make(map[string]func(*correlator.Envelope)),
	}
}

// Dispatch feeds one inbound envelope through the correlator and, if a
// subscription callback is registered for its topic, invokes it.
func (p *PubSub) Dispatch(e *correlator.Envelope) error {
	if err := p.correlator.Resolve(e); err != nil {
		return err
	}
	if cb, ok := p.subscriptions[e.Topic]; ok {
		cb(e)
	}
	return nil
}

func dataAsMap(data any) map[string]any {
	m, _ := data.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

// Publish sends a message and blocks until a correlated response arrives,
// ctx is done, or the channel is not open.
func (p *PubSub) Publish(ctx context.Context, topic string, data any, msgType string) (*correlator.Envelope, error) {
	if !p.sender.IsOpen() {
		return nil, driverr.New(driverr.NotOpen, "data channel is not open")
	}
	if msgType == "" {
		msgType = TypeMsg
	}

	identifier := ""
	if data != nil {
		identifier = correlator.IdentifierForPublish(dataAsMap(data))
	}
	waiter := p.correlator.Register(msgType, topic, identifier)

	msg := envelope{Type: msgType, Topic: topic}
	if data != nil {
		msg.Data = data
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal published message: %w", err)
	}
	if err := p.sender.Send(payload); err != nil {
		return nil, fmt.Errorf("send published message: %w", err)
	}
	p.logger.DebugDataChannel("message sent", "type", msgType, "topic", topic)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-waiter:
		return resp, nil
	}
}

// PublishWithoutCallback sends a fire-and-forget message with no response
// correlation.
func (p *PubSub) PublishWithoutCallback(topic string, data any, msgType string) error {
	if !p.sender.IsOpen() {
		return driverr.New(driverr.NotOpen, "data channel is not open")
	}
	if msgType == "" {
		msgType = TypeMsg
	}

	msg := envelope{Type: msgType, Topic: topic}
	if data != nil {
		msg.Data = data
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal published message: %w", err)
	}
	if err := p.sender.Send(payload); err != nil {
		return fmt.Errorf("send published message: %w", err)
	}
	p.logger.DebugDataChannel("message sent (no callback)", "type", msgType, "topic", topic)
	return nil
}

// RequestOptions configures PublishRequestNew.
type RequestOptions struct {
	APIID     int
	ID        int64
	Parameter any
	Priority  bool
}

// generateRequestID mirrors the original driver's generated_id formula:
// current epoch milliseconds mod 2^31, plus a 0-999 random offset.
func generateRequestID() int64 {
	return time.Now().UnixMilli()%(1<<31) + int64(rand.Intn(1000))
}

// PublishRequestNew builds and sends a structured RPC request envelope
// (header.identity.{id,api_id}, optional header.policy.priority, and a
// JSON- or string-encoded parameter), then waits for the correlated
// response.
func (p *PubSub) PublishRequestNew(ctx context.Context, topic string, opts RequestOptions) (*correlator.Envelope, error) {
	id := opts.ID
	if id == 0 {
		id = generateRequestID()
	}

	header := map[string]any{
		"identity": map[string]any{
			"id":     id,
			"api_id": opts.APIID,
		},
	}
	if opts.Priority {
		header["policy"] = map[string]any{"priority": 1}
	}

	parameter := ""
	switch v := opts.Parameter.(type) {
	case nil:
	case string:
		parameter = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal request parameter: %w", err)
		}
		parameter = string(encoded)
	}

	payload := map[string]any{
		"header":    header,
		"parameter": parameter,
	}

	return p.Publish(ctx, topic, payload, TypeRequest)
}

// Subscribe registers callback for topic and tells the robot to start
// publishing on it.
func (p *PubSub) Subscribe(topic string, callback func(*correlator.Envelope)) error {
	if !p.sender.IsOpen() {
		return driverr.New(driverr.NotOpen, "data channel is not open")
	}
	if callback != nil {
		p.subscriptions[topic] = callback
	}
	return p.PublishWithoutCallback(topic, nil, TypeSubscribe)
}

// Unsubscribe removes topic's callback and tells the robot to stop
// publishing on it.
func (p *PubSub) Unsubscribe(topic string) error {
	if !p.sender.IsOpen() {
		return driverr.New(driverr.NotOpen, "data channel is not open")
	}
	delete(p.subscriptions, topic)
	return p.PublishWithoutCallback(topic, nil, TypeUnsubscribe)
}
