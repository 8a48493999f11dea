package datachannel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethan/go2-webrtc-driver/pkg/config"
	"github.com/ethan/go2-webrtc-driver/pkg/correlator"
	"github.com/ethan/go2-webrtc-driver/pkg/faults"
	"github.com/ethan/go2-webrtc-driver/pkg/heartbeat"
	"github.com/ethan/go2-webrtc-driver/pkg/innerreq"
	"github.com/ethan/go2-webrtc-driver/pkg/lidar"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
	"github.com/ethan/go2-webrtc-driver/pkg/pubsub"
	"github.com/ethan/go2-webrtc-driver/pkg/validation"
	"github.com/pion/webrtc/v4"
)

// rtcSender adapts a pion DataChannel to pubsub.Sender.
type rtcSender struct {
	dc *webrtc.DataChannel
}

func (s *rtcSender) Send(data []byte) error { return s.dc.Send(data) }
func (s *rtcSender) IsOpen() bool           { return s.dc.ReadyState() == webrtc.DataChannelStateOpen }

// Channel wires a WebRTC data channel to the driver's message-level
// handlers: pub/sub correlation, handshake validation, heartbeating,
// inner-request handling, and LiDAR/normal binary framing.
type Channel struct {
	dc      *webrtc.DataChannel
	PubSub  *pubsub.PubSub
	Valid   *validation.Validator
	Heart   *heartbeat.Heartbeat
	Inner   *innerreq.InnerReq
	decoder lidar.Decoder
	logger  *logger.Logger

	onOpen  func()
	onFault func(faults.Fault)
}

// New creates a Channel wrapping dc. The channel is not usable until its
// underlying data channel reports "open"; call OnOpen to be notified.
func New(dc *webrtc.DataChannel, method config.Method, decoder lidar.Decoder, log *logger.Logger) *Channel {
	c := newWithSender(&rtcSender{dc: dc}, method, decoder, log)
	c.dc = dc

	dc.OnOpen(func() {
		c.logger.DebugDataChannel("data channel opened")
	})
	dc.OnClose(func() {
		c.logger.DebugDataChannel("data channel closed")
		c.Heart.Stop()
		c.Inner.NetworkStatus.Stop()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.onMessage(msg)
	})

	return c
}

// newWithSender builds a Channel around an arbitrary pubsub.Sender,
// independent of any real WebRTC data channel — this is the seam the
// dispatch logic is tested through.
func newWithSender(sender pubsub.Sender, method config.Method, decoder lidar.Decoder, log *logger.Logger) *Channel {
	if log == nil {
		log = logger.Default()
	}
	ps := pubsub.New(sender, log)

	c := &Channel{
		PubSub:  ps,
		Valid:   validation.New(ps, log),
		Heart:   heartbeat.New(ps, log),
		Inner:   innerreq.New(ps, method, log),
		decoder: decoder,
		logger:  log,
	}

	c.Valid.OnValidated(func() {
		c.Heart.Start(context.Background())
		c.Inner.NetworkStatus.Start(context.Background())
		c.logger.Info("data channel validated")
		if c.onOpen != nil {
			c.onOpen()
		}
	})

	return c
}

// OnOpen registers a callback invoked once the data channel's validation
// handshake succeeds (the point at which it is actually usable for
// application traffic, not merely WebRTC-open).
func (c *Channel) OnOpen(callback func()) {
	c.onOpen = callback
}

// OnFault registers a callback invoked for each decoded fault carried by an
// "add_error"/"rm_error"/"errors" message.
func (c *Channel) OnFault(callback func(faults.Fault)) {
	c.onFault = callback
}

func (c *Channel) onMessage(msg webrtc.DataChannelMessage) {
	if len(msg.Data) == 0 {
		return
	}

	var header map[string]any
	if msg.IsString {
		if err := json.Unmarshal(msg.Data, &header); err != nil {
			c.logger.Error("failed to decode data channel message", "error", err)
			return
		}
	} else {
		frame, err := DecodeBinary(msg.Data, c.decoder)
		if err != nil {
			c.logger.Error("failed to decode binary data channel frame", "error", err)
			return
		}
		header = frame.Header
	}

	if err := c.dispatch(header); err != nil {
		c.logger.Error("failed to process data channel message", "error", err)
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func (c *Channel) dispatch(header map[string]any) error {
	msgType, _ := header["type"].(string)
	topic, _ := header["topic"].(string)

	envelope := &correlator.Envelope{
		Type:  msgType,
		Topic: topic,
		Data:  asMap(header["data"]),
		Info:  asMap(header["info"]),
	}
	if err := c.PubSub.Dispatch(envelope); err != nil {
		return err
	}

	switch msgType {
	case pubsub.TypeValidation:
		data, _ := header["data"].(string)
		return c.Valid.HandleResponse(data)
	case pubsub.TypeErr:
		info, _ := header["info"].(string)
		return c.Valid.HandleErrResponse(info)
	case pubsub.TypeHeartbeat:
		c.Heart.HandleResponse()
	case pubsub.TypeRTCInnerReq:
		if envelope.Info != nil {
			return c.Inner.HandleUnsolicited(envelope)
		}
	case pubsub.TypeAddError, pubsub.TypeRemoveError, pubsub.TypeErrors:
		return c.handleFaults(header)
	}
	return nil
}

func (c *Channel) handleFaults(header map[string]any) error {
	raw, ok := header["data"].([]any)
	if !ok {
		return fmt.Errorf("fault message data is not a list")
	}
	entries := make([][3]float64, 0, len(raw))
	for _, item := range raw {
		triple, ok := item.([]any)
		if !ok || len(triple) != 3 {
			continue
		}
		var e [3]float64
		for i, v := range triple {
			n, ok := v.(float64)
			if !ok {
				continue
			}
			e[i] = n
		}
		entries = append(entries, e)
	}

	for _, f := range faults.Decode(entries) {
		c.logger.Warn("fault reported by robot", "source", f.SourceText, "code", f.CodeText, "time", f.Time)
		if c.onFault != nil {
			c.onFault(f)
		}
	}
	return nil
}

// SwitchVideo enables or disables the video sub-channel.
func (c *Channel) SwitchVideo(on bool) error {
	return c.sendToggle(pubsub.TypeVideo, on)
}

// SwitchAudio enables or disables the audio sub-channel.
func (c *Channel) SwitchAudio(on bool) error {
	return c.sendToggle(pubsub.TypeAudio, on)
}

func (c *Channel) sendToggle(msgType string, on bool) error {
	value := "off"
	if on {
		value = "on"
	}
	return c.PubSub.PublishWithoutCallback("", value, msgType)
}
