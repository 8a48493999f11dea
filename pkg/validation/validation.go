// Package validation implements the data channel's post-open handshake: the
// robot sends a challenge string over the "validation" topic, the driver
// answers with an MD5-derived response, and only after the robot accepts it
// does the channel count as usable.
package validation

import (
	"github.com/ethan/go2-webrtc-driver/pkg/crypto"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
	"github.com/ethan/go2-webrtc-driver/pkg/pubsub"
)

// keyPrefix is prepended to the robot's challenge before hashing, per the
// vendor handshake.
const keyPrefix = "UnitreeGo2_"

// Publisher is the subset of pubsub.PubSub the handshake needs.
type Publisher interface {
	PublishWithoutCallback(topic string, data any, msgType string) error
}

// Validator drives the challenge/response handshake for one data channel.
type Validator struct {
	publisher Publisher
	logger    *logger.Logger

	key       string
	callbacks []func()
}

// New builds a Validator bound to publisher.
func New(publisher Publisher, log *logger.Logger) *Validator {
	if log == nil {
		log = logger.Default()
	}
	return &Validator{publisher: publisher, logger: log}
}

// OnValidated registers a callback invoked once the robot confirms the
// handshake succeeded.
func (v *Validator) OnValidated(callback func()) {
	if callback != nil {
		v.callbacks = append(v.callbacks, callback)
	}
}

// HandleResponse processes a "validation"-message's top-level "data" field:
// either the final "Validation Ok." confirmation, or a challenge string to
// answer.
func (v *Validator) HandleResponse(data string) error {
	if data == "Validation Ok." {
		v.logger.Info("data channel validation succeeded")
		for _, cb := range v.callbacks {
			cb()
		}
		return nil
	}

	v.key = data
	return v.publisher.PublishWithoutCallback("", EncryptKey(v.key), pubsub.TypeValidation)
}

// HandleErrResponse reacts to an "err"-message's top-level "info" field; if
// the robot reports that validation is still required, it re-sends the last
// challenge response.
func (v *Validator) HandleErrResponse(info string) error {
	if info != "Validation Needed." {
		return nil
	}
	return v.publisher.PublishWithoutCallback("", EncryptKey(v.key), pubsub.TypeValidation)
}

// EncryptKey derives the challenge response for key: MD5("UnitreeGo2_"+key)
// as a hex digest, re-encoded as base64.
func EncryptKey(key string) string {
	digest := crypto.MD5Hex(keyPrefix + key)
	encoded, err := crypto.HexToBase64(digest)
	if err != nil {
		// MD5 hex digests are always valid hex; this cannot fail in practice.
		return ""
	}
	return encoded
}
