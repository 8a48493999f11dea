// Package driverr defines the error taxonomy shared across the driver's
// packages: every failure a caller needs to branch on is reported as a
// Kind, wrapped around the underlying cause.
package driverr

import (
	"errors"
	"fmt"
)

// Kind classifies a driver error for caller-side handling.
type Kind string

const (
	ConfigError         Kind = "config_error"
	NoDeviceFound       Kind = "no_device_found"
	RemoteAuth          Kind = "remote_auth"
	RemoteSignaling     Kind = "remote_signaling"
	DeviceOffline       Kind = "device_offline"
	LocalSignaling      Kind = "local_signaling"
	PeerBusy            Kind = "peer_busy"
	NotOpen             Kind = "not_open"
	Timeout             Kind = "timeout"
	InvalidChunk        Kind = "invalid_chunk"
	MalformedCipherText Kind = "malformed_ciphertext"
	ConnectionClosed    Kind = "connection_closed"
)

// Error is a driver error tagged with a Kind and an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given kind wrapping err.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is a driver Error of the given kind.
func Is(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// Fatal reports whether a kind represents a condition the session manager
// should treat as unrecoverable rather than retry in place.
func Fatal(kind Kind) bool {
	switch kind {
	case ConfigError, NoDeviceFound, DeviceOffline, PeerBusy:
		return true
	default:
		return false
	}
}
