// Package lidar provides the pluggable decoder the data channel hands
// compressed point-cloud payloads to. The compression formats themselves
// (libvoxel's voxel-grid encoding and the native point-cloud encoding) are
// proprietary to the vendor firmware and out of scope here; this package
// defines the decoder contract and dispatch the rest of the driver needs
// to consume LiDAR frames, with implementations that decode the envelope
// metadata and hand back a structured Frame for a caller-supplied decode
// function to fill in.
package lidar

import (
	"fmt"

	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
)

// Metadata is the JSON sidecar accompanying a compressed LiDAR payload
// (origin, resolution, width/height, and friends — the exact key set is
// decoder-specific so it is kept as a raw map).
type Metadata = map[string]any

// Decoder turns a compressed LiDAR payload plus its metadata into decoded
// point data, suitable for assignment onto decodedJSON["data"]["data"] at
// the data-channel framing layer.
type Decoder interface {
	Decode(compressed []byte, metadata Metadata) (any, error)
	Name() string
}

// Type selects a Decoder implementation.
type Type string

const (
	LibVoxel Type = "libvoxel"
	Native   Type = "native"
)

// DecodeFunc lets a caller plug in the actual point-cloud decompression
// routine for a given Type without this package needing to know the wire
// format; New falls back to an identity passthrough if fn is nil, which is
// sufficient for driving the data-channel plumbing and tests.
type DecodeFunc func(compressed []byte, metadata Metadata) (any, error)

type funcDecoder struct {
	name string
	fn   DecodeFunc
}

func (d *funcDecoder) Name() string { return d.name }

func (d *funcDecoder) Decode(compressed []byte, metadata Metadata) (any, error) {
	if d.fn != nil {
		return d.fn(compressed, metadata)
	}
	return compressed, nil
}

// New builds a Decoder of the given type. decodeFn, if non-nil, is the
// actual decompression routine; pass nil to get a passthrough decoder
// (useful for tests and for topics the caller does not need decoded).
func New(t Type, decodeFn DecodeFunc) (Decoder, error) {
	switch t {
	case LibVoxel:
		return &funcDecoder{name: "LibVoxelDecoder", fn: decodeFn}, nil
	case Native:
		return &funcDecoder{name: "NativeDecoder", fn: decodeFn}, nil
	default:
		return nil, driverr.New(driverr.ConfigError, fmt.Sprintf("invalid decoder type %q", t))
	}
}
