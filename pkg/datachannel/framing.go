// Package datachannel implements the WebRTC data channel's message framing
// and inbound dispatch: JSON text frames decode directly, binary frames
// carry a small fixed header distinguishing normal payloads from LiDAR
// point-cloud payloads, each followed by a JSON header and a
// decoder-processed binary tail.
package datachannel

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
	"github.com/ethan/go2-webrtc-driver/pkg/lidar"
)

// lidarMagic is the (u16_le, u16_le) pair at the start of a binary frame
// that marks it as LiDAR-framed rather than normally-framed.
const (
	lidarMagicWord1 = 2
	lidarMagicWord2 = 0
)

// Frame is a decoded binary data-channel frame: a JSON header plus the
// binary tail substituted into header["data"]["data"] after decoding.
type Frame struct {
	Header map[string]any
}

// isLidarFrame reports whether buf's leading 4 bytes match the LiDAR frame
// magic.
func isLidarFrame(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	w1 := binary.LittleEndian.Uint16(buf[0:2])
	w2 := binary.LittleEndian.Uint16(buf[2:4])
	return w1 == lidarMagicWord1 && w2 == lidarMagicWord2
}

// DecodeBinary parses a binary data-channel frame, dispatching to the
// normal or LiDAR layout based on its leading magic, and fills in
// header["data"]["data"] with the result of decoder.Decode on the binary
// tail.
func DecodeBinary(buf []byte, decoder lidar.Decoder) (*Frame, error) {
	if isLidarFrame(buf) {
		return decodeLidarFrame(buf[4:], decoder)
	}
	return decodeNormalFrame(buf, decoder)
}

// decodeNormalFrame parses the non-LiDAR binary layout: a u16_le header
// length at offset 0 (the same two bytes that double as the magic check),
// the JSON header starting at offset 4, and the binary tail after it.
func decodeNormalFrame(buf []byte, decoder lidar.Decoder) (*Frame, error) {
	if len(buf) < 4 {
		return nil, driverr.New(driverr.InvalidChunk, "binary frame shorter than its fixed header")
	}
	headerLen := int(binary.LittleEndian.Uint16(buf[0:2]))
	if 4+headerLen > len(buf) {
		return nil, driverr.New(driverr.InvalidChunk, "binary frame header length exceeds buffer")
	}

	jsonData := buf[4 : 4+headerLen]
	binaryData := buf[4+headerLen:]
	return decodeFrame(jsonData, binaryData, decoder)
}

// decodeLidarFrame parses the LiDAR binary layout (buf already has the
// leading 4-byte magic stripped off): a u32_le header length at offset 0,
// the JSON header starting at offset 4, and the binary tail after it.
func decodeLidarFrame(buf []byte, decoder lidar.Decoder) (*Frame, error) {
	if len(buf) < 4 {
		return nil, driverr.New(driverr.InvalidChunk, "lidar frame shorter than its fixed header")
	}
	headerLen := int(binary.LittleEndian.Uint32(buf[0:4]))
	if 4+headerLen > len(buf) {
		return nil, driverr.New(driverr.InvalidChunk, "lidar frame header length exceeds buffer")
	}

	jsonData := buf[4 : 4+headerLen]
	binaryData := buf[4+headerLen:]
	return decodeFrame(jsonData, binaryData, decoder)
}

func decodeFrame(jsonData, binaryData []byte, decoder lidar.Decoder) (*Frame, error) {
	var header map[string]any
	if err := json.Unmarshal(jsonData, &header); err != nil {
		return nil, fmt.Errorf("decode frame header: %w", err)
	}

	data, _ := header["data"].(map[string]any)
	if data == nil {
		return nil, driverr.New(driverr.InvalidChunk, "frame header missing data field")
	}

	decoded, err := decoder.Decode(binaryData, data)
	if err != nil {
		return nil, fmt.Errorf("decode frame payload: %w", err)
	}
	data["data"] = decoded

	return &Frame{Header: header}, nil
}
