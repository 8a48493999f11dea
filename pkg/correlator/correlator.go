// Package correlator matches inbound data-channel envelopes back to the
// pending request that triggered them, and reassembles chunked payloads
// (both the generic "data" chunking path and the file-chunking path used
// by request_static_file) before handing the completed envelope to its
// waiter.
package correlator

import (
	"fmt"
	"sync"

	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
)

// Envelope is the decoded shape of one data-channel message, kept as
// loosely-typed maps since its fields vary by message type the same way
// the original JSON payloads do.
type Envelope struct {
	Type  string
	Topic string
	Data  map[string]any
	Info  map[string]any
}

// getNested walks a chain of map keys, returning nil if any hop is absent
// or not a map — mirroring the original driver's get_nested_field.
func getNested(m map[string]any, path ...string) any {
	var cur any = m
	for _, p := range path {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := asMap[p]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asIdentifier renders a correlation identifier to a canonical string,
// accepting either a string (uuid-style ids) or a number (the
// header.identity.id integer ids, which decode as float64 from inbound
// JSON but are still plain ints/int64s on the outgoing, pre-marshal side).
func asIdentifier(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return fmt.Sprintf("%d", int64(n))
	case int:
		return fmt.Sprintf("%d", n)
	case int64:
		return fmt.Sprintf("%d", n)
	default:
		return ""
	}
}

func messageKey(msgType, topic, identifier string) string {
	if identifier != "" {
		return identifier
	}
	return fmt.Sprintf("%s $ %s", msgType, topic)
}

// IdentifierForPublish extracts the correlation identifier a publisher
// should register a waiter under, checked in the same order the original
// driver checks when sending a request: data.uuid, then
// data.header.identity.id, then data.req_uuid.
func IdentifierForPublish(data map[string]any) string {
	if v := asString(getNested(data, "uuid")); v != "" {
		return v
	}
	if v := asIdentifier(getNested(data, "header", "identity", "id")); v != "" {
		return v
	}
	if v, ok := data["req_uuid"].(string); ok {
		return v
	}
	return ""
}

// identifierForResolve extracts the correlation identifier from an inbound
// envelope, checked in the order the original resolver checks:
// data.uuid, data.header.identity.id, info.uuid, info.req_uuid.
func identifierForResolve(e *Envelope) string {
	if v := asString(getNested(e.Data, "uuid")); v != "" {
		return v
	}
	if v := asIdentifier(getNested(e.Data, "header", "identity", "id")); v != "" {
		return v
	}
	if v := asString(getNested(e.Info, "uuid")); v != "" {
		return v
	}
	if v := asString(getNested(e.Info, "req_uuid")); v != "" {
		return v
	}
	return ""
}

// Correlator tracks pending request waiters and in-flight chunk
// reassembly state.
type Correlator struct {
	mu       sync.Mutex
	waiters  map[string][]chan *Envelope
	dataChunks map[string][][]byte
	fileChunks map[string][][]byte
}

// New builds an empty Correlator.
func New() *Correlator {
	return &Correlator{
		waiters:    make(map[string][]chan *Envelope),
		dataChunks: make(map[string][][]byte),
		fileChunks: make(map[string][][]byte),
	}
}

// Register records a waiter for the given (type, topic, identifier) key
// and returns a channel that receives the resolved envelope exactly once.
func (c *Correlator) Register(msgType, topic, identifier string) <-chan *Envelope {
	key := messageKey(msgType, topic, identifier)
	ch := make(chan *Envelope, 1)

	c.mu.Lock()
	c.waiters[key] = append(c.waiters[key], ch)
	c.mu.Unlock()

	return ch
}

// Resolve processes one inbound envelope: reassembles chunked payloads in
// place if the envelope is a chunk, and — once a message is complete —
// delivers it to every waiter registered under its correlation key.
func (c *Correlator) Resolve(e *Envelope) error {
	if e.Type == "" {
		return nil
	}

	if e.Type == "rtc_inner_req" && asString(getNested(e.Info, "req_type")) == "request_static_file" {
		return c.resolveFileChunked(e)
	}

	key := messageKey(e.Type, e.Topic, identifierForResolve(e))

	contentInfo, _ := getNested(e.Data, "content_info").(map[string]any)
	if contentInfo != nil {
		enableChunking, _ := contentInfo["enable_chunking"].(bool)
		if enableChunking {
			complete, err := c.accumulateDataChunk(key, contentInfo, e)
			if err != nil {
				return err
			}
			if !complete {
				return nil
			}
		}
	}

	c.deliver(key, e)
	return nil
}

func (c *Correlator) accumulateDataChunk(key string, contentInfo map[string]any, e *Envelope) (complete bool, err error) {
	totalChunks, totalOK := toInt(contentInfo["total_chunk_num"])
	if !totalOK || totalChunks == 0 {
		return false, driverr.New(driverr.InvalidChunk, "total number of chunks cannot be zero")
	}
	chunkIndex, idxOK := toInt(contentInfo["chunk_index"])
	if !idxOK {
		return false, driverr.New(driverr.InvalidChunk, "chunk index is missing")
	}

	var chunk []byte
	if raw, ok := e.Data["data"]; ok {
		chunk = toBytes(raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if chunkIndex < totalChunks {
		c.dataChunks[key] = append(c.dataChunks[key], chunk)
		return false, nil
	}

	c.dataChunks[key] = append(c.dataChunks[key], chunk)
	merged := mergeBuffers(c.dataChunks[key])
	delete(c.dataChunks, key)
	e.Data["data"] = merged
	return true, nil
}

func (c *Correlator) resolveFileChunked(e *Envelope) error {
	key := messageKey(e.Type, e.Topic, identifierForResolve(e))

	fileInfo, _ := getNested(e.Info, "file").(map[string]any)
	if fileInfo != nil {
		enableChunking, _ := fileInfo["enable_chunking"].(bool)
		if enableChunking {
			totalChunks, totalOK := toInt(fileInfo["total_chunk_num"])
			if !totalOK || totalChunks == 0 {
				return driverr.New(driverr.InvalidChunk, "total number of chunks cannot be zero")
			}
			chunkIndex, idxOK := toInt(fileInfo["chunk_index"])
			if !idxOK {
				return driverr.New(driverr.InvalidChunk, "chunk index is missing")
			}

			chunk := toBytes(fileInfo["data"])

			c.mu.Lock()
			c.fileChunks[key] = append(c.fileChunks[key], chunk)
			complete := chunkIndex == totalChunks
			if complete {
				merged := mergeBuffers(c.fileChunks[key])
				delete(c.fileChunks, key)
				fileInfo["data"] = merged
			}
			c.mu.Unlock()

			if !complete {
				return nil
			}
		}
	}

	c.deliver(key, e)
	return nil
}

func (c *Correlator) deliver(key string, e *Envelope) {
	c.mu.Lock()
	waiters := c.waiters[key]
	delete(c.waiters, key)
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- e
		close(ch)
	}
}

func mergeBuffers(bufs [][]byte) []byte {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	merged := make([]byte, 0, total)
	for _, b := range bufs {
		merged = append(merged, b...)
	}
	return merged
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toBytes(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		return nil
	}
}
