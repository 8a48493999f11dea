package correlator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_SimpleMatchByUUID(t *testing.T) {
	c := New()
	ch := c.Register("response", "", "req-123")

	err := c.Resolve(&Envelope{
		Type: "response",
		Data: map[string]any{"uuid": "req-123", "value": "ok"},
	})
	require.NoError(t, err)

	select {
	case e := <-ch:
		assert.Equal(t, "ok", e.Data["value"])
	default:
		t.Fatal("expected envelope to be delivered")
	}
}

func TestResolve_FallsBackToTypeTopicKey(t *testing.T) {
	c := New()
	ch := c.Register("heartbeat", "", "")

	err := c.Resolve(&Envelope{Type: "heartbeat", Data: map[string]any{}})
	require.NoError(t, err)

	select {
	case <-ch:
	default:
		t.Fatal("expected envelope to be delivered via type$topic fallback key")
	}
}

func TestResolve_ChunkedDataReassembly(t *testing.T) {
	c := New()
	ch := c.Register("response", "", "chunked-req")

	contentInfo := func(idx, total int) map[string]any {
		return map[string]any{
			"enable_chunking": true,
			"chunk_index":     idx,
			"total_chunk_num": total,
		}
	}

	require.NoError(t, c.Resolve(&Envelope{
		Type: "response",
		Data: map[string]any{
			"uuid":         "chunked-req",
			"content_info": contentInfo(1, 3),
			"data":         "AAA",
		},
	}))
	select {
	case <-ch:
		t.Fatal("should not resolve before final chunk")
	default:
	}

	require.NoError(t, c.Resolve(&Envelope{
		Type: "response",
		Data: map[string]any{
			"uuid":         "chunked-req",
			"content_info": contentInfo(2, 3),
			"data":         "BBB",
		},
	}))

	require.NoError(t, c.Resolve(&Envelope{
		Type: "response",
		Data: map[string]any{
			"uuid":         "chunked-req",
			"content_info": contentInfo(3, 3),
			"data":         "CCC",
		},
	}))

	select {
	case e := <-ch:
		assert.Equal(t, []byte("AAABBBCCC"), e.Data["data"])
	default:
		t.Fatal("expected envelope to be delivered after final chunk")
	}
}

func TestResolve_FileChunkReassembly(t *testing.T) {
	c := New()
	ch := c.Register("rtc_inner_req", "", "file-req")

	fileInfo := func(idx, total int, data string) map[string]any {
		return map[string]any{
			"enable_chunking": true,
			"chunk_index":     idx,
			"total_chunk_num": total,
			"data":            data,
		}
	}

	require.NoError(t, c.Resolve(&Envelope{
		Type: "rtc_inner_req",
		Info: map[string]any{
			"req_type": "request_static_file",
			"req_uuid": "file-req",
			"file":     fileInfo(1, 2, "chunk1"),
		},
	}))
	select {
	case <-ch:
		t.Fatal("should not resolve before final chunk")
	default:
	}

	require.NoError(t, c.Resolve(&Envelope{
		Type: "rtc_inner_req",
		Info: map[string]any{
			"req_type": "request_static_file",
			"req_uuid": "file-req",
			"file":     fileInfo(2, 2, "chunk2"),
		},
	}))

	select {
	case e := <-ch:
		fileInfo := e.Info["file"].(map[string]any)
		assert.Equal(t, []byte("chunk1chunk2"), fileInfo["data"])
	default:
		t.Fatal("expected envelope to be delivered after final file chunk")
	}
}

func TestResolve_ZeroTotalChunksIsInvalid(t *testing.T) {
	c := New()
	err := c.Resolve(&Envelope{
		Type: "response",
		Data: map[string]any{
			"uuid": "x",
			"content_info": map[string]any{
				"enable_chunking": true,
				"chunk_index":     1,
				"total_chunk_num": 0,
			},
		},
	})
	assert.Error(t, err)
}

func TestIdentifierForPublish_PrefersUUIDOverHeaderOverReqUUID(t *testing.T) {
	assert.Equal(t, "u1", IdentifierForPublish(map[string]any{
		"uuid":     "u1",
		"req_uuid": "r1",
	}))
	assert.Equal(t, "h1", IdentifierForPublish(map[string]any{
		"header":   map[string]any{"identity": map[string]any{"id": "h1"}},
		"req_uuid": "r1",
	}))
	assert.Equal(t, "r1", IdentifierForPublish(map[string]any{
		"req_uuid": "r1",
	}))
}
