package innerreq

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/logger"
	"github.com/ethan/go2-webrtc-driver/pkg/pubsub"
	"github.com/google/uuid"
	"github.com/sigurn/crc16"
)

const (
	uploadChunkSize  = 60 * 1024
	uploadYieldEvery = 5
	uploadYieldDelay = 500 * time.Millisecond
)

var crc16Table = crc16.MakeTable(crc16.CRC16_XMODEM)

// UploadResult is the outcome of an Upload call.
type UploadResult string

const (
	UploadOK        UploadResult = "ok"
	UploadCancelled UploadResult = "cancel"
)

// Uploader pushes a file to the robot's local store in base64-encoded
// chunks, pacing itself so it doesn't starve the data channel.
type Uploader struct {
	publisher Publisher
	logger    *logger.Logger

	mu        sync.Mutex
	cancelled bool
}

// NewUploader builds an Uploader bound to publisher.
func NewUploader(publisher Publisher, log *logger.Logger) *Uploader {
	if log == nil {
		log = logger.Default()
	}
	return &Uploader{publisher: publisher, logger: log}
}

// Cancel stops the in-flight Upload call after its current chunk.
func (u *Uploader) Cancel() {
	u.mu.Lock()
	u.cancelled = true
	u.mu.Unlock()
}

func (u *Uploader) isCancelled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cancelled
}

// Upload base64-encodes data and sends it to filePath in uploadChunkSize
// chunks, sleeping briefly every few chunks so the upload doesn't monopolize
// the channel. progress, if non-nil, is called with a 0-100 percentage
// after each chunk. A diagnostic CRC-16 of the raw (pre-encoding) payload is
// attached to every chunk so the robot-side reassembly can be spot-checked.
func (u *Uploader) Upload(ctx context.Context, data []byte, filePath string, progress func(int)) (UploadResult, error) {
	u.mu.Lock()
	u.cancelled = false
	u.mu.Unlock()

	checksum := crc16.Checksum(data, crc16Table)
	encoded := base64.StdEncoding.EncodeToString(data)
	chunks := sliceIntoChunks(encoded, uploadChunkSize)
	total := len(chunks)

	for i, chunk := range chunks {
		if u.isCancelled() {
			u.logger.DebugSignaling("file upload cancelled", "file", filePath)
			return UploadCancelled, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if i%uploadYieldEvery == 0 {
			select {
			case <-time.After(uploadYieldDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		reqUUID := "upload_req_" + uuid.New().String()
		message := map[string]any{
			"req_type":            ReqPushStaticFile,
			"req_uuid":            reqUUID,
			"related_bussiness":   "uslam_final_pcd",
			"file_md5":            "null",
			"file_path":           filePath,
			"file_size_after_b64": len(encoded),
			"file_crc16":          checksum,
			"file": map[string]any{
				"chunk_index":     i + 1,
				"total_chunk_num": total,
				"chunk_data":      chunk,
				"chunk_data_size": len(chunk),
			},
		}

		if err := u.publisher.PublishWithoutCallback("", message, pubsub.TypeRTCInnerReq); err != nil {
			return "", err
		}

		if progress != nil {
			progress(int(float64(i+1) / float64(total) * 100))
		}
	}

	return UploadOK, nil
}

func sliceIntoChunks(s string, size int) []string {
	var chunks []string
	for i := 0; i < len(s); i += size {
		end := i + size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[i:end])
	}
	return chunks
}
