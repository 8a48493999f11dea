package innerreq

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
	"github.com/ethan/go2-webrtc-driver/pkg/pubsub"
	"github.com/google/uuid"
)

// DownloadResult is the outcome of a Download call.
type DownloadResult string

const (
	DownloadOK        DownloadResult = "ok"
	DownloadCancelled DownloadResult = "cancel"
)

// Downloader requests a file from the robot's local store and reassembles
// its chunked reply (handled by the correlator's file-chunking path).
//
// Cancel is a proper method on Downloader, tied to the in-flight call's own
// context — unlike the vendor reference implementation, whose download
// canceller is a bare module-level function that never reaches the class it
// was meant to cancel.
type Downloader struct {
	publisher Publisher
	logger    *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewDownloader builds a Downloader bound to publisher.
func NewDownloader(publisher Publisher, log *logger.Logger) *Downloader {
	if log == nil {
		log = logger.Default()
	}
	return &Downloader{publisher: publisher, logger: log}
}

// Cancel aborts the in-flight Download call, if any.
func (d *Downloader) Cancel() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Download requests filePath from the robot and blocks until its
// chunked reply is fully reassembled, ctx is done, or Cancel is called.
// progress, if non-nil, is called with 100 once the download completes.
func (d *Downloader) Download(ctx context.Context, filePath string, progress func(int)) ([]byte, DownloadResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.cancel = nil
		d.mu.Unlock()
		cancel()
	}()

	reqUUID := "req_" + uuid.New().String()
	request := map[string]any{
		"req_type":          ReqRequestStaticFile,
		"req_uuid":          reqUUID,
		"related_bussiness": "uslam_final_pcd",
		"file_md5":          "null",
		"file_path":         filePath,
	}

	resp, err := d.publisher.Publish(runCtx, "", request, pubsub.TypeRTCInnerReq)
	if err != nil {
		if runCtx.Err() != nil {
			return nil, DownloadCancelled, nil
		}
		return nil, "", err
	}

	fileInfo, _ := resp.Info["file"].(map[string]any)
	if fileInfo == nil {
		return nil, "", driverr.New(driverr.InvalidChunk, "download response missing file data")
	}

	encoded, ok := fileInfo["data"].(string)
	if !ok || encoded == "" {
		if raw, ok := fileInfo["data"].([]byte); ok && len(raw) > 0 {
			encoded = string(raw)
		} else {
			return nil, "", driverr.New(driverr.InvalidChunk, "download response missing file data")
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode downloaded file: %w", err)
	}

	if progress != nil {
		progress(100)
	}
	return decoded, DownloadOK, nil
}
