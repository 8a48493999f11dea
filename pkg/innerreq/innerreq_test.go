package innerreq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/config"
	"github.com/ethan/go2-webrtc-driver/pkg/correlator"
)

type fakePublisher struct {
	mu          sync.Mutex
	sent        []map[string]any
	responses   []*correlator.Envelope
	responseIdx int
	publishErr  error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, data any, msgType string) (*correlator.Envelope, error) {
	f.mu.Lock()
	f.sent = append(f.sent, data.(map[string]any))
	idx := f.responseIdx
	f.responseIdx++
	err := f.publishErr
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakePublisher) PublishWithoutCallback(topic string, data any, msgType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data.(map[string]any))
	return nil
}

func (f *fakePublisher) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestProbeResponder_EchoesInfo(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProbeResponder(pub)

	info := map[string]any{"req_type": reqRTTProbe, "ts": 123}
	if err := p.HandleProbe(info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.sentCount() != 1 {
		t.Fatalf("expected echo to be sent")
	}
}

func TestNetworkStatus_ClassifiesRemoteWifiAsSTAT(t *testing.T) {
	pub := &fakePublisher{
		responses: []*correlator.Envelope{
			{Info: map[string]any{"status": "NetworkStatus.ON_WIFI_CONNECTED"}},
		},
	}
	ns := NewNetworkStatus(pub, config.Remote, nil)

	var got string
	done := make(chan struct{})
	ns.OnStatus(func(s string) {
		got = s
		close(done)
	})

	ns.Start(context.Background())
	defer ns.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("expected status callback to fire")
	}
	if got != StatusSTAT {
		t.Fatalf("expected STA-T, got %q", got)
	}
}

func TestNetworkStatus_ClassifiesLocalWifiAsSTAL(t *testing.T) {
	pub := &fakePublisher{
		responses: []*correlator.Envelope{
			{Info: map[string]any{"status": "NetworkStatus.ON_WIFI_CONNECTED"}},
		},
	}
	ns := NewNetworkStatus(pub, config.LocalSTA, nil)

	done := make(chan struct{})
	ns.OnStatus(func(s string) { close(done) })
	ns.Start(context.Background())
	defer ns.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("expected status callback to fire")
	}
	if ns.Status() != StatusSTAL {
		t.Fatalf("expected STA-L, got %q", ns.Status())
	}
}

func TestNetworkStatus_4GStopsPolling(t *testing.T) {
	pub := &fakePublisher{
		responses: []*correlator.Envelope{
			{Info: map[string]any{"status": "NetworkStatus.ON_4G_CONNECTED"}},
		},
	}
	ns := NewNetworkStatus(pub, config.Remote, nil)

	done := make(chan struct{})
	ns.OnStatus(func(s string) { close(done) })
	ns.Start(context.Background())
	defer ns.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("expected status callback to fire")
	}
	if ns.Status() != Status4G {
		t.Fatalf("expected 4G, got %q", ns.Status())
	}
}

func TestUploader_SplitsIntoChunksAndCanBeCancelled(t *testing.T) {
	pub := &fakePublisher{}
	u := NewUploader(pub, nil)

	data := make([]byte, 1024)
	u.Cancel()
	result, err := u.Upload(context.Background(), data, "/tmp/test.pcd", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != UploadCancelled {
		t.Fatalf("expected cancellation, got %q", result)
	}
}

func TestUploader_UploadsAllChunks(t *testing.T) {
	pub := &fakePublisher{}
	u := NewUploader(pub, nil)

	data := make([]byte, 10)
	result, err := u.Upload(context.Background(), data, "/tmp/small.pcd", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != UploadOK {
		t.Fatalf("expected ok, got %q", result)
	}
	if pub.sentCount() != 1 {
		t.Fatalf("expected a single chunk for small payload, got %d", pub.sentCount())
	}
}

func TestDownloader_CancelStopsInFlightDownload(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDownloader(pub, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Cancel()
	}()

	_, result, err := d.Download(context.Background(), "/tmp/file.pcd", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != DownloadCancelled {
		t.Fatalf("expected cancellation, got %q", result)
	}
}

func TestDownloader_DecodesBase64Payload(t *testing.T) {
	pub := &fakePublisher{
		responses: []*correlator.Envelope{
			{Info: map[string]any{
				"file": map[string]any{"data": "aGVsbG8="},
			}},
		},
	}
	d := NewDownloader(pub, nil)

	data, result, err := d.Download(context.Background(), "/tmp/file.pcd", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != DownloadOK {
		t.Fatalf("expected ok, got %q", result)
	}
	if string(data) != "hello" {
		t.Fatalf("expected decoded payload 'hello', got %q", data)
	}
}

func TestInnerReq_HandleUnsolicitedDispatchesProbe(t *testing.T) {
	pub := &fakePublisher{}
	ir := New(pub, config.LocalSTA, nil)

	err := ir.HandleUnsolicited(&correlator.Envelope{
		Type: "rtc_inner_req",
		Info: map[string]any{"req_type": reqRTTProbe, "ts": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.sentCount() != 1 {
		t.Fatal("expected probe to be echoed back")
	}
}

func TestInnerReq_HandleUnsolicitedIgnoresOtherReqTypes(t *testing.T) {
	pub := &fakePublisher{}
	ir := New(pub, config.LocalSTA, nil)

	err := ir.HandleUnsolicited(&correlator.Envelope{
		Type: "rtc_inner_req",
		Info: map[string]any{"req_type": "something_else"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.sentCount() != 0 {
		t.Fatal("unrelated req_type should not trigger a publish")
	}
}

func TestInnerReq_DisableTrafficSaving(t *testing.T) {
	pub := &fakePublisher{
		responses: []*correlator.Envelope{
			{Info: map[string]any{"execution": "ok"}},
		},
	}
	ir := New(pub, config.LocalSTA, nil)

	ok, err := ir.DisableTrafficSaving(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected success")
	}
	sent := pub.sent[0]
	if sent["instruction"] != "on" {
		t.Fatalf("expected instruction 'on', got %v", sent["instruction"])
	}
}
