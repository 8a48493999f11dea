package innerreq

import (
	"context"

	"github.com/ethan/go2-webrtc-driver/pkg/config"
	"github.com/ethan/go2-webrtc-driver/pkg/correlator"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
	"github.com/ethan/go2-webrtc-driver/pkg/pubsub"
)

// InnerReq bundles the handlers that sit on top of the "rtc_inner_req"
// message type: RTT probe replies, network-status polling, and file
// transfer.
type InnerReq struct {
	Probe         *ProbeResponder
	NetworkStatus *NetworkStatus
	Uploader      *Uploader
	Downloader    *Downloader

	publisher Publisher
	logger    *logger.Logger
}

// New builds an InnerReq handler set bound to publisher.
func New(publisher Publisher, method config.Method, log *logger.Logger) *InnerReq {
	if log == nil {
		log = logger.Default()
	}
	return &InnerReq{
		Probe:         NewProbeResponder(publisher),
		NetworkStatus: NewNetworkStatus(publisher, method, log),
		Uploader:      NewUploader(publisher, log),
		Downloader:    NewDownloader(publisher, log),
		publisher:     publisher,
		logger:        log,
	}
}

// HandleUnsolicited dispatches an inbound "rtc_inner_req" envelope that did
// not resolve a pending waiter — currently only the robot's own RTT probe
// requests, which must be echoed back.
func (r *InnerReq) HandleUnsolicited(e *correlator.Envelope) error {
	reqType, _ := e.Info["req_type"].(string)
	if reqType != reqRTTProbe {
		return nil
	}
	return r.Probe.HandleProbe(e.Info)
}

// DisableTrafficSaving toggles the robot's traffic-saving mode, which
// otherwise throttles video/LiDAR publishing rates; disabling it is
// required before subscribing to high-bandwidth topics like point clouds.
func (r *InnerReq) DisableTrafficSaving(ctx context.Context, disable bool) (bool, error) {
	instruction := "off"
	if disable {
		instruction = "on"
	}
	resp, err := r.publisher.Publish(ctx, "", map[string]any{
		"req_type":    ReqDisableTrafficSaving,
		"instruction": instruction,
	}, pubsub.TypeRTCInnerReq)
	if err != nil {
		return false, err
	}
	execution, _ := resp.Info["execution"].(string)
	return execution == "ok", nil
}
