// Package session owns the WebRTC peer-connection lifecycle: it resolves
// how to reach a Go2 for the configured connection method, negotiates SDP
// over the right signaling transport, builds the peer connection and its
// data/audio/video tracks, and wires state-change logging and RTCP
// feedback reads over the result.
package session

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/cloudauth"
	"github.com/ethan/go2-webrtc-driver/pkg/config"
	"github.com/ethan/go2-webrtc-driver/pkg/datachannel"
	"github.com/ethan/go2-webrtc-driver/pkg/discovery"
	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
	"github.com/ethan/go2-webrtc-driver/pkg/faults"
	"github.com/ethan/go2-webrtc-driver/pkg/lidar"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
	"github.com/ethan/go2-webrtc-driver/pkg/signaling"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

const (
	discoveryTimeout     = 5 * time.Second
	gatherCompleteWindow = 10 * time.Second
	dataChannelOpenWait  = 5 * time.Second

	googleSTUNURL = "stun:stun.l.google.com:19302"
)

// Session is one peer connection to a Go2, good for the lifetime of a
// single connect/disconnect cycle.
type Session struct {
	conn    *config.Connection
	decoder lidar.Decoder
	logger  *logger.Logger

	cloud *cloudauth.Client
	local *signaling.LocalClient

	pc      *webrtc.PeerConnection
	Channel *datachannel.Channel

	audioTrack  *webrtc.TrackLocalStaticRTP
	audioSender *webrtc.RTPSender
	audioMu     sync.Mutex
	audioSeq    uint16
	audioTS     uint32
	opusPayload codecs.OpusPayloader

	token  string
	pubKey *rsa.PublicKey

	mu        sync.Mutex
	connected bool

	wg sync.WaitGroup
}

// New builds a Session for conn, which must already have passed
// config.New's validation.
func New(conn *config.Connection, decoder lidar.Decoder, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Default()
	}
	s := &Session{
		conn:    conn,
		decoder: decoder,
		logger:  log,
		local:   signaling.NewLocalClient(log),
	}
	if conn.Method == config.Remote {
		s.cloud = cloudauth.NewClient(conn.Username, conn.Password, log)
	}
	return s
}

// SetDecoder overrides the LiDAR point-cloud decoder used for inbound
// binary data channel frames. Must be called before Connect; New defaults
// to the decoder passed in, matching the vendor driver's libvoxel default.
func (s *Session) SetDecoder(decoder lidar.Decoder) {
	s.decoder = decoder
}

// IsConnected reports whether the peer connection has reached the
// "connected" state.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect resolves the robot's address for the configured method,
// negotiates SDP, and blocks until the data channel is open or ctx is
// done.
func (s *Session) Connect(ctx context.Context) error {
	s.logger.Info("webrtc connection started", "method", s.conn.Method)

	switch s.conn.Method {
	case config.Remote:
		return s.connectRemote(ctx)
	case config.LocalSTA:
		return s.connectLocalSTA(ctx)
	case config.LocalAP:
		return s.initWebRTC(ctx, nil)
	default:
		return driverr.New(driverr.ConfigError, fmt.Sprintf("unknown connection method %v", s.conn.Method))
	}
}

func (s *Session) connectRemote(ctx context.Context) error {
	pub, err := s.cloud.FetchPublicKey(ctx)
	if err != nil {
		return err
	}
	token, err := s.cloud.Token(ctx)
	if err != nil {
		return err
	}
	turnInfo, err := s.cloud.FetchTurnServerInfo(ctx, s.conn.Serial, token, pub)
	if err != nil {
		return err
	}
	s.token = token
	s.pubKey = pub
	return s.initWebRTC(ctx, turnInfo)
}

func (s *Session) connectLocalSTA(ctx context.Context) error {
	if s.conn.IP == "" && s.conn.Serial != "" {
		found, err := discovery.Scan(ctx, discoveryTimeout, s.logger)
		if err != nil && len(found) == 0 {
			return driverr.Wrap(driverr.NoDeviceFound, err, "local network discovery")
		}
		if len(found) == 0 {
			return driverr.New(driverr.NoDeviceFound, "no devices found on the network; provide an IP address instead")
		}
		ip, ok := found[s.conn.Serial]
		if !ok {
			return driverr.New(driverr.NoDeviceFound, "the provided serial number wasn't found on the network; provide an IP address instead")
		}
		s.conn.IP = ip
	}
	return s.initWebRTC(ctx, nil)
}

// buildICEServers assembles the ICE server list from TURN credentials (if
// any) plus the Google STUN fallback, validating every URI with
// stun.ParseURI before handing it to pion/webrtc.
func buildICEServers(turnInfo *cloudauth.TurnServerInfo) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if turnInfo != nil {
		if turnInfo.User == "" || turnInfo.Passwd == "" || turnInfo.Realm == "" {
			return nil, driverr.New(driverr.ConfigError, "invalid TURN server information")
		}
		if _, err := stun.ParseURI(turnInfo.Realm); err != nil {
			return nil, driverr.Wrap(driverr.ConfigError, err, "invalid TURN server URI")
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{turnInfo.Realm},
			Username:   turnInfo.User,
			Credential: turnInfo.Passwd,
		})
	}

	if _, err := stun.ParseURI(googleSTUNURL); err != nil {
		return nil, driverr.Wrap(driverr.ConfigError, err, "invalid STUN server URI")
	}
	servers = append(servers, webrtc.ICEServer{URLs: []string{googleSTUNURL}})

	return servers, nil
}

// initWebRTC builds the peer connection, creates its tracks and data
// channel, and runs the offer/answer exchange over the method-appropriate
// signaling transport.
func (s *Session) initWebRTC(ctx context.Context, turnInfo *cloudauth.TurnServerInfo) error {
	iceServers, err := buildICEServers(turnInfo)
	if err != nil {
		return err
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register default codecs: %w", err)
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return fmt.Errorf("register default interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if s.conn.Method != config.Remote {
		// LAN-only connections never need a relayed or TCP candidate;
		// restricting gathering to UDP4 keeps negotiation fast.
		se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	s.pc = pc
	s.wireStateLogging()

	if err := s.addAudioTrack(); err != nil {
		return err
	}

	dc, err := pc.CreateDataChannel("data", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	s.Channel = datachannel.New(dc, s.conn.Method, s.decoder, s.logger)

	opened := make(chan struct{})
	s.Channel.OnOpen(func() {
		close(opened)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-time.After(gatherCompleteWindow):
		return driverr.New(driverr.Timeout, "ICE gathering did not complete in time")
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, err := s.exchangeSDP(ctx, pc.LocalDescription())
	if err != nil {
		return err
	}
	if answer.SDP == "reject" {
		return driverr.New(driverr.PeerBusy, "Go2 is connected by another WebRTC client")
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(answer.Type),
		SDP:  answer.SDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	select {
	case <-opened:
		return nil
	case <-time.After(dataChannelOpenWait):
		return driverr.New(driverr.Timeout, "data channel did not open in time; check if the Go2 is switched on")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) exchangeSDP(ctx context.Context, local *webrtc.SessionDescription) (*signaling.Answer, error) {
	switch s.conn.Method {
	case config.Remote:
		offerJSON, err := json.Marshal(cloudauth.SDPEnvelope{
			ID:    "",
			SDP:   local.SDP,
			Type:  local.Type.String(),
			Token: s.token,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal remote sdp offer: %w", err)
		}
		answerJSON, err := s.cloud.SendSDP(ctx, s.conn.Serial, string(offerJSON), s.token, s.pubKey)
		if err != nil {
			return nil, err
		}
		var answer signaling.Answer
		if err := json.Unmarshal([]byte(answerJSON), &answer); err != nil {
			return nil, fmt.Errorf("decode remote sdp answer: %w", err)
		}
		return &answer, nil
	default:
		id := ""
		if s.conn.Method == config.LocalSTA {
			id = "STA_localNetwork"
		}
		return s.local.Negotiate(ctx, s.conn.IP, signaling.Offer{
			ID:   id,
			SDP:  local.SDP,
			Type: local.Type.String(),
		})
	}
}

// wireStateLogging mirrors the vendor driver's connection-state print
// statements as structured log lines, plus routes inbound media tracks to
// an RTCP reader for diagnostics.
func (s *Session) wireStateLogging() {
	s.pc.OnICEGatheringStateChange(func(state webrtc.ICEGatheringState) {
		s.logger.DebugSignaling("ice gathering state changed", "state", state.String())
	})
	s.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.logger.DebugSignaling("ice connection state changed", "state", state.String())
	})
	s.pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		s.logger.DebugSignaling("signaling state changed", "state", state.String())
	})
	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Info("peer connection state changed", "state", state.String())
		s.mu.Lock()
		s.connected = state == webrtc.PeerConnectionStateConnected
		s.mu.Unlock()
	})
	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.DebugMedia("track received", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
	})
}

// addAudioTrack creates a bidirectional Opus audio track so the host
// application can push outbound samples via PushAudioSample while also
// receiving the robot's own audio over OnTrack.
func (s *Session) addAudioTrack() error {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "go2-webrtc-driver",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	s.audioTrack = track

	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}
	s.audioSender = sender
	s.audioSeq = uint16(time.Now().UnixNano() & 0xFFFF)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readRTCP(sender, "audio")
	}()
	return nil
}

// PushAudioSample packetizes an Opus-encoded sample and writes it to the
// outbound audio track. samples is the RTP-clock duration of this sample
// (48kHz), used to advance the packet timestamp.
func (s *Session) PushAudioSample(payload []byte, samples uint32) error {
	if s.audioTrack == nil {
		return driverr.New(driverr.NotOpen, "audio track not initialized")
	}

	const mtu = 1200
	payloads := s.opusPayload.Payload(mtu, payload)

	s.audioMu.Lock()
	defer s.audioMu.Unlock()

	for i, p := range payloads {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: s.audioSeq,
				Timestamp:      s.audioTS,
				Marker:         i == len(payloads)-1,
			},
			Payload: p,
		}
		if err := s.audioTrack.WriteRTP(pkt); err != nil {
			return fmt.Errorf("write audio rtp packet: %w", err)
		}
		s.audioSeq++
	}
	s.audioTS += samples
	return nil
}

func (s *Session) readRTCP(sender *webrtc.RTPSender, kind string) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			switch pkt := packet.(type) {
			case *rtcp.PictureLossIndication:
				s.logger.DebugMedia("rtcp PLI received", "kind", kind, "media_ssrc", pkt.MediaSSRC)
			case *rtcp.FullIntraRequest:
				s.logger.DebugMedia("rtcp FIR received", "kind", kind, "media_ssrc", pkt.MediaSSRC)
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				s.logger.DebugMedia("rtcp REMB received", "kind", kind, "bitrate_bps", pkt.Bitrate)
			case *rtcp.ReceiverReport:
				s.logger.DebugMedia("rtcp RR received", "kind", kind, "reports", len(pkt.Reports))
			}
		}
	}
}

// Close tears down the peer connection.
func (s *Session) Close() error {
	if s.Channel != nil {
		s.Channel.Heart.Stop()
		s.Channel.Inner.NetworkStatus.Stop()
	}
	s.wg.Wait()
	if s.pc == nil {
		return nil
	}
	err := s.pc.Close()
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return err
}

// OnFault registers a callback invoked for each fault the robot reports
// over the data channel, decoded against the known fault table. Call this
// after Connect, once Channel has been created.
func (s *Session) OnFault(callback func(faults.Fault)) {
	if s.Channel == nil {
		return
	}
	s.Channel.OnFault(callback)
}
