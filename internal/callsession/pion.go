package callsession

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/frinder/internal/config"
	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
)

// PionTransport: PeerConnection поверх pion/webrtc с одной Opus-дорожкой.
type PionTransport struct {
	pc   *webrtc.PeerConnection
	done chan struct{}
	once sync.Once
}

// NewPionTransport создаёт соединение с заданными STUN/TURN.
func NewPionTransport(servers []config.IceServer) (*PionTransport, error) {
	cfg := webrtc.Configuration{}
	for _, s := range servers {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("pion.NewPeerConnection: %w", err)
	}
	return &PionTransport{pc: pc, done: make(chan struct{})}, nil
}

// PionFactory: Deps.NewPeer для заданных ICE-серверов.
func PionFactory(servers []config.IceServer) func() (PeerConnection, error) {
	return func() (PeerConnection, error) {
		return NewPionTransport(servers)
	}
}

func (t *PionTransport) AddAudio(src AudioSource) error {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "frinder",
	)
	if err != nil {
		return err
	}
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return err
	}
	// RTCP читать обязательно, иначе не работают interceptors
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	go t.pump(src, track)
	return nil
}

func (t *PionTransport) pump(src AudioSource, track *webrtc.TrackLocalStaticSample) {
	for {
		select {
		case <-t.done:
			return
		default:
		}
		frame, d, err := src.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Errorf("callsession: audio source: %v", err)
			}
			return
		}
		if frame == nil {
			continue
		}
		if err := track.WriteSample(media.Sample{Data: frame, Duration: d}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			logger.Errorf("callsession: write sample: %v", err)
		}
	}
}

func (t *PionTransport) CreateOffer() (model.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return model.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return model.SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (t *PionTransport) Answer(offer model.SessionDescription) (model.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(toPion(offer)); err != nil {
		return model.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return model.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return model.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (t *PionTransport) SetRemoteAnswer(answer model.SessionDescription) error {
	return t.pc.SetRemoteDescription(toPion(answer))
}

func (t *PionTransport) AddRemoteCandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return t.pc.AddICECandidate(init)
}

func (t *PionTransport) OnLocalCandidate(fn func(candidate json.RawMessage)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			logger.Errorf("callsession: encode candidate: %v", err)
			return
		}
		fn(raw)
	})
}

func (t *PionTransport) OnStateChange(fn func(TransportState)) {
	t.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(transportState(s))
	})
}

func (t *PionTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.pc.Close()
	})
	return err
}

func transportState(s webrtc.PeerConnectionState) TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return TransportClosed
	default:
		return TransportNew
	}
}

func toPion(d model.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}

func fromPion(d webrtc.SessionDescription) model.SessionDescription {
	return model.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

// opusSilence: один кадр тишины Opus (20ms).
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const frameDuration = 20 * time.Millisecond

// SilenceSource служит источником звука для headless-клиента, отдаёт кадры тишины в реальном темпе.
// Выключенный (muted) источник кадров не отдаёт.
type SilenceSource struct {
	mu      sync.Mutex
	enabled bool
	stopped chan struct{}
	once    sync.Once
}

func NewSilenceSource() *SilenceSource {
	return &SilenceSource{enabled: true, stopped: make(chan struct{})}
}

// CaptureSilence: Deps.Capture для headless-клиента.
func CaptureSilence() (AudioSource, error) {
	return NewSilenceSource(), nil
}

func (s *SilenceSource) ReadFrame() ([]byte, time.Duration, error) {
	select {
	case <-s.stopped:
		return nil, 0, io.EOF
	case <-time.After(frameDuration):
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return nil, frameDuration, nil
	}
	return opusSilence, frameDuration, nil
}

func (s *SilenceSource) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *SilenceSource) Stop() {
	s.once.Do(func() { close(s.stopped) })
}
