// Package callsession: клиентская часть аудиозвонка один-на-один.
// Сигнализация (offer/answer/ICE) идёт через записи звонка на бэкенде, медиа: напрямую между пирами.
package callsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
)

var (
	ErrMediaCapture = errors.New("callsession: не удалось захватить микрофон")
	ErrBusy         = errors.New("callsession: звонок уже идёт")
	ErrNotRinging   = errors.New("callsession: звонок не в статусе ringing")
)

// Signaler: записи звонка на бэкенде.
type Signaler interface {
	CreateCall(ctx context.Context, matchID, calleeID string, offer model.SessionDescription) (model.Call, error)
	AnswerCall(ctx context.Context, callID string, answer model.SessionDescription) error
	AddCandidate(ctx context.Context, callID string, candidate json.RawMessage) error
	SetStatus(ctx context.Context, callID string, status model.CallStatus, reason string) error
}

// TransportState: состояние соединения между пирами.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

// PeerConnection: то, что сессии нужно от WebRTC.
type PeerConnection interface {
	AddAudio(src AudioSource) error
	CreateOffer() (model.SessionDescription, error)
	// Answer применяет удалённый offer и возвращает локальный answer.
	Answer(offer model.SessionDescription) (model.SessionDescription, error)
	SetRemoteAnswer(answer model.SessionDescription) error
	AddRemoteCandidate(candidate json.RawMessage) error
	OnLocalCandidate(fn func(candidate json.RawMessage))
	OnStateChange(fn func(TransportState))
	Close() error
}

// AudioSource: захваченный микрофон. SetEnabled(false) глушит звук, не останавливая захват.
type AudioSource interface {
	ReadFrame() (frame []byte, d time.Duration, err error)
	SetEnabled(enabled bool)
	Stop()
}

type Deps struct {
	Signaler Signaler
	// Capture захватывает микрофон.
	Capture func() (AudioSource, error)
	// NewPeer создаёт соединение.
	NewPeer func() (PeerConnection, error)
}

// State: то, что видит UI.
type State struct {
	CallID   string
	MatchID  string
	Status   model.CallStatus
	Outgoing bool
	Duration time.Duration
	Muted    bool
	Speaker  bool
	Err      error
}

// Session: один звонок. Повторное использование после завершения не поддерживается.
type Session struct {
	deps     Deps
	tick     time.Duration
	onChange func(State)

	mu             sync.Mutex
	callID         string
	matchID        string
	outgoing       bool
	status         model.CallStatus
	remoteTerminal bool
	remoteApplied  bool
	remoteQueue    []json.RawMessage
	localQueue     []json.RawMessage
	pc             PeerConnection
	audio          AudioSource
	connectedAt    time.Time
	stopTicker     chan struct{}
	muted          bool
	speaker        bool
	torn           bool
	err            error
}

type Option func(*Session)

// WithTick задаёт период обновления длительности (по умолчанию 1s).
func WithTick(d time.Duration) Option {
	return func(s *Session) { s.tick = d }
}

// WithOnChange подписывает на изменения состояния. Колбэк вызывается вне блокировки.
func WithOnChange(fn func(State)) Option {
	return func(s *Session) { s.onChange = fn }
}

func New(deps Deps, opts ...Option) *Session {
	s := &Session{deps: deps, tick: time.Second}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State возвращает текущее состояние.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		CallID:   s.callID,
		MatchID:  s.matchID,
		Status:   s.status,
		Outgoing: s.outgoing,
		Muted:    s.muted,
		Speaker:  s.speaker,
		Err:      s.err,
	}
	if !s.connectedAt.IsZero() && s.status == model.CallStatusOngoing {
		st.Duration = time.Since(s.connectedAt).Truncate(time.Second)
	}
	return st
}

func (s *Session) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.State())
}

// StartOutgoing: микрофон → соединение → дорожка → offer → запись звонка со статусом ringing.
func (s *Session) StartOutgoing(ctx context.Context, matchID, calleeID string) (string, error) {
	s.mu.Lock()
	if s.status != "" {
		s.mu.Unlock()
		return "", ErrBusy
	}
	s.status = model.CallStatusRinging
	s.matchID = matchID
	s.outgoing = true
	s.mu.Unlock()
	s.notify()

	if err := s.setupMedia(); err != nil {
		s.fail(ctx, err)
		return "", err
	}
	offer, err := s.pc.CreateOffer()
	if err != nil {
		err = fmt.Errorf("callsession.StartOutgoing: offer: %w", err)
		s.fail(ctx, err)
		return "", err
	}
	call, err := s.deps.Signaler.CreateCall(ctx, matchID, calleeID, offer)
	if err != nil {
		err = fmt.Errorf("callsession.StartOutgoing: %w", err)
		s.fail(ctx, err)
		return "", err
	}

	s.mu.Lock()
	s.callID = call.ID
	pending := s.localQueue
	s.localQueue = nil
	torn := s.torn
	s.mu.Unlock()
	if torn {
		// завершили раньше, чем бэкенд вернул id: запись нужно закрыть
		s.writeTerminal(ctx, call.ID, model.CallStatusEnded, "hangup")
		return call.ID, nil
	}
	for _, c := range pending {
		s.sendCandidate(ctx, call.ID, c)
	}
	logger.Infof("callsession: исходящий звонок %s в матче %s", call.ID, matchID)
	s.notify()
	return call.ID, nil
}

// AnswerIncoming: микрофон → соединение → дорожка → удалённый offer → answer → connecting.
func (s *Session) AnswerIncoming(ctx context.Context, call model.Call) error {
	if call.Status != model.CallStatusRinging || call.Offer == nil {
		return ErrNotRinging
	}
	s.mu.Lock()
	if s.status != "" {
		s.mu.Unlock()
		return ErrBusy
	}
	s.status = model.CallStatusRinging
	s.callID = call.ID
	s.matchID = call.MatchID
	s.mu.Unlock()

	if err := s.setupMedia(); err != nil {
		s.fail(ctx, err)
		return err
	}
	answer, err := s.pc.Answer(*call.Offer)
	if err != nil {
		err = fmt.Errorf("callsession.AnswerIncoming: answer: %w", err)
		s.fail(ctx, err)
		return err
	}
	s.markRemoteApplied()

	if err := s.deps.Signaler.AnswerCall(ctx, call.ID, answer); err != nil {
		err = fmt.Errorf("callsession.AnswerIncoming: %w", err)
		s.fail(ctx, err)
		return err
	}
	s.mu.Lock()
	if s.status == model.CallStatusRinging {
		s.status = model.CallStatusConnecting
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Decline отклоняет входящий звонок без установки соединения.
func (s *Session) Decline(ctx context.Context, call model.Call) error {
	s.mu.Lock()
	if s.status == "" {
		s.status = model.CallStatusRinging
		s.callID = call.ID
		s.matchID = call.MatchID
	}
	s.mu.Unlock()
	s.teardown(ctx, model.CallStatusDeclined, "declined", true)
	return nil
}

// Hangup: завершение любой из сторон.
func (s *Session) Hangup(ctx context.Context) {
	s.teardown(ctx, model.CallStatusEnded, "hangup", true)
}

// OnRemoteCall обрабатывает обновление записи звонка с бэкенда (call_updated).
func (s *Session) OnRemoteCall(ctx context.Context, call model.Call) {
	s.mu.Lock()
	mine := call.ID != "" && call.ID == s.callID
	needAnswer := mine && s.outgoing && !s.remoteApplied && call.Answer != nil && s.pc != nil
	pc := s.pc
	s.mu.Unlock()
	if !mine {
		return
	}
	if needAnswer {
		if err := pc.SetRemoteAnswer(*call.Answer); err != nil {
			s.fail(ctx, fmt.Errorf("callsession: remote answer: %w", err))
			return
		}
		s.markRemoteApplied()
	}
	s.OnRemoteStatus(ctx, call.Status)
}

// OnRemoteStatus: терминальный статус на бэкенде закрывает сессию без повторной записи.
func (s *Session) OnRemoteStatus(ctx context.Context, status model.CallStatus) {
	if status.Terminal() {
		s.mu.Lock()
		s.remoteTerminal = true
		s.mu.Unlock()
		s.teardown(ctx, status, "", false)
		return
	}
	s.mu.Lock()
	changed := false
	if status == model.CallStatusConnecting && s.status == model.CallStatusRinging {
		s.status = status
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// OnRemoteCandidate принимает кандидата собеседника.
// До применения удалённого описания кандидаты копятся в порядке поступления.
func (s *Session) OnRemoteCandidate(candidate json.RawMessage) {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return
	}
	if !s.remoteApplied {
		s.remoteQueue = append(s.remoteQueue, candidate)
		s.mu.Unlock()
		return
	}
	pc := s.pc
	s.mu.Unlock()
	if err := pc.AddRemoteCandidate(candidate); err != nil {
		logger.Errorf("callsession: add candidate: %v", err)
	}
}

// OnTransportState: переходы соединения. connected → ongoing, обрыв → завершение.
func (s *Session) OnTransportState(ctx context.Context, st TransportState) {
	switch st {
	case TransportConnected:
		s.mu.Lock()
		if s.torn || s.status == model.CallStatusOngoing {
			s.mu.Unlock()
			return
		}
		s.status = model.CallStatusOngoing
		s.connectedAt = time.Now()
		s.stopTicker = make(chan struct{})
		go s.runTicker(s.stopTicker)
		callID := s.callID
		s.mu.Unlock()
		if callID != "" {
			if err := s.deps.Signaler.SetStatus(ctx, callID, model.CallStatusOngoing, ""); err != nil {
				logger.Errorf("callsession: mark ongoing %s: %v", callID, err)
			}
		}
		s.notify()
	case TransportDisconnected, TransportFailed:
		s.teardown(ctx, model.CallStatusEnded, "connection_lost", true)
	}
}

// SetMuted глушит исходящий звук не пересоздавая дорожку.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	if s.audio != nil {
		s.audio.SetEnabled(!muted)
	}
	s.mu.Unlock()
	s.notify()
}

// SetSpeaker: только флаг для UI.
func (s *Session) SetSpeaker(on bool) {
	s.mu.Lock()
	s.speaker = on
	s.mu.Unlock()
	s.notify()
}

func (s *Session) setupMedia() error {
	audio, err := s.deps.Capture()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaCapture, err)
	}
	pc, err := s.deps.NewPeer()
	if err != nil {
		audio.Stop()
		return fmt.Errorf("callsession: peer connection: %w", err)
	}
	s.mu.Lock()
	s.audio = audio
	s.pc = pc
	audio.SetEnabled(!s.muted)
	s.mu.Unlock()

	// ctx запроса к этому моменту может быть отменён, кандидаты живут дольше
	bg := context.Background()
	pc.OnLocalCandidate(func(c json.RawMessage) { s.onLocalCandidate(bg, c) })
	pc.OnStateChange(func(st TransportState) { s.OnTransportState(bg, st) })

	if err := pc.AddAudio(audio); err != nil {
		return fmt.Errorf("callsession: add track: %w", err)
	}
	return nil
}

// onLocalCandidate отправляет кандидата сразу; до получения id звонка: копит.
func (s *Session) onLocalCandidate(ctx context.Context, c json.RawMessage) {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return
	}
	if s.callID == "" {
		s.localQueue = append(s.localQueue, c)
		s.mu.Unlock()
		return
	}
	callID := s.callID
	s.mu.Unlock()
	s.sendCandidate(ctx, callID, c)
}

func (s *Session) sendCandidate(ctx context.Context, callID string, c json.RawMessage) {
	if err := s.deps.Signaler.AddCandidate(ctx, callID, c); err != nil {
		logger.Errorf("callsession: send candidate %s: %v", callID, err)
	}
}

// markRemoteApplied отдаёт буфер кандидатов соединению по порядку поступления.
// Флаг ставится только при пустой очереди: пришедшие во время выдачи встают в ту же очередь за старыми.
func (s *Session) markRemoteApplied() {
	for {
		s.mu.Lock()
		if s.torn {
			s.remoteQueue = nil
			s.mu.Unlock()
			return
		}
		if len(s.remoteQueue) == 0 {
			s.remoteApplied = true
			s.mu.Unlock()
			return
		}
		batch := s.remoteQueue
		s.remoteQueue = nil
		pc := s.pc
		s.mu.Unlock()
		for _, c := range batch {
			if err := pc.AddRemoteCandidate(c); err != nil {
				logger.Errorf("callsession: add buffered candidate: %v", err)
			}
		}
	}
}

func (s *Session) runTicker(stop chan struct{}) {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.notify()
		}
	}
}

func (s *Session) fail(ctx context.Context, err error) {
	logger.Errorf("callsession: %v", err)
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.teardown(ctx, model.CallStatusEnded, "error", true)
}

// teardown выполняется на любом выходе и только один раз: микрофон, соединение, таймер,
// затем терминальная запись: если бэкенд ещё не в терминальном статусе.
func (s *Session) teardown(ctx context.Context, status model.CallStatus, reason string, write bool) {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return
	}
	s.torn = true
	s.status = status
	audio, pc := s.audio, s.pc
	if s.stopTicker != nil {
		close(s.stopTicker)
		s.stopTicker = nil
	}
	s.remoteQueue = nil
	s.localQueue = nil
	callID := s.callID
	write = write && !s.remoteTerminal && callID != ""
	s.mu.Unlock()

	if audio != nil {
		audio.Stop()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			logger.Errorf("callsession: close peer: %v", err)
		}
	}
	if write {
		s.writeTerminal(ctx, callID, status, reason)
	}
	s.notify()
}

func (s *Session) writeTerminal(ctx context.Context, callID string, status model.CallStatus, reason string) {
	if err := s.deps.Signaler.SetStatus(ctx, callID, status, reason); err != nil {
		logger.Errorf("callsession: end call %s: %v", callID, err)
	}
}
