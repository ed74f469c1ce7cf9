// Package typing: сигнал «собеседник печатает» со стороны клиента:
// запись true на каждое нажатие, автоматический сброс после паузы, немедленный сброс при отправке и уходе.
package typing

import (
	"context"
	"sync"
	"time"

	"github.com/frinder/internal/logger"
)

// Inactivity: пауза, после которой флаг сбрасывается сам.
const Inactivity = 3 * time.Second

const writeTimeout = 5 * time.Second

// Writer записывает флаг в бэкенд.
type Writer interface {
	SetTyping(ctx context.Context, matchID string, typing bool) error
}

// Signal принадлежит одному открытому разговору.
type Signal struct {
	w       Writer
	matchID string
	delay   time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool
}

func New(w Writer, matchID string, delay time.Duration) *Signal {
	if delay <= 0 {
		delay = Inactivity
	}
	return &Signal{w: w, matchID: matchID, delay: delay}
}

// Keystroke пишет typing=true и перезапускает таймер неактивности.
func (s *Signal) Keystroke(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() { s.expire(gen) })
	s.mu.Unlock()

	s.write(ctx, true)
}

func (s *Signal) expire(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	s.write(ctx, false)
}

// Stop сбрасывает флаг немедленно и безусловно (отправка сообщения), отменяя таймер.
func (s *Signal) Stop(ctx context.Context) {
	s.mu.Lock()
	s.cancelTimer()
	s.mu.Unlock()
	s.write(ctx, false)
}

// Close: Stop при уходе из разговора; повторные вызовы ничего не делают.
func (s *Signal) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelTimer()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	s.write(ctx, false)
}

// cancelTimer вызывается под mu.
func (s *Signal) cancelTimer() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// write работает по принципу best effort, ошибки только логируются.
func (s *Signal) write(ctx context.Context, typing bool) {
	if err := s.w.SetTyping(ctx, s.matchID, typing); err != nil {
		logger.Errorf("typing write match=%s typing=%v: %v", s.matchID, typing, err)
	}
}
