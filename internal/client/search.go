package client

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded: результат запроса отброшен, после него начат более новый.
var ErrSuperseded = errors.New("search superseded by a newer query")

// Searcher выполняет поиск так, что новый запрос отменяет предыдущий незавершённый.
type Searcher[T any] struct {
	fetch func(ctx context.Context, query string) (T, error)

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func NewSearcher[T any](fetch func(ctx context.Context, query string) (T, error)) *Searcher[T] {
	return &Searcher[T]{fetch: fetch}
}

// Search возвращает ErrSuperseded, если пока шёл запрос, был вызван следующий Search.
func (s *Searcher[T]) Search(ctx context.Context, query string) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	res, err := s.fetch(ctx, query)

	s.mu.Lock()
	latest := seq == s.seq
	if latest {
		s.cancel = nil
	}
	s.mu.Unlock()

	if !latest {
		var zero T
		return zero, ErrSuperseded
	}
	return res, err
}

// Stop отменяет текущий запрос, если он есть.
func (s *Searcher[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}
