// Package swipe управляет жестом карточки извне. Родитель получает Handle,
// карточка регистрирует в нём свой обработчик. Handle принадлежит экземпляру, а не процессу.
package swipe

import "sync"

type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

func (d Direction) Valid() bool { return d == Left || d == Right }

// Handle связывает того, кто запускает свайп, с тем, кто его выполняет.
type Handle struct {
	mu  sync.Mutex
	fn  func(Direction)
	gen uint64
}

// Bind регистрирует обработчик и возвращает функцию отвязки.
// Отвязка снимает только свой обработчик: если после него успели привязать другой, он остаётся.
func (h *Handle) Bind(fn func(Direction)) (unbind func()) {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.fn = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.gen == gen {
			h.fn = nil
		}
	}
}

// Trigger запускает свайп. false, если обработчик не привязан или направление неизвестно.
func (h *Handle) Trigger(dir Direction) bool {
	if !dir.Valid() {
		return false
	}
	h.mu.Lock()
	fn := h.fn
	h.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(dir)
	return true
}
