package timeline

import (
	"sync"
	"time"

	"github.com/frinder/internal/model"
)

// HighlightDuration: сколько подсвечивается сообщение, к которому перешли по ответу.
const HighlightDuration = 1500 * time.Millisecond

// Highlighter разрешает ссылку ответа в позицию сообщения и временно его подсвечивает.
type Highlighter struct {
	mu       sync.Mutex
	current  string
	timer    *time.Timer
	duration time.Duration
}

func NewHighlighter(d time.Duration) *Highlighter {
	if d <= 0 {
		d = HighlightDuration
	}
	return &Highlighter{duration: d}
}

// Resolve ищет сообщение replyID в msgs. Если найдено: подсвечивает его и возвращает индекс.
func (h *Highlighter) Resolve(msgs []model.Message, replyID string) (int, bool) {
	idx := -1
	for i := range msgs {
		if msgs[i].ID == replyID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return -1, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.current = replyID
	h.timer = time.AfterFunc(h.duration, func() {
		h.mu.Lock()
		if h.current == replyID {
			h.current = ""
		}
		h.mu.Unlock()
	})
	return idx, true
}

// Current: id подсвеченного сообщения или "".
func (h *Highlighter) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Stop снимает подсветку и останавливает таймер.
func (h *Highlighter) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.current = ""
}
