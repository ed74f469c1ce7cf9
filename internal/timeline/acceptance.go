package timeline

import (
	"sync"

	"github.com/frinder/internal/model"
)

// AcceptanceTracker определяет переходы предложений в accepted по разнице снимков.
// Хранит последний увиденный статус и множество уже сработавших id; состояние можно
// выгрузить и восстановить, чтобы переподключение подписки не приводило к повторам.
type AcceptanceTracker struct {
	mu    sync.Mutex
	last  map[string]model.DateStatus
	fired map[string]bool
}

func NewAcceptanceTracker() *AcceptanceTracker {
	return &AcceptanceTracker{
		last:  make(map[string]model.DateStatus),
		fired: make(map[string]bool),
	}
}

// Observe сравнивает снимок с предыдущим и возвращает предложения, которые впервые
// стали accepted. Предложение, уже принятое в самом первом снимке, не срабатывает.
func (a *AcceptanceTracker) Observe(reqs []model.DateRequest) []model.DateRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.DateRequest
	for _, r := range reqs {
		prev, seen := a.last[r.ID]
		a.last[r.ID] = r.Status
		if r.Status != model.DateStatusAccepted || a.fired[r.ID] {
			continue
		}
		if !seen {
			// первый снимок: празднование уже было показано в другой сессии
			a.fired[r.ID] = true
			continue
		}
		if prev != model.DateStatusAccepted {
			a.fired[r.ID] = true
			out = append(out, r)
		}
	}
	return out
}

// State: сериализуемое состояние трекера.
type State struct {
	Last  map[string]model.DateStatus `yaml:"last" json:"last"`
	Fired []string                    `yaml:"fired" json:"fired"`
}

// Export выгружает состояние.
func (a *AcceptanceTracker) Export() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := State{Last: make(map[string]model.DateStatus, len(a.last))}
	for id, s := range a.last {
		st.Last[id] = s
	}
	for id := range a.fired {
		st.Fired = append(st.Fired, id)
	}
	return st
}

// Restore загружает ранее выгруженное состояние.
func (a *AcceptanceTracker) Restore(st State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, s := range st.Last {
		a.last[id] = s
	}
	for _, id := range st.Fired {
		a.fired[id] = true
	}
}
