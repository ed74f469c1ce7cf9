// Package timeline собирает единую ленту разговора из двух независимых потоков:
// сообщений и предложений свиданий.
package timeline

import (
	"sort"
	"sync"
	"time"

	"github.com/frinder/internal/model"
)

type Kind string

const (
	KindMessage     Kind = "message"
	KindDateRequest Kind = "date_request"
)

// Item это элемент ленты, ровно одно из Message / DateRequest.
type Item struct {
	Kind        Kind
	At          time.Time
	Message     *model.Message
	DateRequest *model.DateRequest
}

func (it Item) ID() string {
	if it.Kind == KindMessage {
		return it.Message.ID
	}
	return it.DateRequest.ID
}

// Merge помечает элементы типом, берёт единый ключ времени и стабильно сортирует по возрастанию.
// При равном времени сообщения идут раньше предложений (порядок конкатенации).
func Merge(messages []model.Message, requests []model.DateRequest) []Item {
	items := make([]Item, 0, len(messages)+len(requests))
	for i := range messages {
		items = append(items, Item{Kind: KindMessage, At: messages[i].Timestamp, Message: &messages[i]})
	}
	for i := range requests {
		items = append(items, Item{Kind: KindDateRequest, At: requests[i].CreatedAt, DateRequest: &requests[i]})
	}
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].At.Before(items[b].At)
	})
	return items
}

// Timeline хранит последние снимки обоих потоков и пересобирает ленту при каждом обновлении.
type Timeline struct {
	mu       sync.Mutex
	messages []model.Message
	requests []model.DateRequest
	items    []Item
	tracker  *AcceptanceTracker
	onAccept func(model.DateRequest)
}

// New создаёт ленту. onAccept вызывается один раз на каждое предложение, перешедшее в accepted.
func New(tracker *AcceptanceTracker, onAccept func(model.DateRequest)) *Timeline {
	if tracker == nil {
		tracker = NewAcceptanceTracker()
	}
	return &Timeline{tracker: tracker, onAccept: onAccept}
}

// SetMessages применяет новый снимок сообщений.
func (t *Timeline) SetMessages(msgs []model.Message) []Item {
	t.mu.Lock()
	t.messages = append([]model.Message(nil), msgs...)
	items := t.rebuild()
	t.mu.Unlock()
	return items
}

// SetDateRequests применяет новый снимок предложений и запускает детектор принятия.
func (t *Timeline) SetDateRequests(reqs []model.DateRequest) []Item {
	t.mu.Lock()
	t.requests = append([]model.DateRequest(nil), reqs...)
	accepted := t.tracker.Observe(t.requests)
	items := t.rebuild()
	t.mu.Unlock()
	if t.onAccept != nil {
		for _, r := range accepted {
			t.onAccept(r)
		}
	}
	return items
}

// UpsertMessage применяет одно изменение сообщения из live-ленты (новое, правка, удаление).
func (t *Timeline) UpsertMessage(m model.Message) []Item {
	t.mu.Lock()
	replaced := false
	for i := range t.messages {
		if t.messages[i].ID == m.ID {
			t.messages[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		t.messages = append(t.messages, m)
	}
	items := t.rebuild()
	t.mu.Unlock()
	return items
}

// UpsertDateRequest применяет одно изменение предложения.
func (t *Timeline) UpsertDateRequest(r model.DateRequest) []Item {
	t.mu.Lock()
	reqs := make([]model.DateRequest, 0, len(t.requests)+1)
	replaced := false
	for _, cur := range t.requests {
		if cur.ID == r.ID {
			cur = r
			replaced = true
		}
		reqs = append(reqs, cur)
	}
	if !replaced {
		reqs = append(reqs, r)
	}
	t.mu.Unlock()
	return t.SetDateRequests(reqs)
}

// Items возвращает текущую ленту.
func (t *Timeline) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Item(nil), t.items...)
}

// Messages возвращает текущий снимок сообщений.
func (t *Timeline) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Message(nil), t.messages...)
}

func (t *Timeline) rebuild() []Item {
	t.items = Merge(t.messages, t.requests)
	return append([]Item(nil), t.items...)
}
