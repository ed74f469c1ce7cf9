package ws

import (
	"context"
	"sync"
	"time"

	"github.com/frinder/internal/logger"
)

const signalTimeout = 3 * time.Second

// Dispatcher обрабатывает входящие сигналы клиента (typing). Ошибка уходит клиенту событием error.
type Dispatcher interface {
	HandleSignal(ctx context.Context, userID string, msg IncomingMessage) error
}

// conns: открытые соединения одного пользователя (несколько вкладок или устройств).
type conns map[*Client]struct{}

// Hub держит соединения по user_id и рассылает события участникам матчей и групп.
type Hub struct {
	mu         sync.RWMutex
	users      map[string]conns
	count      int
	limit      int
	dispatcher Dispatcher

	join  chan *Client
	leave chan *Client
	done  chan struct{}
}

func NewHub(maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		users: make(map[string]conns),
		limit: maxConns,
		join:  make(chan *Client, 64),
		leave: make(chan *Client, 64),
		done:  make(chan struct{}),
	}
}

// SetDispatcher подключает обработчик входящих сигналов (вызывать до Run).
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.join:
			if !h.attach(c) {
				logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.limit, c.userID)
				c.Close()
			}
		case c := <-h.leave:
			if h.detach(c) {
				c.Close()
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	all := make([]*Client, 0, h.count)
	for _, set := range h.users {
		for c := range set {
			all = append(all, c)
		}
	}
	h.users = make(map[string]conns)
	h.count = 0
	h.mu.Unlock()

	// I/O только вне мьютекса
	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) attach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count >= h.limit {
		return false
	}
	set := h.users[c.userID]
	if set == nil {
		set = make(conns)
		h.users[c.userID] = set
	}
	set[c] = struct{}{}
	h.count++
	logger.Debugf("ws connected user=%s conns=%d", c.userID, len(set))
	return true
}

// detach возвращает false, если соединение уже снято (повторный leave или closeAll).
func (h *Hub) detach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.users[c.userID]
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	h.count--
	if len(set) == 0 {
		delete(h.users, c.userID)
	}
	return true
}

// HandleMessage передаёт сигнал клиента диспетчеру.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	if h.dispatcher == nil {
		h.deliver(c, OutgoingMessage{Type: EventError, Payload: "signals are not accepted"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, signalTimeout)
	defer cancel()
	if err := h.dispatcher.HandleSignal(ctx, c.userID, msg); err != nil {
		h.deliver(c, OutgoingMessage{Type: EventError, Payload: err.Error()})
	}
}

// Publish рассылает событие всем соединениям перечисленных пользователей.
// Получатели собираются одним снимком под RLock, повторы user_id пропускаются.
func (h *Hub) Publish(userIDs []string, event EventType, payload any) {
	out := OutgoingMessage{Type: event, Payload: payload}
	for _, c := range h.recipients(userIDs) {
		h.deliver(c, out)
	}
}

func (h *Hub) recipients(userIDs []string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var targets []*Client
	seen := make(map[string]struct{}, len(userIDs))
	for _, uid := range userIDs {
		if _, dup := seen[uid]; dup || uid == "" {
			continue
		}
		seen[uid] = struct{}{}
		for c := range h.users[uid] {
			targets = append(targets, c)
		}
	}
	return targets
}

// Online сообщает, есть ли у пользователя открытое соединение. Пуш уходит только офлайн-получателю.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// deliver не блокирует: медленный клиент с полным буфером отключается.
func (h *Hub) deliver(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.join <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.leave <- c:
	case <-h.done:
	}
}
