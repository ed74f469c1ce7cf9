package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frinder/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// входящие кадры: только короткие сигналы вида {"type":"typing",...}
	maxSignalSize = 1024
	queueSize     = 256
	// minSignalGap: не чаще одного сигнала на матч за этот интервал; лишние отбрасываются.
	minSignalGap = 250 * time.Millisecond
)

// Client: одно WebSocket-соединение пользователя.
// Жизненный цикл: NewClient -> Start -> (чтение, запись) -> Close -> Wait.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan OutgoingMessage
	userID string

	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup

	// lastSignal: время последнего принятого сигнала по ключу "type:match_id".
	lastSignal map[string]time.Time
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan OutgoingMessage, queueSize),
		userID:     userID,
		done:       make(chan struct{}),
		lastSignal: make(map[string]time.Time),
	}
}

// UserID: владелец соединения.
func (c *Client) UserID() string { return c.userID }

// Start запускает чтение и запись. Соединение живёт, пока не отменён ctx или не вызван Close.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go c.writeLoop(ctx)
	go c.readLoop(ctx)
}

func (c *Client) Wait() {
	c.wg.Wait()
}

// Close можно вызывать многократно из любой горутины.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxSignalSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read user=%s: %v", c.userID, err)
			}
			return
		}
		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.deliver(c, OutgoingMessage{Type: EventError, Payload: "malformed signal"})
			continue
		}
		if !c.admit(msg, time.Now()) {
			continue
		}
		c.hub.HandleMessage(ctx, c, msg)
	}
}

// admit пропускает сигнал, если с прошлого сигнала того же типа по тому же матчу прошло minSignalGap.
// Снятие флага (typing=false) проходит всегда, иначе собеседник увидит «печатает» до истечения TTL.
func (c *Client) admit(msg IncomingMessage, now time.Time) bool {
	if msg.Type == EventTyping && !msg.Typing {
		return true
	}
	key := string(msg.Type) + ":" + msg.MatchID
	if last, ok := c.lastSignal[key]; ok && now.Sub(last) < minSignalGap {
		return false
	}
	c.lastSignal[key] = now
	return true
}

func (c *Client) writeLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Errorf("ws marshal %s user=%s: %v", msg.Type, c.userID, err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
