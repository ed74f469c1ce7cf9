package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/ws"
)

var ErrLiveClosed = errors.New("live feed closed")

// Event: событие живой ленты; Payload разбирается получателем по Type.
type Event struct {
	Type    ws.EventType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return nil
}

// Live: подписка на /ws. Живёт, пока не отменён ctx, переданный в Dial, или не оборвалось соединение.
// Обработчик вызывается последовательно из одной горутины.
type Live struct {
	conn *websocket.Conn
	out  chan ws.IncomingMessage
	done chan struct{}

	mu  sync.Mutex
	err error
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}

// Dial открывает живую ленту пользователя.
func (c *Client) Dial(ctx context.Context, handle func(Event)) (*Live, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL(c.baseURL), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("live dial: %w", err)
	}
	l := &Live{
		conn: conn,
		out:  make(chan ws.IncomingMessage, 16),
		done: make(chan struct{}),
	}
	go l.readLoop(handle)
	go l.writeLoop(ctx)
	return l, nil
}

// Done закрывается, когда лента остановлена.
func (l *Live) Done() <-chan struct{} { return l.done }

// Err: причина остановки; nil при отмене контекста.
func (l *Live) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// SendTyping отправляет сигнал «печатает» по сокету.
func (l *Live) SendTyping(matchID string, typing bool) error {
	select {
	case <-l.done:
		return ErrLiveClosed
	default:
	}
	select {
	case l.out <- ws.IncomingMessage{Type: ws.EventTyping, MatchID: matchID, Typing: typing}:
		return nil
	case <-l.done:
		return ErrLiveClosed
	}
}

// SetTyping: то же, что SendTyping, в форме typing.Writer.
func (l *Live) SetTyping(_ context.Context, matchID string, typing bool) error {
	return l.SendTyping(matchID, typing)
}

func (l *Live) readLoop(handle func(Event)) {
	for {
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.stop(err)
			} else {
				l.stop(nil)
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Errorf("live: malformed event: %v", err)
			continue
		}
		handle(ev)
	}
}

func (l *Live) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			l.stop(nil)
			return
		case <-l.done:
			return
		case msg := <-l.out:
			_ = l.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := l.conn.WriteJSON(msg); err != nil {
				l.stop(err)
				return
			}
		}
	}
}

func (l *Live) stop(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		return
	default:
	}
	l.err = err
	close(l.done)
	_ = l.conn.Close()
}
