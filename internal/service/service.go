// Package service содержит операции бэкенда: авторизация участника, валидация, запись и рассылка событий.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/frinder/internal/model"
	"github.com/frinder/internal/ws"
)

var (
	ErrForbidden      = errors.New("forbidden")
	ErrUnmatched      = errors.New("conversation is unmatched")
	ErrValidation     = errors.New("validation failed")
	ErrCallInProgress = errors.New("call already in progress")
	ErrInvalidState   = errors.New("invalid state transition")
)

// Publisher: рассылка событий живой подписки (ws.Hub).
type Publisher interface {
	Publish(userIDs []string, event ws.EventType, payload any)
}

// PushNotifier отправляет пуш-уведомления. Если nil: пуши не отправляются.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

type MatchStore interface {
	Create(ctx context.Context, m *model.Match) error
	GetByID(ctx context.Context, id string) (*model.Match, error)
	FindByUsers(ctx context.Context, a, b string) (*model.Match, error)
	ListForUser(ctx context.Context, userID string, unmatched bool) ([]model.Match, error)
	SetLastMessage(ctx context.Context, matchID, preview string, at time.Time, recipientID string) error
	SetPreview(ctx context.Context, matchID, preview string) error
	ResetUnread(ctx context.Context, matchID, userID string) error
	Unmatch(ctx context.Context, matchID, by string, at time.Time) error
}

type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListByMatch(ctx context.Context, matchID string, limit int) ([]model.Message, error)
	Latest(ctx context.Context, matchID string) (*model.Message, error)
	UpdateText(ctx context.Context, id, text string, editedAt time.Time) error
	Tombstone(ctx context.Context, id string) error
	MarkRead(ctx context.Context, matchID, readerID string) (int64, error)
}

type ProfileStore interface {
	GetByID(ctx context.Context, userID string) (*model.Profile, error)
	Upsert(ctx context.Context, p *model.Profile) error
}

type DateRequestStore interface {
	Create(ctx context.Context, d *model.DateRequest) error
	GetByID(ctx context.Context, id string) (*model.DateRequest, error)
	ListByMatch(ctx context.Context, matchID string) ([]model.DateRequest, error)
	UpdateStatus(ctx context.Context, d *model.DateRequest, from model.DateStatus) error
}

type CallStore interface {
	Create(ctx context.Context, c *model.Call) error
	GetByID(ctx context.Context, id string) (*model.Call, error)
	ActiveForMatch(ctx context.Context, matchID string) (*model.Call, error)
	Incoming(ctx context.Context, calleeID string) ([]model.Call, error)
	SetAnswer(ctx context.Context, id string, answer model.SessionDescription, at time.Time) error
	UpdateStatus(ctx context.Context, id string, from, to model.CallStatus, reason string, at time.Time) error
	AddCandidate(ctx context.Context, c *model.ICECandidate) error
	Candidates(ctx context.Context, callID, exclude string) ([]model.ICECandidate, error)
}

type GroupStore interface {
	Create(ctx context.Context, g *model.Group) error
	GetByID(ctx context.Context, id string) (*model.Group, error)
	ListForUser(ctx context.Context, userID string) ([]model.Group, error)
	Search(ctx context.Context, query string, limit int) ([]model.Group, error)
	AddMember(ctx context.Context, id, userID string, fromPending bool) (*model.Group, error)
	AddPending(ctx context.Context, id, userID string) (*model.Group, error)
	RemovePending(ctx context.Context, id, userID string) (*model.Group, error)
	RemoveMember(ctx context.Context, id, userID string) (*model.Group, error)
	SoftDelete(ctx context.Context, id string) error
	AddMessage(ctx context.Context, m *model.GroupMessage, preview string) error
	ListMessages(ctx context.Context, groupID string, limit int) ([]model.GroupMessage, error)
}

type CheckoutStore interface {
	SavePending(ctx context.Context, m *model.CheckoutMapping) error
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
}

// ValidationError: ошибка входных данных с текстом для клиента. errors.Is(err, ErrValidation) == true.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// notify отправляет пуш в фоне: ответ клиенту не ждёт push-сервис.
func notify(p PushNotifier, userID, title, body string, data map[string]string) {
	if p == nil || userID == "" {
		return
	}
	go p.Notify(context.Background(), userID, title, body, data)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
