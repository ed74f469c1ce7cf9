// Package daterequest: машина состояний предложения свидания:
// pending → accepted | declined, pending | accepted → cancelled.
package daterequest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/frinder/internal/model"
)

var (
	ErrMissingField      = errors.New("title, date, time and location are required")
	ErrInvalidDate       = errors.New("date must be YYYY-MM-DD")
	ErrInvalidTransition = errors.New("invalid date request transition")
	ErrNotAllowed        = errors.New("not allowed to change this date request")
)

const dateLayout = "2006-01-02"

// Draft: поля, которые заполняет отправитель.
type Draft struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
}

// Normalize обрезает пробелы во всех полях.
func (d Draft) Normalize() Draft {
	return Draft{
		Title:       strings.TrimSpace(d.Title),
		Date:        strings.TrimSpace(d.Date),
		Time:        strings.TrimSpace(d.Time),
		Location:    strings.TrimSpace(d.Location),
		Description: strings.TrimSpace(d.Description),
	}
}

// Validate проверяет обязательные поля до любой записи в БД.
func Validate(d Draft) error {
	d = d.Normalize()
	if d.Title == "" || d.Date == "" || d.Time == "" || d.Location == "" {
		return ErrMissingField
	}
	if _, err := time.Parse(dateLayout, d.Date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// Transition проверяет, может ли actor перевести req в статус to.
// Не меняет req: запись делает вызывающий код.
func Transition(req *model.DateRequest, actor string, to model.DateStatus) error {
	switch to {
	case model.DateStatusAccepted, model.DateStatusDeclined:
		if req.Status != model.DateStatusPending {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, to)
		}
		if actor == req.SenderID {
			return ErrNotAllowed
		}
	case model.DateStatusCancelled:
		if req.Status != model.DateStatusPending && req.Status != model.DateStatusAccepted {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, to)
		}
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, to)
	}
	return nil
}

// Actionable: показывать ли кнопки действий для viewer.
func Actionable(req *model.DateRequest, viewer string) (canRespond, canCancel bool) {
	canRespond = req.Status == model.DateStatusPending && viewer != req.SenderID
	canCancel = req.Status == model.DateStatusPending || req.Status == model.DateStatusAccepted
	return canRespond, canCancel
}

// DedupeKey: ключ «запрос + статус» для однократных уведомлений.
func DedupeKey(requestID string, status model.DateStatus) string {
	return "date:" + requestID + ":" + string(status)
}

// ToastGate решает, показывать ли тост о принятии свидания.
// Тост получает только отправитель запроса, только если он не смотрит этот разговор,
// и только один раз на пару (запрос, статус).
type ToastGate struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewToastGate() *ToastGate {
	return &ToastGate{seen: make(map[string]struct{})}
}

func (g *ToastGate) Allow(viewer string, req *model.DateRequest, viewingMatchID string) bool {
	if req.Status != model.DateStatusAccepted || req.SenderID != viewer || req.MatchID == viewingMatchID {
		return false
	}
	key := DedupeKey(req.ID, req.Status)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}
	return true
}
