package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/frinder/internal/daterequest"
	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
	"github.com/frinder/internal/repository"
	"github.com/frinder/internal/storage"
	"github.com/frinder/internal/ws"
)

// dedupeTTL: сколько помнить, что уведомление по (запрос, статус) уже отправлено.
const dedupeTTL = 30 * 24 * time.Hour

type DateService struct {
	matches MatchStore
	dates   DateRequestStore
	store   storage.Store
	pub     Publisher
	push    PushNotifier
	now     func() time.Time
}

func NewDateService(matches MatchStore, dates DateRequestStore, store storage.Store, pub Publisher, push PushNotifier) *DateService {
	return &DateService{
		matches: matches, dates: dates, store: store, pub: pub, push: push,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *DateService) participant(ctx context.Context, userID, matchID string) (*model.Match, error) {
	m, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasUser(userID) {
		return nil, ErrForbidden
	}
	return m, nil
}

// Create: createDateRequest. Поля проверяются до записи.
func (s *DateService) Create(ctx context.Context, userID, matchID string, draft daterequest.Draft) (*model.DateRequest, error) {
	if err := daterequest.Validate(draft); err != nil {
		return nil, invalid(err.Error())
	}
	m, err := s.participant(ctx, userID, matchID)
	if err != nil {
		return nil, err
	}
	if m.IsUnmatched {
		return nil, ErrUnmatched
	}
	d := draft.Normalize()
	req := &model.DateRequest{
		ID:          uuid.New().String(),
		MatchID:     matchID,
		SenderID:    userID,
		Title:       d.Title,
		Date:        d.Date,
		Time:        d.Time,
		Location:    d.Location,
		Description: d.Description,
		Status:      model.DateStatusPending,
		CreatedAt:   s.now(),
	}
	if err := s.dates.Create(ctx, req); err != nil {
		return nil, err
	}
	s.pub.Publish(m.Users[:], ws.EventDateRequest, req)
	notify(s.push, m.Other(userID), "Date request", m.Profiles[userID].Name+" invited you: "+req.Title,
		map[string]string{"match_id": matchID, "date_request_id": req.ID})
	return req, nil
}

func (s *DateService) List(ctx context.Context, userID, matchID string) ([]model.DateRequest, error) {
	if _, err := s.participant(ctx, userID, matchID); err != nil {
		return nil, err
	}
	list, err := s.dates.ListByMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.DateRequest{}
	}
	return list, nil
}

// Respond: respondToDateRequest(accepted|declined), только не отправитель и только из pending.
func (s *DateService) Respond(ctx context.Context, userID, requestID string, status model.DateStatus) (*model.DateRequest, error) {
	if status != model.DateStatusAccepted && status != model.DateStatusDeclined {
		return nil, invalid("status must be accepted or declined")
	}
	req, m, err := s.load(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}
	if m.IsUnmatched {
		return nil, ErrUnmatched
	}
	if err := transition(req, userID, status); err != nil {
		return nil, err
	}
	from := req.Status
	now := s.now()
	req.Status = status
	req.RespondedAt = &now
	if err := s.commit(ctx, req, from); err != nil {
		return nil, err
	}
	s.pub.Publish(m.Users[:], ws.EventDateRequest, req)

	if status == model.DateStatusAccepted {
		s.notifyOnce(ctx, req, req.SenderID, "Date accepted 🎉", m.Profiles[userID].Name+" accepted: "+req.Title)
	}
	return req, nil
}

// Cancel (cancelDateRequest): pending или accepted, любой из участников.
func (s *DateService) Cancel(ctx context.Context, userID, requestID string) (*model.DateRequest, error) {
	req, m, err := s.load(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}
	if err := transition(req, userID, model.DateStatusCancelled); err != nil {
		return nil, err
	}
	from := req.Status
	now := s.now()
	req.Status = model.DateStatusCancelled
	req.RespondedAt = &now
	req.CancelledBy = userID
	if err := s.commit(ctx, req, from); err != nil {
		return nil, err
	}
	s.pub.Publish(m.Users[:], ws.EventDateRequest, req)
	s.notifyOnce(ctx, req, m.Other(userID), "Date cancelled", req.Title+" was cancelled")
	return req, nil
}

func (s *DateService) load(ctx context.Context, userID, requestID string) (*model.DateRequest, *model.Match, error) {
	req, err := s.dates.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.participant(ctx, userID, req.MatchID)
	if err != nil {
		return nil, nil, err
	}
	return req, m, nil
}

func (s *DateService) commit(ctx context.Context, req *model.DateRequest, from model.DateStatus) error {
	err := s.dates.UpdateStatus(ctx, req, from)
	if errors.Is(err, repository.ErrConflict) {
		// статус успели изменить параллельно
		return ErrInvalidState
	}
	return err
}

// notifyOnce отправляет пуш не больше одного раза на (запрос, статус).
func (s *DateService) notifyOnce(ctx context.Context, req *model.DateRequest, userID, title, body string) {
	first, err := s.store.MarkOnce(ctx, daterequest.DedupeKey(req.ID, req.Status), dedupeTTL)
	if err != nil {
		logger.Errorf("date.notifyOnce %s: %v", req.ID, err)
		return
	}
	if !first {
		return
	}
	notify(s.push, userID, title, body, map[string]string{"match_id": req.MatchID, "date_request_id": req.ID})
}

// transition переводит ошибки машины состояний в ошибки сервиса.
func transition(req *model.DateRequest, actor string, to model.DateStatus) error {
	err := daterequest.Transition(req, actor, to)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, daterequest.ErrNotAllowed):
		return ErrForbidden
	default:
		return ErrInvalidState
	}
}
