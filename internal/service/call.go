package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
	"github.com/frinder/internal/repository"
	"github.com/frinder/internal/ws"
)

type CallService struct {
	matches MatchStore
	calls   CallStore
	pub     Publisher
	push    PushNotifier
	now     func() time.Time
}

func NewCallService(matches MatchStore, calls CallStore, pub Publisher, push PushNotifier) *CallService {
	return &CallService{
		matches: matches, calls: calls, pub: pub, push: push,
		now: func() time.Time { return time.Now().UTC() },
	}
}

type CreateCallInput struct {
	MatchID string                    `json:"match_id"`
	Offer   *model.SessionDescription `json:"offer"`
}

// Create (createCall) создаёт запись со статусом ringing и данными звонящего. Один незавершённый звонок на матч.
func (s *CallService) Create(ctx context.Context, userID string, in CreateCallInput) (*model.Call, error) {
	if in.MatchID == "" {
		return nil, invalid("match_id required")
	}
	if in.Offer == nil || in.Offer.SDP == "" {
		return nil, invalid("offer required")
	}
	m, err := s.matches.GetByID(ctx, in.MatchID)
	if err != nil {
		return nil, err
	}
	if !m.HasUser(userID) {
		return nil, ErrForbidden
	}
	if m.IsUnmatched {
		return nil, ErrUnmatched
	}
	if _, err := s.calls.ActiveForMatch(ctx, in.MatchID); err == nil {
		return nil, ErrCallInProgress
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	caller := m.Profiles[userID]
	c := &model.Call{
		ID:          uuid.New().String(),
		MatchID:     in.MatchID,
		CallerID:    userID,
		CalleeID:    m.Other(userID),
		CallerName:  caller.Name,
		CallerPhoto: caller.MainPhoto(),
		Offer:       in.Offer,
		Status:      model.CallStatusRinging,
		CreatedAt:   s.now(),
	}
	if err := s.calls.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrCallInProgress
		}
		return nil, err
	}
	logger.Infof("call created id=%s match=%s caller=%s", c.ID, c.MatchID, userID)
	s.pub.Publish([]string{c.CalleeID}, ws.EventCallIncoming, c)
	s.pub.Publish([]string{c.CallerID}, ws.EventCallUpdated, c)
	notify(s.push, c.CalleeID, "Incoming call", c.CallerName+" is calling you", map[string]string{"call_id": c.ID, "match_id": c.MatchID})
	return c, nil
}

func (s *CallService) Get(ctx context.Context, userID, callID string) (*model.Call, error) {
	c, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !c.HasUser(userID) {
		return nil, ErrForbidden
	}
	return c, nil
}

// Incoming: звонки, где пользователь вызываемый и статус ringing.
func (s *CallService) Incoming(ctx context.Context, userID string) ([]model.Call, error) {
	list, err := s.calls.Incoming(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Call{}
	}
	return list, nil
}

// Answer (answerCall): только вызываемый, только из ringing; статус становится connecting.
func (s *CallService) Answer(ctx context.Context, userID, callID string, answer *model.SessionDescription) (*model.Call, error) {
	if answer == nil || answer.SDP == "" {
		return nil, invalid("answer required")
	}
	c, err := s.Get(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	if err := CheckCallTransition(c, userID, model.CallStatusConnecting); err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.calls.SetAnswer(ctx, callID, *answer, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvalidState
		}
		return nil, err
	}
	c.Answer = answer
	c.Status = model.CallStatusConnecting
	c.AnsweredAt = &now
	s.pub.Publish([]string{c.CallerID, c.CalleeID}, ws.EventCallUpdated, c)
	return c, nil
}

// SetStatus меняет статус с проверкой перехода. Запись терминального статуса поверх
// терминального ничего не меняет и не считается ошибкой.
func (s *CallService) SetStatus(ctx context.Context, userID, callID string, to model.CallStatus, reason string) (*model.Call, error) {
	c, err := s.Get(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	// обе стороны сообщают о соединении: вторая запись ничего не меняет
	if (c.Status.Terminal() && to.Terminal()) || (c.Status == model.CallStatusOngoing && to == model.CallStatusOngoing) {
		return c, nil
	}
	if err := CheckCallTransition(c, userID, to); err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.calls.UpdateStatus(ctx, callID, c.Status, to, reason, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// вторая сторона успела раньше: отдаём актуальную запись
			return s.calls.GetByID(ctx, callID)
		}
		return nil, err
	}
	c.Status = to
	if reason != "" {
		c.EndReason = reason
	}
	if to.Terminal() {
		c.EndedAt = &now
	}
	s.pub.Publish([]string{c.CallerID, c.CalleeID}, ws.EventCallUpdated, c)
	if to == model.CallStatusMissed {
		notify(s.push, c.CalleeID, "Missed call", "Missed call from "+c.CallerName, map[string]string{"call_id": c.ID, "match_id": c.MatchID})
	}
	return c, nil
}

// End: endCall(callId, reason?).
func (s *CallService) End(ctx context.Context, userID, callID, reason string) (*model.Call, error) {
	return s.SetStatus(ctx, userID, callID, model.CallStatusEnded, reason)
}

// AddCandidate (addIceCandidate): кандидат уходит второму участнику.
func (s *CallService) AddCandidate(ctx context.Context, userID, callID string, candidate json.RawMessage) (*model.ICECandidate, error) {
	if len(candidate) == 0 || !json.Valid(candidate) {
		return nil, invalid("candidate must be a JSON object")
	}
	c, err := s.Get(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, ErrInvalidState
	}
	ic := &model.ICECandidate{
		ID:            uuid.New().String(),
		CallID:        callID,
		ContributorID: userID,
		Candidate:     candidate,
		CreatedAt:     s.now(),
	}
	if err := s.calls.AddCandidate(ctx, ic); err != nil {
		return nil, err
	}
	other := c.CalleeID
	if userID == c.CalleeID {
		other = c.CallerID
	}
	s.pub.Publish([]string{other}, ws.EventICECandidate, ws.ICECandidatePayload{CallID: callID, Candidate: *ic})
	return ic, nil
}

// Candidates: кандидаты звонка, добавленные не userID.
func (s *CallService) Candidates(ctx context.Context, userID, callID string) ([]model.ICECandidate, error) {
	if _, err := s.Get(ctx, userID, callID); err != nil {
		return nil, err
	}
	list, err := s.calls.Candidates(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.ICECandidate{}
	}
	return list, nil
}

// CheckCallTransition: допустимые переходы звонка:
// ringing → connecting (вызываемый), ringing → declined (вызываемый), ringing → missed (звонящий),
// connecting → ongoing (любой), любой незавершённый → ended (любой).
func CheckCallTransition(c *model.Call, actor string, to model.CallStatus) error {
	if !c.HasUser(actor) {
		return ErrForbidden
	}
	if c.Status.Terminal() {
		return ErrInvalidState
	}
	switch to {
	case model.CallStatusConnecting, model.CallStatusDeclined:
		if c.Status != model.CallStatusRinging {
			return ErrInvalidState
		}
		if actor != c.CalleeID {
			return ErrForbidden
		}
	case model.CallStatusMissed:
		if c.Status != model.CallStatusRinging {
			return ErrInvalidState
		}
		if actor != c.CallerID {
			return ErrForbidden
		}
	case model.CallStatusOngoing:
		if c.Status != model.CallStatusConnecting {
			return ErrInvalidState
		}
	case model.CallStatusEnded:
	default:
		return ErrInvalidState
	}
	return nil
}
