package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frinder/internal/daterequest"
	"github.com/frinder/internal/model"
	"github.com/frinder/internal/storage/memory"
	"github.com/frinder/internal/ws"
)

func newDateFixture(ms ...model.Match) (*DateService, *memDates, *recorder, *pushRecorder) {
	dates := newMemDates()
	pub := &recorder{}
	push := &pushRecorder{}
	return NewDateService(newMemMatches(ms...), dates, memory.New(), pub, push), dates, pub, push
}

func dinner() daterequest.Draft {
	return daterequest.Draft{Title: " Dinner ", Date: "2026-11-20", Time: "19:30", Location: "Cafe Pushkin"}
}

func TestCreateDateRequestValidation(t *testing.T) {
	svc, dates, _, _ := newDateFixture(activeMatch())
	ctx := context.Background()

	_, err := svc.Create(ctx, "alice", "m1", daterequest.Draft{Title: "Dinner"})
	assert.ErrorIs(t, err, ErrValidation)
	bad := dinner()
	bad.Date = "20.11.2026"
	_, err = svc.Create(ctx, "alice", "m1", bad)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Create(ctx, "carol", "m1", dinner())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, dates.byID)

	req, err := svc.Create(ctx, "alice", "m1", dinner())
	require.NoError(t, err)
	assert.Equal(t, "Dinner", req.Title)
	assert.Equal(t, model.DateStatusPending, req.Status)
}

func TestCreateDateRequestInUnmatched(t *testing.T) {
	m := activeMatch()
	m.IsUnmatched = true
	svc, _, _, _ := newDateFixture(m)
	_, err := svc.Create(context.Background(), "alice", "m1", dinner())
	assert.ErrorIs(t, err, ErrUnmatched)
}

func TestSenderCannotRespond(t *testing.T) {
	svc, _, _, _ := newDateFixture(activeMatch())
	ctx := context.Background()
	req, err := svc.Create(ctx, "alice", "m1", dinner())
	require.NoError(t, err)

	_, err = svc.Respond(ctx, "alice", req.ID, model.DateStatusAccepted)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Respond(ctx, "bob", req.ID, model.DateStatusCancelled)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeclinedIsTerminal(t *testing.T) {
	svc, _, _, _ := newDateFixture(activeMatch())
	ctx := context.Background()
	req, err := svc.Create(ctx, "alice", "m1", dinner())
	require.NoError(t, err)

	declined, err := svc.Respond(ctx, "bob", req.ID, model.DateStatusDeclined)
	require.NoError(t, err)
	assert.NotNil(t, declined.RespondedAt)

	_, err = svc.Respond(ctx, "bob", req.ID, model.DateStatusAccepted)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.Cancel(ctx, "alice", req.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConcurrentResponseLosesRace(t *testing.T) {
	svc, dates, _, _ := newDateFixture(activeMatch())
	ctx := context.Background()
	req, err := svc.Create(ctx, "alice", "m1", dinner())
	require.NoError(t, err)

	// вторая сторона уже отменила, пока запрос читался
	dates.byID[req.ID].Status = model.DateStatusCancelled
	_, err = svc.Respond(ctx, "bob", req.ID, model.DateStatusAccepted)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAcceptThenCancelScenario(t *testing.T) {
	svc, dates, pub, push := newDateFixture(activeMatch())
	ctx := context.Background()

	req, err := svc.Create(ctx, "alice", "m1", dinner())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return push.count() == 1 }, time.Second, 5*time.Millisecond)

	accepted, err := svc.Respond(ctx, "bob", req.ID, model.DateStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, model.DateStatusAccepted, accepted.Status)
	assert.Eventually(t, func() bool { return push.count() == 2 }, time.Second, 5*time.Millisecond)

	// повторная попытка принять не шлёт второй пуш
	_, err = svc.Respond(ctx, "bob", req.ID, model.DateStatusAccepted)
	assert.ErrorIs(t, err, ErrInvalidState)

	cancelled, err := svc.Cancel(ctx, "bob", req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DateStatusCancelled, cancelled.Status)
	assert.Equal(t, "bob", cancelled.CancelledBy)
	assert.Equal(t, model.DateStatusCancelled, dates.byID[req.ID].Status)
	assert.Eventually(t, func() bool { return push.count() == 3 }, time.Second, 5*time.Millisecond)

	list, err := svc.List(ctx, "alice", "m1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.DateStatusCancelled, list[0].Status)

	assert.Len(t, pub.of(ws.EventDateRequest), 3)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, push.count())
}
