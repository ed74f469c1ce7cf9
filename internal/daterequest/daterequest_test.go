package daterequest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frinder/internal/model"
)

func TestValidate(t *testing.T) {
	ok := Draft{Title: "Coffee", Date: "2025-06-01", Time: "10:00", Location: "Campus Cafe"}
	require.NoError(t, Validate(ok))

	cases := map[string]Draft{
		"no title":    {Date: "2025-06-01", Time: "10:00", Location: "Cafe"},
		"blank time":  {Title: "Coffee", Date: "2025-06-01", Time: "   ", Location: "Cafe"},
		"no location": {Title: "Coffee", Date: "2025-06-01", Time: "10:00"},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(d), ErrMissingField)
		})
	}

	bad := ok
	bad.Date = "01.06.2025"
	assert.ErrorIs(t, Validate(bad), ErrInvalidDate)
}

func TestTransition(t *testing.T) {
	pending := &model.DateRequest{ID: "d1", SenderID: "alice", Status: model.DateStatusPending}

	assert.ErrorIs(t, Transition(pending, "alice", model.DateStatusAccepted), ErrNotAllowed)
	assert.ErrorIs(t, Transition(pending, "alice", model.DateStatusDeclined), ErrNotAllowed)
	assert.NoError(t, Transition(pending, "bob", model.DateStatusAccepted))
	assert.NoError(t, Transition(pending, "bob", model.DateStatusDeclined))
	assert.NoError(t, Transition(pending, "alice", model.DateStatusCancelled))

	accepted := &model.DateRequest{ID: "d1", SenderID: "alice", Status: model.DateStatusAccepted}
	assert.NoError(t, Transition(accepted, "bob", model.DateStatusCancelled))
	assert.NoError(t, Transition(accepted, "alice", model.DateStatusCancelled))
	assert.ErrorIs(t, Transition(accepted, "bob", model.DateStatusDeclined), ErrInvalidTransition)

	for _, terminal := range []model.DateStatus{model.DateStatusDeclined, model.DateStatusCancelled} {
		req := &model.DateRequest{SenderID: "alice", Status: terminal}
		assert.ErrorIs(t, Transition(req, "bob", model.DateStatusCancelled), ErrInvalidTransition)
		assert.ErrorIs(t, Transition(req, "bob", model.DateStatusAccepted), ErrInvalidTransition)
	}
	assert.ErrorIs(t, Transition(pending, "bob", model.DateStatusPending), ErrInvalidTransition)
}

func TestActionable(t *testing.T) {
	req := &model.DateRequest{SenderID: "alice", Status: model.DateStatusPending}
	respond, cancel := Actionable(req, "bob")
	assert.True(t, respond)
	assert.True(t, cancel)
	respond, _ = Actionable(req, "alice")
	assert.False(t, respond)

	req.Status = model.DateStatusCancelled
	respond, cancel = Actionable(req, "bob")
	assert.False(t, respond)
	assert.False(t, cancel)
}

func TestToastGate(t *testing.T) {
	g := NewToastGate()
	req := &model.DateRequest{ID: "d1", MatchID: "m1", SenderID: "alice", Status: model.DateStatusAccepted}

	assert.False(t, g.Allow("bob", req, ""), "accepter never gets the toast")
	assert.False(t, g.Allow("alice", req, "m1"), "no toast while viewing the conversation")
	assert.True(t, g.Allow("alice", req, "m2"))
	assert.False(t, g.Allow("alice", req, ""), "second observation of the same status")

	req.Status = model.DateStatusPending
	assert.False(t, g.Allow("alice", req, ""))
}
