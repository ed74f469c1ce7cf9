package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frinder/internal/callsession"
	"github.com/frinder/internal/client"
	"github.com/frinder/internal/daterequest"
	"github.com/frinder/internal/model"
	"github.com/frinder/internal/swipe"
	"github.com/frinder/internal/timeline"
	"github.com/frinder/internal/ws"
)

type fakeAPI struct {
	mu       sync.Mutex
	matches  []model.Match
	messages map[string][]model.Message
	dates    map[string][]model.DateRequest
	incoming []model.Call

	reads    []string
	typing   []bool
	sent     []client.SendInput
	statuses []model.CallStatus
	answered []string
	created  []string
	edited   []string
	deleted  []string
}

func newFakeAPI() *fakeAPI {
	now := time.Now().UTC()
	return &fakeAPI{
		matches: []model.Match{{
			ID:              "m1",
			Users:           [2]string{"alice", "bob"},
			LastMessage:     "hey",
			LastMessageTime: &now,
			UnreadCount:     map[string]int{"alice": 3},
		}},
		messages: map[string][]model.Message{
			"m1": {{ID: "msg-1", MatchID: "m1", SenderID: "bob", Text: "hey", Timestamp: now}},
		},
		dates: map[string][]model.DateRequest{
			"m1": {{ID: "d1", MatchID: "m1", SenderID: "alice", Title: "Dinner", Status: model.DateStatusPending, CreatedAt: now}},
		},
	}
}

func (f *fakeAPI) MarkRead(_ context.Context, matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, matchID)
	return nil
}

func (f *fakeAPI) SetTyping(_ context.Context, _ string, typing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typing)
	return nil
}

func (f *fakeAPI) CreateCall(_ context.Context, matchID, calleeID string, offer model.SessionDescription) (model.Call, error) {
	return model.Call{ID: "c1", MatchID: matchID, CallerID: "alice", CalleeID: calleeID, Offer: &offer, Status: model.CallStatusRinging}, nil
}

func (f *fakeAPI) AnswerCall(_ context.Context, callID string, _ model.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, callID)
	return nil
}

func (f *fakeAPI) AddCandidate(context.Context, string, json.RawMessage) error { return nil }

func (f *fakeAPI) SetStatus(_ context.Context, _ string, status model.CallStatus, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeAPI) Matches(context.Context) ([]model.Match, error)   { return f.matches, nil }
func (f *fakeAPI) Unmatched(context.Context) ([]model.Match, error) { return nil, nil }
func (f *fakeAPI) Groups(context.Context) ([]model.Group, error)    { return nil, nil }

func (f *fakeAPI) CreateMatch(_ context.Context, userID string) (*model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, userID)
	return &model.Match{ID: "m-" + userID, Users: [2]string{"alice", userID}, IsNew: true}, nil
}

func (f *fakeAPI) Messages(_ context.Context, matchID string, _ int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.messages[matchID]...), nil
}

func (f *fakeAPI) SendMessage(_ context.Context, matchID string, in client.SendInput) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, in)
	msg := model.Message{
		ID:        fmt.Sprintf("msg-%d", len(f.messages[matchID])+1),
		MatchID:   matchID,
		SenderID:  "alice",
		Text:      in.Text,
		Timestamp: time.Now().UTC(),
	}
	for _, ref := range f.messages[matchID] {
		if ref.ID == in.ReplyToID {
			msg.ReplyTo = &model.ReplyRef{ID: ref.ID, Text: ref.Text, SenderID: ref.SenderID}
		}
	}
	f.messages[matchID] = append(f.messages[matchID], msg)
	return &msg, nil
}

func (f *fakeAPI) EditMessage(_ context.Context, id, text string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, id)
	for i, m := range f.messages["m1"] {
		if m.ID == id {
			f.messages["m1"][i].Text, f.messages["m1"][i].Edited = text, true
			cp := f.messages["m1"][i]
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeAPI) DeleteMessage(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	var out *model.Message
	for i := range f.messages["m1"] {
		m := &f.messages["m1"][i]
		if m.ID == id {
			m.Tombstone()
			cp := *m
			out = &cp
		}
		if m.ReplyTo != nil && m.ReplyTo.ID == id {
			m.ReplyTo = &model.ReplyRef{ID: id, Text: model.DeletedMarker, SenderID: m.ReplyTo.SenderID}
		}
	}
	return out, nil
}

func (f *fakeAPI) Unmatch(_ context.Context, matchID string) (*model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.matches[0]
	m.IsUnmatched, m.UnmatchedBy = true, "alice"
	return &m, nil
}

func (f *fakeAPI) DateRequests(_ context.Context, matchID string) ([]model.DateRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.DateRequest(nil), f.dates[matchID]...), nil
}

func (f *fakeAPI) ProposeDate(_ context.Context, matchID string, d daterequest.Draft) (*model.DateRequest, error) {
	return &model.DateRequest{ID: "d2", MatchID: matchID, SenderID: "alice", Title: d.Title, Status: model.DateStatusPending}, nil
}

func (f *fakeAPI) setDate(id string, status model.DateStatus) (*model.DateRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.dates["m1"] {
		if f.dates["m1"][i].ID == id {
			f.dates["m1"][i].Status = status
			cp := f.dates["m1"][i]
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeAPI) RespondDate(_ context.Context, id string, status model.DateStatus) (*model.DateRequest, error) {
	return f.setDate(id, status)
}

func (f *fakeAPI) CancelDate(_ context.Context, id string) (*model.DateRequest, error) {
	return f.setDate(id, model.DateStatusCancelled)
}

func (f *fakeAPI) IncomingCalls(context.Context) ([]model.Call, error) { return f.incoming, nil }

func (f *fakeAPI) Candidates(context.Context, string) ([]model.ICECandidate, error) {
	return []model.ICECandidate{{ID: "i1", Candidate: json.RawMessage(`{"candidate":"early"}`)}}, nil
}

func (f *fakeAPI) snapshot() (reads []string, typing []bool, statuses []model.CallStatus, answered []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reads...), append([]bool(nil), f.typing...),
		append([]model.CallStatus(nil), f.statuses...), append([]string(nil), f.answered...)
}

type fakePeer struct {
	mu      sync.Mutex
	applied []json.RawMessage
}

func (p *fakePeer) AddAudio(callsession.AudioSource) error { return nil }
func (p *fakePeer) CreateOffer() (model.SessionDescription, error) {
	return model.SessionDescription{Type: "offer", SDP: "o"}, nil
}
func (p *fakePeer) Answer(model.SessionDescription) (model.SessionDescription, error) {
	return model.SessionDescription{Type: "answer", SDP: "a"}, nil
}
func (p *fakePeer) SetRemoteAnswer(model.SessionDescription) error { return nil }
func (p *fakePeer) AddRemoteCandidate(c json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied = append(p.applied, c)
	return nil
}
func (p *fakePeer) OnLocalCandidate(func(json.RawMessage))        {}
func (p *fakePeer) OnStateChange(func(callsession.TransportState)) {}
func (p *fakePeer) Close() error                                   { return nil }

func newAgent(t *testing.T, api *fakeAPI, opts Options) (*Agent, *fakePeer) {
	t.Helper()
	peer := &fakePeer{}
	opts.UserID = "alice"
	opts.TypingDelay = time.Hour
	opts.NewPeer = func() (callsession.PeerConnection, error) { return peer, nil }
	opts.Capture = callsession.CaptureSilence
	a := New(api, nil, opts)
	require.NoError(t, a.Load(context.Background()))
	t.Cleanup(func() { a.Close(context.Background()) })
	return a, peer
}

func event(t *testing.T, typ ws.EventType, payload any) client.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return client.Event{Type: typ, Payload: raw}
}

func TestOpenMarksConversationRead(t *testing.T) {
	api := newFakeAPI()
	a, _ := newAgent(t, api, Options{})
	ctx := context.Background()

	require.Len(t, a.Snapshot().Conversations, 1)
	assert.Equal(t, 3, a.Snapshot().Conversations[0].UnreadCount["alice"])

	assert.ErrorIs(t, a.Open(ctx, "nope"), ErrUnknownMatch)
	require.NoError(t, a.Open(ctx, "m1"))

	reads, _, _, _ := api.snapshot()
	assert.Equal(t, []string{"m1"}, reads)
	assert.Equal(t, 0, a.Snapshot().Conversations[0].UnreadCount["alice"])
	assert.Len(t, a.Items(), 2)

	// входящее в открытом разговоре сразу прочитано
	a.Handle(ctx, event(t, ws.EventNewMessage, model.Message{ID: "msg-3", MatchID: "m1", SenderID: "bob", Text: "?", Timestamp: time.Now().UTC()}))
	reads, _, _, _ = api.snapshot()
	assert.Equal(t, []string{"m1", "m1"}, reads)
	assert.Len(t, a.Items(), 3)
}

func TestSendClearsTyping(t *testing.T) {
	api := newFakeAPI()
	a, _ := newAgent(t, api, Options{})
	ctx := context.Background()

	_, err := a.Send(ctx, client.SendInput{Text: "hi"})
	assert.ErrorIs(t, err, ErrNoConversation)

	require.NoError(t, a.Open(ctx, "m1"))
	a.Keystroke(ctx)
	msg, err := a.Send(ctx, client.SendInput{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Text)

	_, typing, _, _ := api.snapshot()
	assert.Equal(t, []bool{true, false}, typing)
	assert.Len(t, a.Items(), 3)
}

func TestAcceptedDateCelebratesOnce(t *testing.T) {
	api := newFakeAPI()
	var (
		mu  sync.Mutex
		got []bool
	)
	a, _ := newAgent(t, api, Options{
		FullScreenCelebration: true,
		OnCelebrate: func(_ model.DateRequest, fullScreen bool) {
			mu.Lock()
			got = append(got, fullScreen)
			mu.Unlock()
		},
	})
	ctx := context.Background()
	require.NoError(t, a.Open(ctx, "m1"))

	accepted := model.DateRequest{ID: "d1", MatchID: "m1", SenderID: "alice", Title: "Dinner", Status: model.DateStatusAccepted}
	a.Handle(ctx, event(t, ws.EventDateRequest, accepted))
	a.Handle(ctx, event(t, ws.EventDateRequest, accepted))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true}, got)
	assert.Contains(t, a.State().Acceptance.Fired, "d1")
}

func TestIncomingCallAutoAnswer(t *testing.T) {
	api := newFakeAPI()
	a, peer := newAgent(t, api, Options{AutoAnswer: true})
	ctx := context.Background()

	offer := model.SessionDescription{Type: "offer", SDP: "o"}
	a.Handle(ctx, event(t, ws.EventCallIncoming, model.Call{ID: "c9", MatchID: "m1", CallerID: "bob", CalleeID: "alice", Offer: &offer, Status: model.CallStatusRinging}))

	_, _, _, answered := api.snapshot()
	assert.Equal(t, []string{"c9"}, answered)
	st, ok := a.CallState()
	require.True(t, ok)
	assert.Equal(t, model.CallStatusConnecting, st.Status)

	a.Handle(ctx, event(t, ws.EventICECandidate, ws.ICECandidatePayload{CallID: "c9", Candidate: model.ICECandidate{Candidate: json.RawMessage(`{"candidate":"late"}`)}}))
	peer.mu.Lock()
	assert.Len(t, peer.applied, 2)
	peer.mu.Unlock()

	// второй звонок во время активного: пропускается
	a.Handle(ctx, event(t, ws.EventCallIncoming, model.Call{ID: "c10", MatchID: "m1", CallerID: "bob", CalleeID: "alice", Offer: &offer, Status: model.CallStatusRinging}))
	_, _, _, answered = api.snapshot()
	assert.Equal(t, []string{"c9"}, answered)

	a.Handle(ctx, event(t, ws.EventCallUpdated, model.Call{ID: "c9", MatchID: "m1", Status: model.CallStatusEnded}))
	st, _ = a.CallState()
	assert.Equal(t, model.CallStatusEnded, st.Status)
	_, _, statuses, _ := api.snapshot()
	assert.Empty(t, statuses, "remote end is not written back")
}

func TestIncomingCallDeclinedWithoutAutoAnswer(t *testing.T) {
	api := newFakeAPI()
	offer := model.SessionDescription{Type: "offer", SDP: "o"}
	api.incoming = []model.Call{{ID: "c1", MatchID: "m1", CallerID: "bob", CalleeID: "alice", Offer: &offer, Status: model.CallStatusRinging}}
	_, _ = newAgent(t, api, Options{})

	_, _, statuses, answered := api.snapshot()
	assert.Empty(t, answered)
	assert.Equal(t, []model.CallStatus{model.CallStatusDeclined}, statuses)
}

func TestUnmatchEventMovesConversation(t *testing.T) {
	api := newFakeAPI()
	a, _ := newAgent(t, api, Options{})

	m := api.matches[0]
	m.IsUnmatched = true
	m.UnmatchedBy = "bob"
	a.Handle(context.Background(), event(t, ws.EventMatchUpdated, m))

	snap := a.Snapshot()
	assert.Empty(t, snap.Conversations)
	require.Len(t, snap.Unmatched, 1)
	assert.Equal(t, "m1", snap.Unmatched[0].ID)
}

func TestSwipeRightCreatesMatch(t *testing.T) {
	api := newFakeAPI()
	a, _ := newAgent(t, api, Options{})

	var h swipe.Handle
	unmount := a.Deck().Mount(&h)
	defer unmount()
	a.Deck().Push("carol", "dave")

	assert.True(t, h.Trigger(swipe.Right))
	assert.True(t, h.Trigger(swipe.Left))

	assert.Equal(t, []string{"carol"}, api.created)
	_, ok := a.store.Get("m-carol")
	assert.True(t, ok)
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "headless.yaml")

	st, err := LoadState(path)
	require.NoError(t, err)
	assert.True(t, st.Celebration())

	tracker := timeline.NewAcceptanceTracker()
	tracker.Observe([]model.DateRequest{{ID: "d1", Status: model.DateStatusPending}})
	tracker.Observe([]model.DateRequest{{ID: "d1", Status: model.DateStatusAccepted}})
	off := false
	require.NoError(t, SaveState(path, State{FullScreenCelebration: &off, Acceptance: tracker.Export()}))

	st, err = LoadState(path)
	require.NoError(t, err)
	assert.False(t, st.Celebration())

	restored := timeline.NewAcceptanceTracker()
	restored.Restore(st.Acceptance)
	// после перезапуска то же принятие не празднуется повторно
	assert.Empty(t, restored.Observe([]model.DateRequest{{ID: "d1", Status: model.DateStatusAccepted}}))
}

func TestAccepterDoesNotCelebrate(t *testing.T) {
	api := newFakeAPI()
	api.dates["m1"] = []model.DateRequest{{ID: "d1", MatchID: "m1", SenderID: "bob", Title: "Coffee",
		Date: "2025-06-01", Time: "10:00", Location: "Campus Cafe", Status: model.DateStatusPending, CreatedAt: time.Now().UTC()}}
	var celebrated []string
	a, _ := newAgent(t, api, Options{OnCelebrate: func(req model.DateRequest, _ bool) {
		celebrated = append(celebrated, req.ID)
	}})
	ctx := context.Background()
	require.NoError(t, a.Open(ctx, "m1"))

	req, err := a.RespondDate(ctx, "d1", model.DateStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, model.DateStatusAccepted, req.Status)
	assert.Empty(t, celebrated)

	canRespond, canCancel := a.DateActions(req)
	assert.False(t, canRespond)
	assert.True(t, canCancel)

	_, err = a.RespondDate(ctx, "d1", model.DateStatusDeclined)
	assert.ErrorIs(t, err, daterequest.ErrNotAllowed)
}

func TestCancelAcceptedDateHidesActions(t *testing.T) {
	api := newFakeAPI()
	a, _ := newAgent(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, a.Open(ctx, "m1"))

	// своё предложение принять нельзя
	_, err := a.RespondDate(ctx, "d1", model.DateStatusAccepted)
	assert.ErrorIs(t, err, daterequest.ErrNotAllowed)
	_, err = a.RespondDate(ctx, "nope", model.DateStatusAccepted)
	assert.ErrorIs(t, err, ErrUnknownRequest)

	_, err = api.setDate("d1", model.DateStatusAccepted)
	require.NoError(t, err)
	a.Handle(ctx, event(t, ws.EventDateRequest, api.dates["m1"][0]))

	cancelled, err := a.CancelDate(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.DateStatusCancelled, cancelled.Status)

	var shown *model.DateRequest
	for _, it := range a.Items() {
		if it.Kind == timeline.KindDateRequest {
			shown = it.DateRequest
		}
	}
	require.NotNil(t, shown)
	assert.Equal(t, model.DateStatusCancelled, shown.Status)
	canRespond, canCancel := a.DateActions(shown)
	assert.False(t, canRespond)
	assert.False(t, canCancel)

	_, err = a.CancelDate(ctx, "d1")
	assert.ErrorIs(t, err, daterequest.ErrNotAllowed)
}

func TestReplyEditDeleteAndJump(t *testing.T) {
	api := newFakeAPI()
	a, _ := newAgent(t, api, Options{HighlightDelay: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := a.JumpTo("msg-1")
	assert.ErrorIs(t, err, ErrNoConversation)
	require.NoError(t, a.Open(ctx, "m1"))

	own, err := a.Send(ctx, client.SendInput{Text: "my secret"})
	require.NoError(t, err)
	_, err = a.Reply(ctx, "missing", "?")
	assert.ErrorIs(t, err, ErrUnknownMessage)
	reply, err := a.Reply(ctx, own.ID, "scratch that")
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, own.ID, reply.ReplyTo.ID)

	idx, err := a.JumpTo(reply.ReplyTo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, own.ID, a.Highlighted())
	assert.Eventually(t, func() bool { return a.Highlighted() == "" }, time.Second, 5*time.Millisecond)
	_, err = a.JumpTo("missing")
	assert.ErrorIs(t, err, ErrUnknownMessage)

	edited, err := a.Edit(ctx, reply.ID, "never mind")
	require.NoError(t, err)
	assert.True(t, edited.Edited)

	// удаление цитируемого сообщения стирает и цитату в ответе
	require.NoError(t, a.Delete(ctx, own.ID))
	for _, it := range a.Items() {
		if it.Kind != timeline.KindMessage {
			continue
		}
		assert.NotContains(t, it.Message.Text, "my secret")
		switch it.Message.ID {
		case own.ID:
			assert.True(t, it.Message.Deleted)
			assert.Equal(t, model.DeletedMarker, it.Message.Text)
		case reply.ID:
			require.NotNil(t, it.Message.ReplyTo)
			assert.Equal(t, model.DeletedMarker, it.Message.ReplyTo.Text)
		}
	}
	assert.Equal(t, []string{reply.ID}, api.edited)
	assert.Equal(t, []string{own.ID}, api.deleted)
}

func TestUnmatchKeepsHistoryReadOnly(t *testing.T) {
	api := newFakeAPI()
	a, _ := newAgent(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, a.Open(ctx, "m1"))
	before := len(a.Items())

	require.NoError(t, a.Unmatch(ctx))
	snap := a.Snapshot()
	assert.Empty(t, snap.Conversations)
	require.Len(t, snap.Unmatched, 1)
	assert.Len(t, a.Items(), before, "history stays visible")

	a.Keystroke(ctx)
	_, err := a.Send(ctx, client.SendInput{Text: "still there?"})
	assert.ErrorIs(t, err, ErrUnmatched)
	_, err = a.ProposeDate(ctx, daterequest.Draft{Title: "x", Date: "2025-06-01", Time: "10:00", Location: "y"})
	assert.ErrorIs(t, err, ErrUnmatched)
	_, err = a.Call(ctx)
	assert.ErrorIs(t, err, ErrUnmatched)

	_, typing, _, _ := api.snapshot()
	assert.NotContains(t, typing, true)

	// отмена своего предложения остаётся доступной
	cancelled, err := a.CancelDate(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.DateStatusCancelled, cancelled.Status)
}

