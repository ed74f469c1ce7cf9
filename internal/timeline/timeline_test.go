package timeline

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frinder/internal/model"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func msg(id string, sec int) model.Message {
	return model.Message{ID: id, SenderID: "alice", Text: id, Timestamp: t0.Add(time.Duration(sec) * time.Second)}
}

func date(id string, sec int, status model.DateStatus) model.DateRequest {
	return model.DateRequest{ID: id, MatchID: "m1", SenderID: "alice", Status: status, CreatedAt: t0.Add(time.Duration(sec) * time.Second)}
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID()
	}
	return out
}

func TestMergeInterleavesByTimestamp(t *testing.T) {
	items := Merge(
		[]model.Message{msg("m3", 3), msg("m1", 1)},
		[]model.DateRequest{date("d2", 2, model.DateStatusPending)},
	)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"m1", "d2", "m3"}, ids(items))
	assert.Equal(t, KindMessage, items[0].Kind)
	assert.Equal(t, KindDateRequest, items[1].Kind)
}

func TestMergeIsStable(t *testing.T) {
	items := Merge(
		[]model.Message{msg("a", 5), msg("b", 5)},
		[]model.DateRequest{date("d", 5, model.DateStatusPending)},
	)
	assert.Equal(t, []string{"a", "b", "d"}, ids(items))
}

func TestTimelineRebuildsOnEitherSource(t *testing.T) {
	tl := New(nil, nil)
	tl.SetMessages([]model.Message{msg("m1", 1), msg("m3", 3)})
	items := tl.SetDateRequests([]model.DateRequest{date("d2", 2, model.DateStatusPending)})
	assert.Equal(t, []string{"m1", "d2", "m3"}, ids(items))

	edited := msg("m1", 1)
	edited.Text = "edited"
	edited.Edited = true
	items = tl.UpsertMessage(edited)
	assert.Equal(t, "edited", items[0].Message.Text)
	assert.Len(t, tl.Messages(), 2)

	items = tl.UpsertMessage(msg("m4", 4))
	assert.Equal(t, []string{"m1", "d2", "m3", "m4"}, ids(items))
}

func TestCelebrationFiresOncePerRequest(t *testing.T) {
	var fired int32
	tl := New(nil, func(model.DateRequest) { atomic.AddInt32(&fired, 1) })

	tl.SetDateRequests([]model.DateRequest{date("d1", 1, model.DateStatusPending)})
	assert.EqualValues(t, 0, atomic.LoadInt32(&fired))

	tl.SetDateRequests([]model.DateRequest{date("d1", 1, model.DateStatusAccepted)})
	tl.SetDateRequests([]model.DateRequest{date("d1", 1, model.DateStatusAccepted)})
	tl.SetDateRequests([]model.DateRequest{date("d1", 1, model.DateStatusAccepted), date("d2", 2, model.DateStatusPending)})
	assert.EqualValues(t, 1, atomic.LoadInt32(&fired))

	tl.UpsertDateRequest(date("d1", 1, model.DateStatusCancelled))
	tl.UpsertDateRequest(date("d1", 1, model.DateStatusAccepted))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fired), "same id never fires twice")
}

func TestAcceptanceTrackerFirstSnapshotDoesNotFire(t *testing.T) {
	tr := NewAcceptanceTracker()
	assert.Empty(t, tr.Observe([]model.DateRequest{date("d1", 1, model.DateStatusAccepted)}))
	assert.Empty(t, tr.Observe([]model.DateRequest{date("d1", 1, model.DateStatusAccepted)}))
}

func TestAcceptanceTrackerSurvivesReconnect(t *testing.T) {
	tr := NewAcceptanceTracker()
	tr.Observe([]model.DateRequest{date("d1", 1, model.DateStatusPending)})
	st := tr.Export()

	restored := NewAcceptanceTracker()
	restored.Restore(st)
	got := restored.Observe([]model.DateRequest{date("d1", 1, model.DateStatusAccepted)})
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].ID)

	again := NewAcceptanceTracker()
	again.Restore(restored.Export())
	assert.Empty(t, again.Observe([]model.DateRequest{date("d1", 1, model.DateStatusAccepted)}))
}

func TestHighlighterClearsAfterDelay(t *testing.T) {
	h := NewHighlighter(20 * time.Millisecond)
	msgs := []model.Message{msg("m1", 1), msg("m2", 2)}

	idx, ok := h.Resolve(msgs, "m2")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "m2", h.Current())

	_, ok = h.Resolve(msgs, "missing")
	assert.False(t, ok)
	assert.Equal(t, "m2", h.Current())

	assert.Eventually(t, func() bool { return h.Current() == "" }, time.Second, 5*time.Millisecond)
}

func TestHighlighterRestartKeepsNewest(t *testing.T) {
	h := NewHighlighter(30 * time.Millisecond)
	msgs := []model.Message{msg("m1", 1), msg("m2", 2)}
	h.Resolve(msgs, "m1")
	h.Resolve(msgs, "m2")
	assert.Equal(t, "m2", h.Current())
	h.Stop()
	assert.Equal(t, "", h.Current())
}
