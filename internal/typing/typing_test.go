package typing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu     sync.Mutex
	writes []bool
	err    error
}

func (r *recorder) SetTyping(_ context.Context, _ string, typing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, typing)
	return r.err
}

func (r *recorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.writes...)
}

func TestKeystrokeClearsAfterInactivity(t *testing.T) {
	rec := &recorder{}
	s := New(rec, "m1", 30*time.Millisecond)

	s.Keystroke(context.Background())
	assert.Equal(t, []bool{true}, rec.snapshot())

	assert.Eventually(t, func() bool {
		w := rec.snapshot()
		return len(w) == 2 && !w[1]
	}, time.Second, 5*time.Millisecond)
}

func TestKeystrokeRestartsTimer(t *testing.T) {
	rec := &recorder{}
	s := New(rec, "m1", 60*time.Millisecond)

	s.Keystroke(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Keystroke(context.Background())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, []bool{true, true}, rec.snapshot(), "restarted timer must not fire yet")

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
}

func TestStopClearsImmediately(t *testing.T) {
	rec := &recorder{}
	s := New(rec, "m1", 30*time.Millisecond)

	s.Keystroke(context.Background())
	s.Stop(context.Background())
	assert.Equal(t, []bool{true, false}, rec.snapshot())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.snapshot(), "cancelled timer must not write again")

	s.Stop(context.Background())
	assert.Equal(t, []bool{true, false, false}, rec.snapshot(), "send clears unconditionally")
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	rec := &recorder{}
	s := New(rec, "m1", time.Hour)
	s.Keystroke(context.Background())
	s.Close()
	s.Close()
	s.Keystroke(context.Background())
	assert.Equal(t, []bool{true, false}, rec.snapshot())
}

func TestWriteErrorsAreSwallowed(t *testing.T) {
	rec := &recorder{err: errors.New("offline")}
	s := New(rec, "m1", time.Hour)
	assert.NotPanics(t, func() {
		s.Keystroke(context.Background())
		s.Stop(context.Background())
	})
	assert.Len(t, rec.snapshot(), 2)
}
