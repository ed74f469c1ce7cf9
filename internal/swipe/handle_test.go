package swipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriggerWithoutBinding(t *testing.T) {
	var h Handle
	assert.False(t, h.Trigger(Right))
}

func TestHandlesAreIndependent(t *testing.T) {
	var a, b Handle
	var gotA, gotB []Direction
	a.Bind(func(d Direction) { gotA = append(gotA, d) })
	b.Bind(func(d Direction) { gotB = append(gotB, d) })

	assert.True(t, a.Trigger(Left))
	assert.True(t, b.Trigger(Right))
	assert.False(t, a.Trigger("up"))

	assert.Equal(t, []Direction{Left}, gotA)
	assert.Equal(t, []Direction{Right}, gotB)
}

func TestStaleUnbindKeepsNewerBinding(t *testing.T) {
	var h Handle
	calls := 0
	unbindOld := h.Bind(func(Direction) {})
	unbindNew := h.Bind(func(Direction) { calls++ })

	unbindOld()
	assert.True(t, h.Trigger(Left))
	assert.Equal(t, 1, calls)

	unbindNew()
	assert.False(t, h.Trigger(Left))
}

func TestDeckConsumesTopCard(t *testing.T) {
	type swiped struct {
		user string
		dir  Direction
	}
	var got []swiped
	deck := NewDeck(func(u string, d Direction) { got = append(got, swiped{u, d}) })
	deck.Push("bob", "carol")

	var h Handle
	unmount := deck.Mount(&h)
	assert.True(t, h.Trigger(Right))
	top, ok := deck.Top()
	assert.True(t, ok)
	assert.Equal(t, "carol", top)

	assert.True(t, h.Trigger(Left))
	// пустая колода: жест принят, но ничего не происходит
	assert.True(t, h.Trigger(Left))
	assert.Equal(t, []swiped{{"bob", Right}, {"carol", Left}}, got)

	unmount()
	assert.False(t, h.Trigger(Right))
}
