package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frinder/internal/storage"
)

var _ storage.Store = (*Client)(nil)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newClient() (*Client, *clock) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New()
	c.now = clk.now
	return c, clk
}

func TestTypingExpires(t *testing.T) {
	c, clk := newClient()
	ctx := context.Background()

	require.NoError(t, c.SetTyping(ctx, "m", "u", 3*time.Second))
	on, _ := c.IsTyping(ctx, "m", "u")
	assert.True(t, on)

	clk.t = clk.t.Add(3 * time.Second)
	on, _ = c.IsTyping(ctx, "m", "u")
	assert.False(t, on)
}

func TestClearTyping(t *testing.T) {
	c, _ := newClient()
	ctx := context.Background()
	require.NoError(t, c.SetTyping(ctx, "m", "u", time.Minute))
	require.NoError(t, c.ClearTyping(ctx, "m", "u"))
	on, _ := c.IsTyping(ctx, "m", "u")
	assert.False(t, on)
}

func TestMarkOnce(t *testing.T) {
	c, clk := newClient()
	ctx := context.Background()

	first, _ := c.MarkOnce(ctx, "date:1:accepted", time.Hour)
	second, _ := c.MarkOnce(ctx, "date:1:accepted", time.Hour)
	other, _ := c.MarkOnce(ctx, "date:1:cancelled", time.Hour)
	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, other)

	clk.t = clk.t.Add(time.Hour)
	again, _ := c.MarkOnce(ctx, "date:1:accepted", time.Hour)
	assert.True(t, again)
}

func TestCheckRateLimit(t *testing.T) {
	c, clk := newClient()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := c.CheckRateLimit(ctx, "ip", time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := c.CheckRateLimit(ctx, "ip", time.Minute, 3)
	assert.False(t, ok)

	clk.t = clk.t.Add(time.Minute + time.Second)
	ok, _ = c.CheckRateLimit(ctx, "ip", time.Minute, 3)
	assert.True(t, ok)
}
