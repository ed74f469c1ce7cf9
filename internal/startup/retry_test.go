package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryGivesUpAfterDeadline(t *testing.T) {
	calls := 0
	err := retry(context.Background(), "thing", -time.Second, func(context.Context) error {
		calls++
		return errors.New("refused")
	})
	assert.ErrorContains(t, err, "refused")
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, "thing", time.Hour, func(context.Context) error { return errors.New("refused") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrySucceeds(t *testing.T) {
	assert.NoError(t, retry(context.Background(), "thing", time.Hour, func(context.Context) error { return nil }))
}
