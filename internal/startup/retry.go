package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/frinder/internal/logger"
)

const maxBackoff = 30 * time.Second

// retry вызывает connect, пока он не пройдёт или не истечёт maxWait. Пауза удваивается до maxBackoff.
func retry(ctx context.Context, what string, maxWait time.Duration, connect func(ctx context.Context) error) error {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		err := connect(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
