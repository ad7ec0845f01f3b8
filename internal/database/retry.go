package database

import (
	"context"
	"time"

	"github.com/siteadmin/content-services/pkg/logger"
)

// Retry calls connect up to attempts times with doubling backoff, to ride out
// databases that start after the service.
func Retry[T any](ctx context.Context, name string, attempts int, backoff time.Duration, connect func(context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err = connect(ctx)
		if err == nil {
			return out, nil
		}
		logger.Warnf("attempt %d/%d: failed to connect to %s: %v", attempt, attempts, name, err)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return out, err
}
