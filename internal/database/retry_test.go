package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), "test", 3, time.Millisecond, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "test", 2, time.Millisecond, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	require.EqualError(t, err, "down")
	require.Equal(t, 2, calls)
}
