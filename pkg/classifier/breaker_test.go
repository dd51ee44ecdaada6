package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerCallable_PassesThroughOnSuccess(t *testing.T) {
	inner := CallableFunc(func(ctx context.Context, sys, user string) (string, error) {
		return "ok", nil
	})
	b := NewBreakerCallable(inner, NewBreakerConfig("test"))

	out, err := b.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestBreakerCallable_TripsAfterRepeatedFailures(t *testing.T) {
	boom := errors.New("provider unavailable")
	inner := CallableFunc(func(ctx context.Context, sys, user string) (string, error) {
		return "", boom
	})
	cfg := NewBreakerConfig("test-trip")
	cfg.MinRequestsToTrip = 2
	cfg.FailureRatioToTrip = 0.5
	cfg.OpenTimeout = time.Minute
	b := NewBreakerCallable(inner, cfg)

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), "sys", "user")
		require.Error(t, err)
	}

	_, err := b.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier call failed")
}
