package classifier

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker guarding a Callable. Zero value
// is not usable; use NewBreakerConfig for sane defaults.
type BreakerConfig struct {
	Name                string
	MaxHalfOpenRequests  uint32
	OpenTimeout          time.Duration
	FailureRatioToTrip   float64
	MinRequestsToTrip    uint32
}

// NewBreakerConfig returns defaults suitable for an external LLM call:
// trip once at least 5 requests have been counted and 60% of them failed
// (counts accumulate while closed and are not reset on an interval), stay
// open for 30s before allowing a single half-open probe.
func NewBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxHalfOpenRequests: 1,
		OpenTimeout:         30 * time.Second,
		FailureRatioToTrip:  0.6,
		MinRequestsToTrip:   5,
	}
}

// BreakerCallable wraps a Callable with a gobreaker circuit breaker so a
// failing provider stops absorbing worker-pool capacity on every run.
type BreakerCallable struct {
	inner   Callable
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerCallable wraps inner with a circuit breaker configured per cfg.
func NewBreakerCallable(inner Callable, cfg BreakerConfig) *BreakerCallable {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxHalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequestsToTrip {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatioToTrip
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("classifier circuit breaker %q: %s -> %s", name, from, to)
		},
	}
	return &BreakerCallable{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Complete executes the wrapped call through the breaker. A tripped
// breaker returns gobreaker.ErrOpenState without ever invoking inner.
func (b *BreakerCallable) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		return "", fmt.Errorf("classifier call failed: %w", err)
	}
	text, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("classifier call returned unexpected type %T", result)
	}
	return text, nil
}
