package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/pipeline"
	"github.com/foiacase/caseruntime/pkg/store"
)

// RetryingChannel wraps a provider Channel with exponential backoff
// (cenkalti/backoff/v4, a direct dependency also carried by
// jordigilh-kubernaut) and a gobreaker circuit breaker, and writes to the
// dead-letter queue once the retry budget is exhausted, per spec.md
// §4.6 ("Failures write to the Dead-Letter Queue after
// retry_count >= max_retries"). No in-pack source uses
// cenkalti/backoff directly — only a comment mentions exponential
// backoff in passing — so the retry loop below follows the library's
// documented public API rather than a pack example.
type RetryingChannel struct {
	inner      pipeline.Channel
	client     *store.Client
	cfg        *config.ExecutorConfig
	breaker    *gobreaker.CircuitBreaker
}

func NewRetryingChannel(inner pipeline.Channel, client *store.Client, cfg *config.ExecutorConfig) *RetryingChannel {
	name := fmt.Sprintf("executor-%s", inner.Provider())
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}
	return &RetryingChannel{
		inner:   inner,
		client:  client,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (r *RetryingChannel) Provider() store.ExecutionProvider { return r.inner.Provider() }

// Send retries the underlying channel's Send with exponential backoff up
// to cfg.MaxRetries times, each attempt gated by the circuit breaker. If
// every attempt fails, the last error is written to the dead-letter queue
// for the case and returned to the caller.
func (r *RetryingChannel) Send(ctx context.Context, in pipeline.SendIntent) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.BackoffSeed
	policy.MaxElapsedTime = 0
	bounded := backoff.WithMaxRetries(policy, uint64(r.cfg.MaxRetries))
	withCtx := backoff.WithContext(bounded, ctx)

	var providerMessageID string
	var lastErr error
	attempts := 0

	operation := func() error {
		attempts++
		result, err := r.breaker.Execute(func() (interface{}, error) {
			return r.inner.Send(ctx, in)
		})
		if err != nil {
			lastErr = err
			return err
		}
		providerMessageID, _ = result.(string)
		return nil
	}

	if err := backoff.Retry(operation, withCtx); err != nil {
		caseID := in.Case.ID
		if _, dlqErr := r.client.InsertDeadLetter(ctx, string(r.inner.Provider()), in.Proposal.ProposalKey, in, err.Error(), attempts, &caseID); dlqErr != nil {
			return "", fmt.Errorf("sending via %s failed (%w) and dead-letter insert also failed: %v", r.inner.Provider(), lastErr, dlqErr)
		}
		return "", fmt.Errorf("sending via %s failed after %d attempts, written to dead-letter queue: %w", r.inner.Provider(), attempts, lastErr)
	}

	return providerMessageID, nil
}
