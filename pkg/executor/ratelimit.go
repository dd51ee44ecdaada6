package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/pipeline"
	"github.com/foiacase/caseruntime/pkg/store"
)

// ErrRateLimited is returned by RateLimitedChannel.Send when a case has
// already hit its outbound cap for the current hour.
var ErrRateLimited = fmt.Errorf("outbound rate limit exceeded for case")

// RateLimitedChannel enforces spec.md §4.6's per-case outbound cap ahead
// of an inner Channel, backed by a database count rather than an
// in-memory window (legator's RateLimiter keeps counts per agent in a
// map) since executions span worker-pool replicas and must share one
// view of a case's recent sends.
type RateLimitedChannel struct {
	inner  pipeline.Channel
	client *store.Client
	cfg    *config.ExecutorConfig
}

func NewRateLimitedChannel(inner pipeline.Channel, client *store.Client, cfg *config.ExecutorConfig) *RateLimitedChannel {
	return &RateLimitedChannel{inner: inner, client: client, cfg: cfg}
}

func (r *RateLimitedChannel) Provider() store.ExecutionProvider { return r.inner.Provider() }

func (r *RateLimitedChannel) Send(ctx context.Context, in pipeline.SendIntent) (string, error) {
	count, err := r.client.CountOutboundExecutionsSince(ctx, in.Case.ID, time.Now().Add(-time.Hour))
	if err != nil {
		return "", fmt.Errorf("checking outbound rate limit for case %d: %w", in.Case.ID, err)
	}
	if count >= r.cfg.OutboundRatePerHour {
		return "", fmt.Errorf("%w %d (%d/%d in the last hour)", ErrRateLimited, in.Case.ID, count, r.cfg.OutboundRatePerHour)
	}
	return r.inner.Send(ctx, in)
}
