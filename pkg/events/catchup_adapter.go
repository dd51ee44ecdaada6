package events

import (
	"context"
	"encoding/json"

	"github.com/foiacase/caseruntime/pkg/store"
)

// eventQuerier abstracts the event query method needed by
// StoreCatchupAdapter. Implemented by *store.Client.
type eventQuerier interface {
	GetEventsSince(ctx context.Context, channel string, sinceID, limit int) ([]store.EventRow, error)
}

// StoreCatchupAdapter wraps an eventQuerier to implement CatchupQuerier.
type StoreCatchupAdapter struct {
	querier eventQuerier
}

// NewStoreCatchupAdapter creates a CatchupQuerier backed by the events
// table.
func NewStoreCatchupAdapter(querier eventQuerier) *StoreCatchupAdapter {
	return &StoreCatchupAdapter{querier: querier}
}

// GetCatchupEvents queries events since sinceID up to limit for the
// catchup mechanism.
func (a *StoreCatchupAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	rows, err := a.querier.GetEventsSince(ctx, channel, sinceID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(rows))
	for i, row := range rows {
		var payload map[string]interface{}
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return nil, err
		}
		result[i] = CatchupEvent{
			ID:      int(row.ID),
			Payload: payload,
		}
	}
	return result, nil
}
