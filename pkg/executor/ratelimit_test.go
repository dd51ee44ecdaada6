package executor

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/pipeline"
	"github.com/foiacase/caseruntime/pkg/store"
)

type fakeChannel struct {
	provider store.ExecutionProvider
	sent     bool
	err      error
}

func (f *fakeChannel) Provider() store.ExecutionProvider { return f.provider }

func (f *fakeChannel) Send(ctx context.Context, in pipeline.SendIntent) (string, error) {
	f.sent = true
	if f.err != nil {
		return "", f.err
	}
	return "provider-msg-id", nil
}

func TestRateLimitedChannel_AllowsUnderCap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM executions`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	client := store.NewClientFromDB(db)
	inner := &fakeChannel{provider: store.ProviderEmail}
	rl := NewRateLimitedChannel(inner, client, &config.ExecutorConfig{OutboundRatePerHour: 3})

	id, err := rl.Send(context.Background(), pipeline.SendIntent{Case: &store.Case{ID: 1}})
	require.NoError(t, err)
	assert.Equal(t, "provider-msg-id", id)
	assert.True(t, inner.sent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitedChannel_BlocksAtCap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM executions`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	client := store.NewClientFromDB(db)
	inner := &fakeChannel{provider: store.ProviderEmail}
	rl := NewRateLimitedChannel(inner, client, &config.ExecutorConfig{OutboundRatePerHour: 3})

	_, err = rl.Send(context.Background(), pipeline.SendIntent{Case: &store.Case{ID: 1}})
	require.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, inner.sent)
}
