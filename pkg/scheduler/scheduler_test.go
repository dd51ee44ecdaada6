package scheduler

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/runengine"
	"github.com/foiacase/caseruntime/pkg/store"
)

func TestRunWithLease_SkipsWhenLockNotAcquired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pg_try_advisory_lock($1)`)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	client := store.NewClientFromDB(db)
	s := New(client, runengine.NewDispatcher(client, 0), config.DefaultSchedulerConfig())

	ran := false
	s.runWithLease(context.Background(), "test_job", func(context.Context) { ran = true })

	assert.False(t, ran)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunWithLease_RunsAndReleasesWhenLockAcquired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pg_try_advisory_lock($1)`)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_unlock($1)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	client := store.NewClientFromDB(db)
	s := New(client, runengine.NewDispatcher(client, 0), config.DefaultSchedulerConfig())

	ran := false
	s.runWithLease(context.Background(), "test_job", func(context.Context) { ran = true })

	assert.True(t, ran)
	require.NoError(t, mock.ExpectationsWereMet())
}
