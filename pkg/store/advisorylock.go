package store

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// TryAcquireCaseLock attempts to acquire the session-level advisory lock
// keyed by the case id itself, the second of the three redundant single-flight
// mechanisms described in spec.md §5. The lock is held for the lifetime of
// conn and must be released with ReleaseCaseLock on the same connection.
//
// conn is a single checked-out *sql.Conn (not the pool) because
// session-level advisory locks are tied to the backend connection that
// took them; pgx's connection pool can otherwise hand the same physical
// connection to a different caller mid-lock.
func TryAcquireCaseLock(ctx context.Context, conn *sql.Conn, caseID int64) (bool, error) {
	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, caseID).Scan(&acquired); err != nil {
		return false, fmt.Errorf("failed to attempt advisory lock for case %d: %w", caseID, err)
	}
	return acquired, nil
}

// ReleaseCaseLock releases a lock taken by TryAcquireCaseLock on the same
// connection.
func ReleaseCaseLock(ctx context.Context, conn *sql.Conn, caseID int64) error {
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, caseID); err != nil {
		return fmt.Errorf("failed to release advisory lock for case %d: %w", caseID, err)
	}
	return nil
}

// LockKeyHash maps an arbitrary string key (e.g. a scheduler leader-lease
// name) onto the int64 keyspace pg_try_advisory_lock expects.
func LockKeyHash(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// TryAcquireNamedLock is TryAcquireCaseLock generalized to an arbitrary
// string key, used by the scheduler's leader lease (spec.md §4.7) where
// the lock protects a named sweep rather than a case row.
func TryAcquireNamedLock(ctx context.Context, conn *sql.Conn, key string) (bool, error) {
	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, LockKeyHash(key)).Scan(&acquired); err != nil {
		return false, fmt.Errorf("failed to attempt advisory lock for key %q: %w", key, err)
	}
	return acquired, nil
}

// ReleaseNamedLock releases a lock taken by TryAcquireNamedLock on the
// same connection.
func ReleaseNamedLock(ctx context.Context, conn *sql.Conn, key string) error {
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, LockKeyHash(key)); err != nil {
		return fmt.Errorf("failed to release advisory lock for key %q: %w", key, err)
	}
	return nil
}
