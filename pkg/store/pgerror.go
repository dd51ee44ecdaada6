package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgErrorCode extracts the Postgres SQLSTATE from err, or "" if err did not
// originate from the server (e.g. context cancellation, driver errors).
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUniqueViolation reports whether err is a unique constraint violation
// (SQLSTATE 23505), the signal InsertRun/UpsertProposal use to translate a
// partial-unique-index conflict into a domain-specific sentinel error.
func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == "23505"
}

// constraintName returns the name of the violated constraint, when err is a
// *pgconn.PgError, so callers can distinguish which unique index fired
// (e.g. the active-run index vs. the scheduled_key index).
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
