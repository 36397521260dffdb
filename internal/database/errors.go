package database

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// UniqueViolation reports whether err is a unique constraint violation.
// When it is, the name of the violated constraint is returned as well.
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != pgerrcode.UniqueViolation {
		return "", false
	}
	return pgErr.ConstraintName, true
}

// IsDatabaseError reports whether err originates from the PostgreSQL server or the connection to it.
func IsDatabaseError(err error) bool {
	if errors.Is(err, ErrClosed) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr) || pgconn.Timeout(err)
}
