package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUniqueViolation is returned by stores that do not surface Postgres
// error codes when an insert collides with an existing unique key.
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrCheckViolation mirrors a Postgres CHECK failure for stores that enforce
// the same row rules in code.
var ErrCheckViolation = errors.New("check constraint violation")

// IsUniqueViolation reports whether err is a duplicate key error from either
// store implementation.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, ErrUniqueViolation) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsCheckViolation reports whether err is a CHECK constraint error from either
// store implementation.
func IsCheckViolation(err error) bool {
	if errors.Is(err, ErrCheckViolation) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
