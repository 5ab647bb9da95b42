package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrSequenceTaken is returned when a write would give two stops of one trip
// the same sequence.
var ErrSequenceTaken = errors.New("sequence already taken in trip")

const pgUniqueViolation = "23505"

// IsUniqueViolation recognizes unique-index failures from lib/pq, pgx and SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
