package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrVectorUnsupported marks a store that cannot index or query vectors.
var ErrVectorUnsupported = errors.New("vector fields not supported")

// Postgres error codes raised when the pgvector extension, column or
// operator is missing.
var vectorUnsupportedCodes = map[string]bool{
	"42704": true, // undefined_object: type "vector"
	"42703": true, // undefined_column: embedding
	"42883": true, // undefined_function: operator <=>
	"0A000": true, // feature_not_supported
}

// IsVectorUnsupported reports whether err means the store has no vector
// support. It checks the sentinel, then Postgres error codes, and only then
// falls back to message matching.
func IsVectorUnsupported(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrVectorUnsupported) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return vectorUnsupportedCodes[pgErr.Code]
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "vector") && !strings.Contains(msg, "embedding") {
		return false
	}
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "unsupported") ||
		strings.Contains(msg, "not supported")
}
