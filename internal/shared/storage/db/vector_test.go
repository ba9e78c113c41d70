package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsVectorUnsupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel wrapped", err: fmt.Errorf("insert: %w", ErrVectorUnsupported), want: true},
		{name: "missing type", err: &pgconn.PgError{Code: "42704", Message: `type "vector" does not exist`}, want: true},
		{name: "missing operator", err: fmt.Errorf("query: %w", &pgconn.PgError{Code: "42883"}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", Message: "vector duplicate"}, want: false},
		{name: "message fallback", err: errors.New(`column "embedding" does not exist`), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsVectorUnsupported(tt.err); got != tt.want {
				t.Fatalf("IsVectorUnsupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
