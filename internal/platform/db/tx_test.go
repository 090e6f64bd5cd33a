package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestSerializationFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"wrapped serialization failure", fmt.Errorf("update visit: %w", &pgconn.PgError{Code: "40001"}), true},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serializationFailure(tt.err); got != tt.want {
				t.Errorf("serializationFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunSerializable_NoConnection(t *testing.T) {
	// Without a tenant-scoped connection in context the transaction cannot
	// start, and the error surfaces without retries.
	err := RunSerializable(context.Background(), 3, func(ctx context.Context) error {
		t.Fatal("fn should not run without a connection")
		return nil
	})
	if err == nil {
		t.Fatal("expected error when no connection is in context")
	}
}

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
}
