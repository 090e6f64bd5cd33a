package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the active transaction from context, if any.
// Repositories route their queries through it so that multi-statement
// operations stay atomic.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the tenant-scoped connection and returns a
// derived context carrying it. The caller owns Commit/Rollback.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	return WithTxOptions(ctx, pgx.TxOptions{})
}

// WithTxOptions is WithTx with explicit isolation options.
func WithTxOptions(ctx context.Context, opts pgx.TxOptions) (context.Context, pgx.Tx, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, fmt.Errorf("no database connection in context")
	}
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// serializationFailure reports whether err is a retryable concurrency error:
// serialization_failure (40001) or deadlock_detected (40P01).
func serializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// RunSerializable executes fn inside a SERIALIZABLE transaction, retrying up
// to maxRetries times with jittered backoff when the database reports a
// serialization failure. Any other error from fn aborts immediately; fn must
// be safe to re-run from scratch.
func RunSerializable(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 25 * time.Millisecond
			backoff += time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		txCtx, tx, err := WithTxOptions(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}

		if err := fn(txCtx); err != nil {
			_ = tx.Rollback(ctx)
			if serializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			if serializationFailure(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	}
	return fmt.Errorf("transaction retries exhausted after %d attempts: %w", maxRetries+1, lastErr)
}
