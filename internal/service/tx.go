package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/repository"
)

type txBeginner interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
}

// inTx runs fn inside a transaction, committing on success and rolling back
// on any error or panic.
func inTx(ctx context.Context, db txBeginner, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// withRetry runs an allocation once more when the store rolled it back on
// a deadlock or lock-wait timeout.  A second failure of that kind is
// reported as ErrConcurrentConflict so callers can tell it apart from a
// genuine capacity refusal.
func withRetry(ctx context.Context, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || !repository.IsRetryable(err) {
		return err
	}
	logger.Warn("allocation lost a lock race; retrying", zap.String("op", op), zap.Error(err))
	err = fn(ctx)
	if err != nil && repository.IsRetryable(err) {
		return fmt.Errorf("%w: %s: %v", ErrConcurrentConflict, op, err)
	}
	return err
}

