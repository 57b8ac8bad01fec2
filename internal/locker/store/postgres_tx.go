package store

import (
	"context"
	"database/sql"
	"time"

	"privylocker/internal/locker/ports"
	dErrors "privylocker/pkg/domain-errors"
)

// PostgresTx runs each transaction in one database transaction over a
// PostgresStore bound to it.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

var _ ports.StoreTx = (*PostgresTx)(nil)

func NewPostgresTxRunner(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db}
}

// WithTimeout overrides the default transaction timeout.
func (t *PostgresTx) WithTimeout(d time.Duration) *PostgresTx {
	t.timeout = d
	return t
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(NewPostgresTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}
