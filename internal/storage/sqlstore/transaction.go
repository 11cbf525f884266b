package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"jotihunt/internal/retry"
)

type ctxKey string

const txKey ctxKey = "tx"

type TransactionManager struct {
	db *DB
}

func NewTransactionManager(db *DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// WithTransaction runs fn in a transaction carried by the context. The whole
// transaction is retried by the write gate when the store is busy, so fn must
// only touch the store. A nested call joins the outer transaction.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if GetTxFromContext(ctx) != nil {
		return fn(ctx)
	}
	return retry.Do(ctx, tm.db.gate, func() error {
		return tm.runOnce(ctx, fn)
	})
}

func (tm *TransactionManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := tm.db.x.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func GetTxFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey).(*sqlx.Tx)
	return tx
}

func GetExecutor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx := GetTxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}
