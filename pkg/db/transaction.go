// Package db holds the storage-agnostic transaction contract shared by the
// mongo and postgres backends.
package db

import (
	"context"
	"fmt"

	apperrors "consultbook/pkg/errors"
)

// TransactionFunc runs inside a transaction. Repositories called with the
// ctx it receives join that transaction.
type TransactionFunc func(ctx context.Context) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

// TxError passes domain errors raised inside fn through unchanged and wraps
// driver failures.
func TxError(err error) error {
	if err == nil || apperrors.IsAppError(err) {
		return err
	}
	return fmt.Errorf("transaction failed: %w", err)
}
