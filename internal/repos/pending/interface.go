package pending

import (
	"context"
	"database/sql"
	"errors"
)

var ErrDuplicateWithdrawal = errors.New("duplicate withdrawal")

// Row is one in-flight withdrawal. The full tuple is the idempotency key
// the payment service submits; RefundUnlock is a unix timestamp after which
// the refund sweep may compensate.
type Row struct {
	RealmID      int
	Character    string
	RefundUnlock int64
	Amount       int64
}

type Pending interface {
	// Insert persists the commit point of a withdrawal saga.
	// A duplicate tuple maps to ErrDuplicateWithdrawal.
	Insert(ctx context.Context, row Row) error
	Exists(ctx context.Context, row Row) (bool, error)
	// Delete removes the row; deleted=false means it was already gone,
	// which callers treat as an idempotent no-op.
	Delete(ctx context.Context, row Row) (deleted bool, err error)
	// DeleteTx is Delete inside a caller-owned transaction, used by the
	// refund sweep as its at-most-once guard.
	DeleteTx(tx *sql.Tx, row Row) (deleted bool, err error)
	ListExpired(ctx context.Context, asOf int64) ([]Row, error)
	List(ctx context.Context) ([]Row, error)
}
