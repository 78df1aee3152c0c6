package holdings

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCharacterNotFound   = errors.New("character not found")
)

// Holdings is the persistent-storage side of per-character reward-item
// balances. The tx-scoped methods exist so callers can serialize a full
// read-check-apply sequence against concurrent mutations of the same row;
// never update a count outside such a transaction.
type Holdings interface {
	Exists(tx *sql.Tx, realmID int, character string) error
	Balance(ctx context.Context, realmID int, character string, itemID int) (int64, error)
	// LockCount locks the row FOR UPDATE and returns its count.
	// found is false when no row exists (zero balance).
	LockCount(tx *sql.Tx, realmID int, character string, itemID int) (count int64, found bool, err error)
	IncreaseCount(tx *sql.Tx, realmID int, character string, itemID int, amount int64) error
	InsertRow(tx *sql.Tx, realmID int, character string, itemID int, amount int64) error
	// DecreaseCount applies a conditional decrement; zero rows affected
	// means the balance was insufficient.
	DecreaseCount(tx *sql.Tx, realmID int, character string, itemID int, amount int64) error
	DeleteRow(tx *sql.Tx, realmID int, character string, itemID int) error
}
