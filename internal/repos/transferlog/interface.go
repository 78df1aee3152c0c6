package transferlog

import (
	"context"
	"errors"
)

var ErrDuplicateTransfer = errors.New("duplicate transfer")

// Entry is one confirmed on-chain movement as asserted by the payment
// service. The tables are append-only; tx_hash is the natural key.
type Entry struct {
	TxHash    string
	RealmID   int
	Character string
	Wallet    string
	Amount    int64
}

type TransferLog interface {
	InsertDeposit(ctx context.Context, e Entry) error
	InsertWithdrawal(ctx context.Context, e Entry) error
}
