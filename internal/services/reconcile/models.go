package reconcile

import "errors"

var (
	// ErrWalletMismatch means the requesting wallet is not linked to the
	// account that owns the character.
	ErrWalletMismatch = errors.New("wallet is not linked to the character's account")
	// ErrCharacterUnknown means the realm could not resolve the character.
	ErrCharacterUnknown = errors.New("character not found on realm")
	// ErrInconsistent means a committed debit could not be tracked or
	// compensated. It always comes with an operator escalation.
	ErrInconsistent = errors.New("ledger inconsistent, manual intervention required")
)

// WithdrawRequest is one withdrawal saga as submitted by the payment
// service. The full tuple doubles as the idempotency key.
type WithdrawRequest struct {
	RealmID      int
	Character    string
	Wallet       string
	RefundUnlock int64
	Amount       int64
}
