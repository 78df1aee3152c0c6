package accounts

import (
	"context"
	"errors"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrCredentialsMismatch = errors.New("username - password mismatch")
	ErrAlreadyLinked       = errors.New("account already linked to a wallet address")
	ErrNotLinked           = errors.New("account not linked to this wallet address")
)

// NotLinkedSentinel is the wallet_address column value of an unlinked account.
const NotLinkedSentinel = "not linked"

type Accounts interface {
	// LoginsByWallet lists account logins linked to a wallet address.
	LoginsByWallet(ctx context.Context, wallet string) ([]string, error)
	// IsWalletOwner reports whether login is linked to wallet.
	IsWalletOwner(ctx context.Context, login, wallet string) (bool, error)
	// Link attaches wallet to login after verifying the password. Fails
	// with ErrAlreadyLinked when the column no longer holds the sentinel.
	Link(ctx context.Context, login, password, wallet string) error
	// Unlink resets the wallet column to the sentinel; only the owning
	// wallet may unlink.
	Unlink(ctx context.Context, login, password, wallet string) error
}
