package accounts

import (
	"context"
	"crypto/sha1" //nolint:gosec // legacy scheme shared with the realm emulators
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/fastprodman/realmpay/internal/repos/accounts"
)

var _ accounts.Accounts = (*accountsRepo)(nil)

type accountsRepo struct{ db *sql.DB }

func New(db *sql.DB) *accountsRepo {
	return &accountsRepo{db: db}
}

func (r *accountsRepo) LoginsByWallet(ctx context.Context, wallet string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT login
		FROM accounts
		WHERE wallet_address = $1
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("query logins: %w", err)
	}
	defer rows.Close()

	logins := make([]string, 0, 4)

	for rows.Next() {
		var login string

		err = rows.Scan(&login)
		if err != nil {
			return nil, fmt.Errorf("scan login: %w", err)
		}

		logins = append(logins, login)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate logins: %w", err)
	}

	return logins, nil
}

func (r *accountsRepo) IsWalletOwner(ctx context.Context, login, wallet string) (bool, error) {
	var one int

	err := r.db.QueryRowContext(ctx, `
		SELECT 1
		FROM accounts
		WHERE login = $1 AND wallet_address = $2
		LIMIT 1
	`, login, wallet).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("check wallet owner: %w", err)
	}

	return true, nil
}

func (r *accountsRepo) Link(ctx context.Context, login, password, wallet string) error {
	storedPassword, storedWallet, err := r.credentials(ctx, login)
	if err != nil {
		return err
	}

	if storedPassword != digest(password) {
		return accounts.ErrCredentialsMismatch
	}

	if storedWallet != accounts.NotLinkedSentinel {
		return accounts.ErrAlreadyLinked
	}

	return r.setWallet(ctx, login, wallet)
}

func (r *accountsRepo) Unlink(ctx context.Context, login, password, wallet string) error {
	storedPassword, storedWallet, err := r.credentials(ctx, login)
	if err != nil {
		return err
	}

	if storedPassword != digest(password) {
		return accounts.ErrCredentialsMismatch
	}

	if storedWallet != wallet {
		return accounts.ErrNotLinked
	}

	return r.setWallet(ctx, login, accounts.NotLinkedSentinel)
}

func (r *accountsRepo) credentials(ctx context.Context, login string) (password, wallet string, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT password, wallet_address
		FROM accounts
		WHERE login = $1
		LIMIT 1
	`, login).Scan(&password, &wallet)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Indistinguishable from a wrong password on purpose: don't
			// leak which logins exist.
			return "", "", accounts.ErrCredentialsMismatch
		}

		return "", "", fmt.Errorf("read credentials: %w", err)
	}

	return password, wallet, nil
}

func (r *accountsRepo) setWallet(ctx context.Context, login, wallet string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET wallet_address = $2
		WHERE login = $1
	`, login, wallet)
	if err != nil {
		return fmt.Errorf("set wallet: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return accounts.ErrAccountNotFound
	}

	return nil
}

// digest matches the password scheme used by the realm emulators:
// base64 of the SHA-1 of the plain-text password.
func digest(password string) string {
	h := sha1.Sum([]byte(password)) //nolint:gosec
	return base64.StdEncoding.EncodeToString(h[:])
}
