package transferlog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/realmpay/internal/infra/pgutils"
	"github.com/fastprodman/realmpay/internal/repos/transferlog"
)

var _ transferlog.TransferLog = (*transferLogRepo)(nil)

type transferLogRepo struct{ db *sql.DB }

func New(db *sql.DB) *transferLogRepo {
	return &transferLogRepo{db: db}
}

func (r *transferLogRepo) InsertDeposit(ctx context.Context, e transferlog.Entry) error {
	return r.insert(ctx, "deposit_log", e)
}

func (r *transferLogRepo) InsertWithdrawal(ctx context.Context, e transferlog.Entry) error {
	return r.insert(ctx, "withdrawal_log", e)
}

func (r *transferLogRepo) insert(ctx context.Context, table string, e transferlog.Entry) error {
	//nolint:gosec // table is one of two compile-time constants
	stmt := fmt.Sprintf(`
		INSERT INTO %s (tx_hash, realm_id, character_name, wallet_address, amount)
		VALUES ($1, $2, $3, $4, $5)
	`, table)

	_, err := r.db.ExecContext(ctx, stmt, e.TxHash, e.RealmID, e.Character, e.Wallet, e.Amount)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return transferlog.ErrDuplicateTransfer
		}

		return fmt.Errorf("insert %s: %w", table, err)
	}

	return nil
}
