package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/realmpay/internal/infra/pgutils"
	"github.com/fastprodman/realmpay/internal/repos/pending"
)

var _ pending.Pending = (*pendingRepo)(nil)

type pendingRepo struct{ db *sql.DB }

func New(db *sql.DB) *pendingRepo {
	return &pendingRepo{db: db}
}

func (r *pendingRepo) Insert(ctx context.Context, row pending.Row) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_withdrawals (realm_id, character_name, refund_unlock, amount)
		VALUES ($1, $2, $3, $4)
	`, row.RealmID, row.Character, row.RefundUnlock, row.Amount)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return pending.ErrDuplicateWithdrawal
		}

		return fmt.Errorf("insert pending withdrawal: %w", err)
	}

	return nil
}

func (r *pendingRepo) Exists(ctx context.Context, row pending.Row) (bool, error) {
	var one int

	err := r.db.QueryRowContext(ctx, `
		SELECT 1
		FROM pending_withdrawals
		WHERE realm_id = $1 AND character_name = $2 AND refund_unlock = $3 AND amount = $4
		LIMIT 1
	`, row.RealmID, row.Character, row.RefundUnlock, row.Amount).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("check pending withdrawal: %w", err)
	}

	return true, nil
}

func (r *pendingRepo) Delete(ctx context.Context, row pending.Row) (bool, error) {
	res, err := r.db.ExecContext(ctx, deleteStmt,
		row.RealmID, row.Character, row.RefundUnlock, row.Amount)
	if err != nil {
		return false, fmt.Errorf("delete pending withdrawal: %w", err)
	}

	return oneDeleted(res)
}

func (r *pendingRepo) DeleteTx(tx *sql.Tx, row pending.Row) (bool, error) {
	res, err := tx.Exec(deleteStmt,
		row.RealmID, row.Character, row.RefundUnlock, row.Amount)
	if err != nil {
		return false, fmt.Errorf("delete pending withdrawal: %w", err)
	}

	return oneDeleted(res)
}

func (r *pendingRepo) ListExpired(ctx context.Context, asOf int64) ([]pending.Row, error) {
	return r.list(ctx, `
		SELECT realm_id, character_name, refund_unlock, amount
		FROM pending_withdrawals
		WHERE refund_unlock < $1
	`, asOf)
}

func (r *pendingRepo) List(ctx context.Context) ([]pending.Row, error) {
	return r.list(ctx, `
		SELECT realm_id, character_name, refund_unlock, amount
		FROM pending_withdrawals
		ORDER BY refund_unlock
	`)
}

func (r *pendingRepo) list(ctx context.Context, query string, args ...any) ([]pending.Row, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending withdrawals: %w", err)
	}
	defer rows.Close()

	var out []pending.Row

	for rows.Next() {
		var row pending.Row

		err = rows.Scan(&row.RealmID, &row.Character, &row.RefundUnlock, &row.Amount)
		if err != nil {
			return nil, fmt.Errorf("scan pending withdrawal: %w", err)
		}

		out = append(out, row)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate pending withdrawals: %w", err)
	}

	return out, nil
}

const deleteStmt = `
	DELETE FROM pending_withdrawals
	WHERE realm_id = $1 AND character_name = $2 AND refund_unlock = $3 AND amount = $4
`

func oneDeleted(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected > 0, nil
}
