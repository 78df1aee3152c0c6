package realminfo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/realmpay/internal/repos/realminfo"
)

var _ realminfo.RealmInfo = (*realmInfoRepo)(nil)

type realmInfoRepo struct{ db *sql.DB }

func New(db *sql.DB) *realmInfoRepo {
	return &realmInfoRepo{db: db}
}

func (r *realmInfoRepo) Get(ctx context.Context, realmID int) (realminfo.Info, error) {
	info := realminfo.Info{RealmID: realmID}

	err := r.db.QueryRowContext(ctx, `
		SELECT name, reward_item_id, balance
		FROM realms
		WHERE realm_id = $1
		LIMIT 1
	`, realmID).Scan(&info.Name, &info.RewardItemID, &info.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return realminfo.Info{}, realminfo.ErrRealmNotFound
		}

		return realminfo.Info{}, fmt.Errorf("get realm: %w", err)
	}

	return info, nil
}

func (r *realmInfoRepo) List(ctx context.Context) ([]realminfo.Info, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT realm_id, name, reward_item_id, balance
		FROM realms
		ORDER BY realm_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list realms: %w", err)
	}
	defer rows.Close()

	var infos []realminfo.Info

	for rows.Next() {
		var info realminfo.Info

		err = rows.Scan(&info.RealmID, &info.Name, &info.RewardItemID, &info.Balance)
		if err != nil {
			return nil, fmt.Errorf("scan realm: %w", err)
		}

		infos = append(infos, info)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate realms: %w", err)
	}

	return infos, nil
}

func (r *realmInfoRepo) UpdateBalance(ctx context.Context, realmID int, balance int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE realms
		SET balance = $2
		WHERE realm_id = $1
	`, realmID, balance)
	if err != nil {
		return fmt.Errorf("update realm balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return realminfo.ErrRealmNotFound
	}

	return nil
}

func (r *realmInfoRepo) TotalBalance(ctx context.Context) (int64, error) {
	var total sql.NullInt64

	err := r.db.QueryRowContext(ctx, `
		SELECT SUM(balance) AS balance
		FROM realms
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum realm balances: %w", err)
	}

	if !total.Valid {
		return 0, nil
	}

	return total.Int64, nil
}
