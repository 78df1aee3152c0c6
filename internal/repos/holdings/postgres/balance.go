package holdings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (r *holdingsRepo) Balance(ctx context.Context, realmID int, character string, itemID int) (int64, error) {
	var count int64

	err := r.db.QueryRowContext(ctx, `
		SELECT count
		FROM reward_items
		WHERE realm_id = $1 AND character_name = $2 AND item_id = $3 AND loc = $4
	`, realmID, character, itemID, loc).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No row means zero balance, not an error.
			return 0, nil
		}

		return 0, fmt.Errorf("get balance: %w", err)
	}

	return count, nil
}

func (r *holdingsRepo) LockCount(tx *sql.Tx, realmID int, character string, itemID int) (int64, bool, error) {
	var count int64

	err := tx.QueryRow(`
		SELECT count
		FROM reward_items
		WHERE realm_id = $1 AND character_name = $2 AND item_id = $3 AND loc = $4
		FOR UPDATE
	`, realmID, character, itemID, loc).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("lock/get count: %w", err)
	}

	return count, true, nil
}
