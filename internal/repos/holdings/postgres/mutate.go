package holdings

import (
	"database/sql"
	"fmt"

	"github.com/fastprodman/realmpay/internal/repos/holdings"
)

func (r *holdingsRepo) IncreaseCount(tx *sql.Tx, realmID int, character string, itemID int, amount int64) error {
	_, err := tx.Exec(`
		UPDATE reward_items
		SET count = count + $5
		WHERE realm_id = $1 AND character_name = $2 AND item_id = $3 AND loc = $4
	`, realmID, character, itemID, loc, amount)
	if err != nil {
		return fmt.Errorf("increase count: %w", err)
	}

	return nil
}

func (r *holdingsRepo) InsertRow(tx *sql.Tx, realmID int, character string, itemID int, amount int64) error {
	_, err := tx.Exec(`
		INSERT INTO reward_items (realm_id, character_name, item_id, count, loc)
		VALUES ($1, $2, $3, $4, $5)
	`, realmID, character, itemID, amount, loc)
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}

	return nil
}

func (r *holdingsRepo) DecreaseCount(tx *sql.Tx, realmID int, character string, itemID int, amount int64) error {
	res, err := tx.Exec(`
		UPDATE reward_items
		SET count = count - $5
		WHERE realm_id = $1 AND character_name = $2 AND item_id = $3 AND loc = $4
		  AND count > $5
	`, realmID, character, itemID, loc, amount)
	if err != nil {
		return fmt.Errorf("decrease count: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		// Either the row is gone or count <= amount. Debit-to-zero goes
		// through DeleteRow, so reaching here means insufficient funds.
		return holdings.ErrInsufficientBalance
	}

	return nil
}

func (r *holdingsRepo) DeleteRow(tx *sql.Tx, realmID int, character string, itemID int) error {
	_, err := tx.Exec(`
		DELETE FROM reward_items
		WHERE realm_id = $1 AND character_name = $2 AND item_id = $3 AND loc = $4
	`, realmID, character, itemID, loc)
	if err != nil {
		return fmt.Errorf("delete row: %w", err)
	}

	return nil
}
