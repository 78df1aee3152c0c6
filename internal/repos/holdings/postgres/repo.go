package holdings

import (
	"database/sql"
	"fmt"

	"github.com/fastprodman/realmpay/internal/repos/holdings"
)

// loc narrows every statement to carried inventory; reward items parked in
// warehouses or trade windows are never touched from here.
const loc = "INVENTORY"

var _ holdings.Holdings = (*holdingsRepo)(nil)

type holdingsRepo struct{ db *sql.DB }

func New(db *sql.DB) *holdingsRepo {
	return &holdingsRepo{db: db}
}

func (r *holdingsRepo) Exists(tx *sql.Tx, realmID int, character string) error {
	var exists bool

	err := tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM characters WHERE realm_id = $1 AND char_name = $2)
	`, realmID, character).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}

	if !exists {
		return holdings.ErrCharacterNotFound
	}

	return nil
}
