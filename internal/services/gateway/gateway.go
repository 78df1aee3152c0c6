package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/fastprodman/realmpay/internal/infra/pgutils"
	"github.com/fastprodman/realmpay/internal/realms"
	"github.com/fastprodman/realmpay/internal/repos/holdings"
	pgholdings "github.com/fastprodman/realmpay/internal/repos/holdings/postgres"
	"github.com/fastprodman/realmpay/internal/repos/realminfo"
	pgrealminfo "github.com/fastprodman/realmpay/internal/repos/realminfo/postgres"
)

// Both paths of the gateway surface the same sentinels.
var (
	ErrInsufficientBalance = holdings.ErrInsufficientBalance
	ErrAccountNotFound     = holdings.ErrCharacterNotFound
	// ErrRealmRejected carries a realm-side failure that maps to no
	// narrower sentinel.
	ErrRealmRejected = errors.New("realm rejected the operation")
)

// Wire error codes a realm worker puts in a failed response. Anything
// else maps to ErrRealmRejected.
const (
	wireInsufficient = "insufficient balance"
	wireNotFound     = "character not found"
)

type realmRPC interface {
	Send(ctx context.Context, realmID int, subject string, info []string) (realms.Response, error)
}

type registry interface {
	IsOnline(id int) bool
	RewardItemID(id int) (int, bool)
}

// Gateway mutates and reads per-character reward balances. When the
// character's realm is connected and reports the character as in-game,
// operations go over the realm link and apply to the live object; in
// every other case they go to persistent storage in a locked transaction.
type Gateway struct {
	db    *sql.DB
	rpc   realmRPC
	reg   registry
	items holdings.Holdings
	info  realminfo.RealmInfo
}

func New(dbx *sql.DB, rpc realmRPC, reg registry) *Gateway {
	return &Gateway{
		db:    dbx,
		rpc:   rpc,
		reg:   reg,
		items: pgholdings.New(dbx),
		info:  pgrealminfo.New(dbx),
	}
}

// RewardItemID resolves the realm's reward unit item id, preferring the
// live registry and falling back to the realms table.
func (g *Gateway) RewardItemID(ctx context.Context, realmID int) (int, error) {
	id, ok := g.reg.RewardItemID(realmID)
	if ok {
		return id, nil
	}

	info, err := g.info.Get(ctx, realmID)
	if err != nil {
		return 0, fmt.Errorf("resolve reward item for realm %d: %w", realmID, err)
	}

	return info.RewardItemID, nil
}

// IsResident reports whether the character is currently in-game on its
// realm. An offline realm means not resident; a connected realm that
// fails to answer is an error, because guessing risks a lost update.
func (g *Gateway) IsResident(ctx context.Context, realmID int, character string) (bool, error) {
	if !g.reg.IsOnline(realmID) {
		return false, nil
	}

	resp, err := g.rpc.Send(ctx, realmID, "isCharacterOffline", []string{character})
	if err != nil {
		return false, fmt.Errorf("residency check for %q on realm %d: %w", character, realmID, err)
	}

	if !resp.OK {
		// Realm doesn't know the character; persistent storage decides.
		return false, nil
	}

	var offline bool

	err = json.Unmarshal(resp.Data, &offline)
	if err != nil {
		return false, fmt.Errorf("decode residency of %q on realm %d: %w", character, realmID, realms.ErrMalformedResponse)
	}

	return !offline, nil
}

// Credit adds amount reward units to the character. deposit controls the
// realm-side player notification when the character is in-game.
func (g *Gateway) Credit(ctx context.Context, realmID int, character string, amount int64, deposit bool) error {
	if amount <= 0 {
		return fmt.Errorf("credit %q on realm %d: non-positive amount %d", character, realmID, amount)
	}

	resident, err := g.IsResident(ctx, realmID, character)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}

	if resident {
		flag := "0"
		if deposit {
			flag = "1"
		}

		info := []string{character, strconv.FormatInt(amount, 10), flag}

		resp, err := g.rpc.Send(ctx, realmID, "addToCharacter", info)
		if err != nil {
			return fmt.Errorf("credit %q on realm %d: %w", character, realmID, err)
		}

		return mapRealmFailure(resp)
	}

	err = g.creditStored(ctx, realmID, character, amount)
	if err != nil {
		return fmt.Errorf("credit %q on realm %d: %w", character, realmID, err)
	}

	return nil
}

// Debit removes amount reward units from the character.
func (g *Gateway) Debit(ctx context.Context, realmID int, character string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit %q on realm %d: non-positive amount %d", character, realmID, amount)
	}

	resident, err := g.IsResident(ctx, realmID, character)
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}

	if resident {
		info := []string{character, strconv.FormatInt(amount, 10)}

		resp, err := g.rpc.Send(ctx, realmID, "removeFromCharacter", info)
		if err != nil {
			return fmt.Errorf("debit %q on realm %d: %w", character, realmID, err)
		}

		return mapRealmFailure(resp)
	}

	itemID, err := g.RewardItemID(ctx, realmID)
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}

	err = pgutils.WithTx(ctx, g.db, func(tx *sql.Tx) error {
		return g.debitStoredTx(tx, realmID, character, itemID, amount)
	})
	if err != nil {
		return fmt.Errorf("debit %q on realm %d: %w", character, realmID, err)
	}

	return nil
}

// Balance reads the character's reward unit count from whichever side
// currently owns the state.
func (g *Gateway) Balance(ctx context.Context, realmID int, character string) (int64, error) {
	resident, err := g.IsResident(ctx, realmID, character)
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}

	if resident {
		resp, err := g.rpc.Send(ctx, realmID, "getCharacterBalance", []string{character})
		if err != nil {
			return 0, fmt.Errorf("balance of %q on realm %d: %w", character, realmID, err)
		}

		err = mapRealmFailure(resp)
		if err != nil {
			return 0, fmt.Errorf("balance of %q on realm %d: %w", character, realmID, err)
		}

		var count int64

		err = json.Unmarshal(resp.Data, &count)
		if err != nil {
			return 0, fmt.Errorf("decode balance of %q on realm %d: %w", character, realmID, realms.ErrMalformedResponse)
		}

		return count, nil
	}

	itemID, err := g.RewardItemID(ctx, realmID)
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}

	count, err := g.items.Balance(ctx, realmID, character, itemID)
	if err != nil {
		return 0, fmt.Errorf("balance of %q on realm %d: %w", character, realmID, err)
	}

	return count, nil
}

// creditStored applies a credit to persistent storage in its own
// transaction.
func (g *Gateway) creditStored(ctx context.Context, realmID int, character string, amount int64) error {
	itemID, err := g.RewardItemID(ctx, realmID)
	if err != nil {
		return err
	}

	return pgutils.WithTx(ctx, g.db, func(tx *sql.Tx) error {
		return g.CreditStoredTx(tx, realmID, character, itemID, amount)
	})
}

// CreditStoredTx applies a credit to persistent storage inside a
// caller-owned transaction. The refund sweep uses this to make the
// compensating credit and the pending-row delete one atomic unit.
func (g *Gateway) CreditStoredTx(tx *sql.Tx, realmID int, character string, itemID int, amount int64) error {
	err := g.items.Exists(tx, realmID, character)
	if err != nil {
		return fmt.Errorf("check character exists: %w", err)
	}

	_, found, err := g.items.LockCount(tx, realmID, character, itemID)
	if err != nil {
		return fmt.Errorf("lock holding row: %w", err)
	}

	if !found {
		err = g.items.InsertRow(tx, realmID, character, itemID, amount)
		if err != nil {
			return fmt.Errorf("insert holding row: %w", err)
		}

		return nil
	}

	err = g.items.IncreaseCount(tx, realmID, character, itemID, amount)
	if err != nil {
		return fmt.Errorf("increase count: %w", err)
	}

	return nil
}

// debitStoredTx runs the locked read-check-apply sequence. A debit that
// empties the row deletes it; a zero-count row never exists.
func (g *Gateway) debitStoredTx(tx *sql.Tx, realmID int, character string, itemID int, amount int64) error {
	err := g.items.Exists(tx, realmID, character)
	if err != nil {
		return fmt.Errorf("check character exists: %w", err)
	}

	count, found, err := g.items.LockCount(tx, realmID, character, itemID)
	if err != nil {
		return fmt.Errorf("lock holding row: %w", err)
	}

	if !found || count < amount {
		return fmt.Errorf("pre-check debit: %w", ErrInsufficientBalance)
	}

	if count == amount {
		err = g.items.DeleteRow(tx, realmID, character, itemID)
		if err != nil {
			return fmt.Errorf("delete emptied holding row: %w", err)
		}

		return nil
	}

	err = g.items.DecreaseCount(tx, realmID, character, itemID, amount)
	if err != nil {
		return fmt.Errorf("decrease count: %w", err)
	}

	return nil
}

func mapRealmFailure(resp realms.Response) error {
	if resp.OK {
		return nil
	}

	switch resp.Error {
	case wireInsufficient:
		return ErrInsufficientBalance
	case wireNotFound:
		return ErrAccountNotFound
	default:
		return fmt.Errorf("%w: %s", ErrRealmRejected, resp.Error)
	}
}
