package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/realmpay/internal/infra/pgutils"
	"github.com/fastprodman/realmpay/internal/repos/pending"
)

// Run drives both background sweeps until ctx is cancelled: the realm
// balance snapshot immediately and every sync interval, the refund sweep
// on the same period after its phase offset.
func (e *Engine) Run(ctx context.Context) {
	go e.balanceLoop(ctx)
	e.refundLoop(ctx)
}

func (e *Engine) balanceLoop(ctx context.Context) {
	e.syncRealmBalances(ctx)

	ticker := time.NewTicker(e.syncEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.syncRealmBalances(ctx)
		}
	}
}

func (e *Engine) refundLoop(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(e.refundOffset):
	}

	e.refundExpired(ctx)

	ticker := time.NewTicker(e.syncEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refundExpired(ctx)
		}
	}
}

// syncRealmBalances refreshes the stored balance snapshot of every
// connected realm. Per-realm failures are logged and skipped.
func (e *Engine) syncRealmBalances(ctx context.Context) {
	for _, realmID := range e.reg.Online() {
		balance, err := e.fetchRealmBalance(ctx, realmID)
		if err != nil {
			slog.Warn("realm balance sync failed", "realm_id", realmID, "error", err)

			continue
		}

		err = e.info.UpdateBalance(ctx, realmID, balance)
		if err != nil {
			slog.Warn("realm balance snapshot write failed", "realm_id", realmID, "error", err)
		}
	}
}

func (e *Engine) fetchRealmBalance(ctx context.Context, realmID int) (int64, error) {
	resp, err := e.rpc.Send(ctx, realmID, "getGameServerBalance", nil)
	if err != nil {
		return 0, err
	}

	if !resp.OK {
		return 0, fmt.Errorf("realm reported: %s", resp.Error)
	}

	var balance int64

	err = json.Unmarshal(resp.Data, &balance)
	if err != nil {
		return 0, fmt.Errorf("decode realm balance: %w", err)
	}

	return balance, nil
}

// refundExpired compensates pending withdrawals whose refund unlock has
// passed. Each refund deletes the pending row and credits the character
// in one SQL transaction; the delete doubles as the at-most-once guard
// against a finalize landing at the same moment. Characters currently
// in-game are skipped and picked up next cycle, so the credit always
// stays inside the transaction.
func (e *Engine) refundExpired(ctx context.Context) {
	rows, err := e.pend.ListExpired(ctx, time.Now().Unix())
	if err != nil {
		slog.Warn("refund sweep: listing expired withdrawals failed", "error", err)

		return
	}

	for _, row := range rows {
		err := e.refundOne(ctx, row)
		if err != nil {
			slog.Warn("refund sweep: refund failed",
				"realm_id", row.RealmID,
				"character", row.Character,
				"amount", row.Amount,
				"error", err)
		}
	}
}

func (e *Engine) refundOne(ctx context.Context, row pending.Row) error {
	resident, err := e.gw.IsResident(ctx, row.RealmID, row.Character)
	if err != nil {
		return fmt.Errorf("residency check: %w", err)
	}

	if resident {
		slog.Info("refund deferred, character in-game",
			"realm_id", row.RealmID, "character", row.Character)

		return nil
	}

	itemID, err := e.gw.RewardItemID(ctx, row.RealmID)
	if err != nil {
		return fmt.Errorf("resolve reward item: %w", err)
	}

	refunded := false

	err = pgutils.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		deleted, err := e.pend.DeleteTx(tx, row)
		if err != nil {
			return fmt.Errorf("delete pending row: %w", err)
		}

		if !deleted {
			// A finalize got there first.
			return nil
		}

		err = e.gw.CreditStoredTx(tx, row.RealmID, row.Character, itemID, row.Amount)
		if err != nil {
			return fmt.Errorf("compensating credit: %w", err)
		}

		refunded = true

		return nil
	})
	if err != nil {
		return err
	}

	if refunded {
		e.ledger.Info("withdrawal refunded",
			"realm_id", row.RealmID,
			"character", row.Character,
			"amount", row.Amount,
			"refund_unlock", row.RefundUnlock)
	}

	return nil
}
