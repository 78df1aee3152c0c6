package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/realmpay/internal/infra/logging"
	"github.com/fastprodman/realmpay/internal/realms"
	"github.com/fastprodman/realmpay/internal/repos/accounts"
	pgaccounts "github.com/fastprodman/realmpay/internal/repos/accounts/postgres"
	"github.com/fastprodman/realmpay/internal/repos/pending"
	pgpending "github.com/fastprodman/realmpay/internal/repos/pending/postgres"
	"github.com/fastprodman/realmpay/internal/repos/realminfo"
	pgrealminfo "github.com/fastprodman/realmpay/internal/repos/realminfo/postgres"
	"github.com/fastprodman/realmpay/internal/repos/transferlog"
	pgtransferlog "github.com/fastprodman/realmpay/internal/repos/transferlog/postgres"
)

const (
	defaultSyncInterval = 150 * time.Second
	// The refund sweep runs on the same period, phase-shifted so the two
	// sweeps never contend for the same rows.
	defaultRefundOffset = 75 * time.Second
)

type balanceGateway interface {
	IsResident(ctx context.Context, realmID int, character string) (bool, error)
	Credit(ctx context.Context, realmID int, character string, amount int64, deposit bool) error
	Debit(ctx context.Context, realmID int, character string, amount int64) error
	RewardItemID(ctx context.Context, realmID int) (int, error)
	CreditStoredTx(tx *sql.Tx, realmID int, character string, itemID int, amount int64) error
}

type realmRPC interface {
	Send(ctx context.Context, realmID int, subject string, info []string) (realms.Response, error)
}

type onlineSet interface {
	Online() []int
}

// Engine owns every flow that moves value between the payment service
// and realm state: the withdrawal saga, deposit and finalize settlement,
// and the periodic balance and refund sweeps.
type Engine struct {
	db     *sql.DB
	gw     balanceGateway
	rpc    realmRPC
	reg    onlineSet
	pend   pending.Pending
	tlog   transferlog.TransferLog
	accs   accounts.Accounts
	info   realminfo.RealmInfo
	ledger *slog.Logger

	syncEvery    time.Duration
	refundOffset time.Duration
}

func New(dbx *sql.DB, gw balanceGateway, rpc realmRPC, reg onlineSet) *Engine {
	return &Engine{
		db:           dbx,
		gw:           gw,
		rpc:          rpc,
		reg:          reg,
		pend:         pgpending.New(dbx),
		tlog:         pgtransferlog.New(dbx),
		accs:         pgaccounts.New(dbx),
		info:         pgrealminfo.New(dbx),
		ledger:       logging.Ledger(),
		syncEvery:    defaultSyncInterval,
		refundOffset: defaultRefundOffset,
	}
}

// Withdraw runs the withdrawal saga:
//
// 1) Reject a tuple that already has a pending row.
// 2) Resolve the owning login on the realm.
// 3) Verify the wallet is linked to that login.
// 4) Debit the character.
// 5) Persist the pending row (the commit point).
//
// A step-5 failure credits the amount back before returning; if that
// compensation also fails the engine escalates and reports Inconsistent.
func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) error {
	row := pending.Row{
		RealmID:      req.RealmID,
		Character:    req.Character,
		RefundUnlock: req.RefundUnlock,
		Amount:       req.Amount,
	}

	inFlight, err := e.pend.Exists(ctx, row)
	if err != nil {
		return fmt.Errorf("withdraw pre-check: %w", err)
	}

	if inFlight {
		return fmt.Errorf("withdraw pre-check: %w", pending.ErrDuplicateWithdrawal)
	}

	login, err := e.resolveLogin(ctx, req.RealmID, req.Character)
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}

	owner, err := e.accs.IsWalletOwner(ctx, login, req.Wallet)
	if err != nil {
		return fmt.Errorf("withdraw wallet check: %w", err)
	}

	if !owner {
		return fmt.Errorf("withdraw wallet check: %w", ErrWalletMismatch)
	}

	err = e.gw.Debit(ctx, req.RealmID, req.Character, req.Amount)
	if err != nil {
		return fmt.Errorf("withdraw debit: %w", err)
	}

	err = e.pend.Insert(ctx, row)
	if err != nil {
		return e.compensate(ctx, req, err)
	}

	e.ledger.Info("withdrawal accepted",
		"realm_id", req.RealmID,
		"character", req.Character,
		"wallet", req.Wallet,
		"amount", req.Amount,
		"refund_unlock", req.RefundUnlock)

	return nil
}

// compensate credits back a debit whose pending row could not be
// persisted. The debit must never be left untracked.
func (e *Engine) compensate(ctx context.Context, req WithdrawRequest, cause error) error {
	creditErr := e.gw.Credit(ctx, req.RealmID, req.Character, req.Amount, false)
	if creditErr == nil {
		return fmt.Errorf("persist pending withdrawal: %w", cause)
	}

	e.ledger.Error("withdrawal left the ledger inconsistent",
		"realm_id", req.RealmID,
		"character", req.Character,
		"wallet", req.Wallet,
		"amount", req.Amount,
		"refund_unlock", req.RefundUnlock,
		"pending_error", cause.Error(),
		"credit_error", creditErr.Error(),
		"action", "manually credit the character and verify no pending row exists")

	return fmt.Errorf("%w: persist failed (%v), compensating credit failed (%v)",
		ErrInconsistent, cause, creditErr)
}

func (e *Engine) resolveLogin(ctx context.Context, realmID int, character string) (string, error) {
	resp, err := e.rpc.Send(ctx, realmID, "getCharacterUsername", []string{character})
	if err != nil {
		return "", fmt.Errorf("resolve login of %q: %w", character, err)
	}

	if !resp.OK {
		return "", fmt.Errorf("resolve login of %q: %w", character, ErrCharacterUnknown)
	}

	var login string

	err = json.Unmarshal(resp.Data, &login)
	if err != nil || login == "" {
		return "", fmt.Errorf("resolve login of %q: %w", character, realms.ErrMalformedResponse)
	}

	return login, nil
}

// Finalize settles a confirmed withdrawal: append the audit row, then
// drop the pending row. Replays and already-swept rows are no-ops.
func (e *Engine) Finalize(ctx context.Context, entry transferlog.Entry, refundUnlock int64) error {
	err := e.tlog.InsertWithdrawal(ctx, entry)
	if err != nil {
		if !errors.Is(err, transferlog.ErrDuplicateTransfer) {
			return fmt.Errorf("record withdrawal %s: %w", entry.TxHash, err)
		}

		slog.Info("withdrawal already recorded", "tx_hash", entry.TxHash)
	}

	row := pending.Row{
		RealmID:      entry.RealmID,
		Character:    entry.Character,
		RefundUnlock: refundUnlock,
		Amount:       entry.Amount,
	}

	deleted, err := e.pend.Delete(ctx, row)
	if err != nil {
		return fmt.Errorf("clear pending withdrawal %s: %w", entry.TxHash, err)
	}

	if !deleted {
		slog.Info("pending withdrawal already cleared",
			"tx_hash", entry.TxHash,
			"realm_id", entry.RealmID,
			"character", entry.Character)

		return nil
	}

	e.ledger.Info("withdrawal finalized",
		"tx_hash", entry.TxHash,
		"realm_id", entry.RealmID,
		"character", entry.Character,
		"wallet", entry.Wallet,
		"amount", entry.Amount)

	return nil
}

// Deposit settles a confirmed deposit: append the audit row, then credit
// the character unconditionally. A duplicate tx hash is a replay and a
// no-op. A credit failure after the audit row is an operator escalation,
// because the value already moved on-chain.
func (e *Engine) Deposit(ctx context.Context, entry transferlog.Entry) error {
	err := e.tlog.InsertDeposit(ctx, entry)
	if err != nil {
		if errors.Is(err, transferlog.ErrDuplicateTransfer) {
			slog.Info("deposit already recorded", "tx_hash", entry.TxHash)

			return nil
		}

		return fmt.Errorf("record deposit %s: %w", entry.TxHash, err)
	}

	err = e.gw.Credit(ctx, entry.RealmID, entry.Character, entry.Amount, true)
	if err != nil {
		e.ledger.Error("deposit recorded but not credited",
			"tx_hash", entry.TxHash,
			"realm_id", entry.RealmID,
			"character", entry.Character,
			"wallet", entry.Wallet,
			"amount", entry.Amount,
			"credit_error", err.Error(),
			"action", "manually credit the character, the deposit is confirmed on-chain")

		return fmt.Errorf("credit deposit %s: %w", entry.TxHash, err)
	}

	e.ledger.Info("deposit credited",
		"tx_hash", entry.TxHash,
		"realm_id", entry.RealmID,
		"character", entry.Character,
		"wallet", entry.Wallet,
		"amount", entry.Amount)

	return nil
}
