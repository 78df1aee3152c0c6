// Package dispatch routes request envelopes coming off the payment
// service channel to coordinator-local handlers or to connected realms.
package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/fastprodman/realmpay/internal/realms"
	"github.com/fastprodman/realmpay/internal/repos/accounts"
	pgaccounts "github.com/fastprodman/realmpay/internal/repos/accounts/postgres"
	"github.com/fastprodman/realmpay/internal/repos/pending"
	"github.com/fastprodman/realmpay/internal/repos/realminfo"
	pgrealminfo "github.com/fastprodman/realmpay/internal/repos/realminfo/postgres"
	"github.com/fastprodman/realmpay/internal/services/gateway"
	"github.com/fastprodman/realmpay/internal/services/reconcile"
)

// ErrUnknownOperation marks a subject outside the closed set below.
var ErrUnknownOperation = errors.New("unknown operation")

// CoordinatorID addresses the coordinator itself in an envelope.
const CoordinatorID = "coordinator"

// Coordinator-local subjects.
const (
	SubjectGetAccounts      = "getAccounts"
	SubjectGetClientBalance = "getClientBalance"
	SubjectLinkAccount      = "linkAccount"
	SubjectUnlinkAccount    = "unlinkAccount"
)

// Realm-addressed subjects.
const (
	SubjectGetAccountCharacters = "getAccountCharacters"
	SubjectGetCharacterBalance  = "getCharacterBalance"
	SubjectIsCharacterOffline   = "isCharacterOffline"
	SubjectGetGameServerMode    = "getGameServerMode"
	SubjectRequestWithdraw      = "requestWithdraw"
)

var walletShape = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Envelope is one request off the payment service channel. ID is either
// a realm id in decimal or the coordinator marker.
type Envelope struct {
	ID      string          `json:"id"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

type realmRPC interface {
	Send(ctx context.Context, realmID int, subject string, info []string) (realms.Response, error)
}

type registry interface {
	IsOnline(id int) bool
}

type withdrawer interface {
	Withdraw(ctx context.Context, req reconcile.WithdrawRequest) error
}

// Dispatcher resolves envelopes to handlers. Every failure is a value
// in the returned response; nothing escapes the boundary.
type Dispatcher struct {
	reg    registry
	rpc    realmRPC
	engine withdrawer
	accs   accounts.Accounts
	info   realminfo.RealmInfo
}

func New(dbx *sql.DB, reg registry, rpc realmRPC, engine withdrawer) *Dispatcher {
	return &Dispatcher{
		reg:    reg,
		rpc:    rpc,
		engine: engine,
		accs:   pgaccounts.New(dbx),
		info:   pgrealminfo.New(dbx),
	}
}

func (d *Dispatcher) Handle(ctx context.Context, env Envelope) realms.Response {
	if env.ID == CoordinatorID {
		return d.handleCoordinator(ctx, env)
	}

	realmID, err := strconv.Atoi(env.ID)
	if err != nil || realmID < 1 || realmID > 127 {
		return realms.Fail("illegal realm id %q", env.ID)
	}

	if !d.reg.IsOnline(realmID) {
		return realms.Fail("realm %d is offline", realmID)
	}

	return d.handleRealm(ctx, realmID, env)
}

func (d *Dispatcher) handleCoordinator(ctx context.Context, env Envelope) realms.Response {
	switch env.Subject {
	case SubjectGetAccounts:
		return d.getAccounts(ctx, env.Data)
	case SubjectGetClientBalance:
		return d.getClientBalance(ctx)
	case SubjectLinkAccount:
		return d.linkAccount(ctx, env.Data)
	case SubjectUnlinkAccount:
		return d.unlinkAccount(ctx, env.Data)
	default:
		return failFor(fmt.Errorf("%w: %q", ErrUnknownOperation, env.Subject))
	}
}

func (d *Dispatcher) handleRealm(ctx context.Context, realmID int, env Envelope) realms.Response {
	switch env.Subject {
	case SubjectGetAccountCharacters:
		return d.forward(ctx, realmID, env, "username")
	case SubjectGetCharacterBalance, SubjectIsCharacterOffline:
		return d.forward(ctx, realmID, env, "character")
	case SubjectGetGameServerMode:
		return d.forward(ctx, realmID, env)
	case SubjectRequestWithdraw:
		return d.requestWithdraw(ctx, realmID, env.Data)
	default:
		return failFor(fmt.Errorf("%w: %q", ErrUnknownOperation, env.Subject))
	}
}

// forward relays a read-only subject to the realm, flattening the named
// data fields into the request info.
func (d *Dispatcher) forward(ctx context.Context, realmID int, env Envelope, fields ...string) realms.Response {
	info := make([]string, 0, len(fields))

	if len(fields) > 0 {
		var data map[string]string

		err := json.Unmarshal(env.Data, &data)
		if err != nil {
			return realms.Fail("malformed request data")
		}

		for _, f := range fields {
			v, ok := data[f]
			if !ok || v == "" {
				return realms.Fail("missing field %q", f)
			}

			info = append(info, v)
		}
	}

	resp, err := d.rpc.Send(ctx, realmID, env.Subject, info)
	if err != nil {
		return failFor(fmt.Errorf("forward %s to realm %d: %w", env.Subject, realmID, err))
	}

	return resp
}

func (d *Dispatcher) getAccounts(ctx context.Context, data json.RawMessage) realms.Response {
	var req struct {
		Wallet string `json:"walletAddress"`
	}

	err := json.Unmarshal(data, &req)
	if err != nil || !walletShape.MatchString(req.Wallet) {
		return realms.Fail("malformed wallet address")
	}

	logins, err := d.accs.LoginsByWallet(ctx, req.Wallet)
	if err != nil {
		return failFor(fmt.Errorf("list accounts of %s: %w", req.Wallet, err))
	}

	return realms.OKData(logins)
}

func (d *Dispatcher) getClientBalance(ctx context.Context) realms.Response {
	total, err := d.info.TotalBalance(ctx)
	if err != nil {
		return failFor(fmt.Errorf("total client balance: %w", err))
	}

	return realms.OKData(total)
}

type linkRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Wallet   string `json:"walletAddress"`
}

func decodeLink(data json.RawMessage) (linkRequest, error) {
	var req linkRequest

	err := json.Unmarshal(data, &req)
	if err != nil || req.Username == "" || req.Password == "" {
		return linkRequest{}, errors.New("malformed request data")
	}

	if !walletShape.MatchString(req.Wallet) {
		return linkRequest{}, errors.New("malformed wallet address")
	}

	return req, nil
}

func (d *Dispatcher) linkAccount(ctx context.Context, data json.RawMessage) realms.Response {
	req, err := decodeLink(data)
	if err != nil {
		return realms.Fail("%s", err)
	}

	err = d.accs.Link(ctx, req.Username, req.Password, req.Wallet)
	if err != nil {
		return failFor(fmt.Errorf("link account %q: %w", req.Username, err))
	}

	return realms.OKData("linked")
}

func (d *Dispatcher) unlinkAccount(ctx context.Context, data json.RawMessage) realms.Response {
	req, err := decodeLink(data)
	if err != nil {
		return realms.Fail("%s", err)
	}

	err = d.accs.Unlink(ctx, req.Username, req.Password, req.Wallet)
	if err != nil {
		return failFor(fmt.Errorf("unlink account %q: %w", req.Username, err))
	}

	return realms.OKData("unlinked")
}

func (d *Dispatcher) requestWithdraw(ctx context.Context, realmID int, data json.RawMessage) realms.Response {
	var req struct {
		Wallet    string `json:"walletAddress"`
		Character string `json:"character"`
		Refund    string `json:"refund"`
		Amount    string `json:"amount"`
	}

	err := json.Unmarshal(data, &req)
	if err != nil || req.Character == "" {
		return realms.Fail("malformed request data")
	}

	if !walletShape.MatchString(req.Wallet) {
		return realms.Fail("malformed wallet address")
	}

	refund, err := strconv.ParseInt(req.Refund, 10, 64)
	if err != nil || refund <= 0 {
		return realms.Fail("malformed refund token")
	}

	amount, err := strconv.ParseInt(req.Amount, 10, 64)
	if err != nil || amount <= 0 {
		return realms.Fail("malformed amount")
	}

	err = d.engine.Withdraw(ctx, reconcile.WithdrawRequest{
		RealmID:      realmID,
		Character:    req.Character,
		Wallet:       req.Wallet,
		RefundUnlock: refund,
		Amount:       amount,
	})
	if err != nil {
		return failFor(fmt.Errorf("withdraw for %q on realm %d: %w", req.Character, realmID, err))
	}

	return realms.OKData("withdrawal accepted")
}

// failFor maps an error chain to the client-facing failure message.
// Sentinels get their own text; anything else is reported generically
// and logged server-side.
func failFor(err error) realms.Response {
	switch {
	case errors.Is(err, ErrUnknownOperation):
		return realms.Fail("unknown operation")
	case errors.Is(err, pending.ErrDuplicateWithdrawal):
		return realms.Fail("duplicate withdrawal request")
	case errors.Is(err, gateway.ErrInsufficientBalance):
		return realms.Fail("insufficient balance")
	case errors.Is(err, gateway.ErrAccountNotFound),
		errors.Is(err, reconcile.ErrCharacterUnknown):
		return realms.Fail("character not found")
	case errors.Is(err, reconcile.ErrWalletMismatch):
		return realms.Fail("wallet is not linked to this account")
	case errors.Is(err, accounts.ErrCredentialsMismatch):
		return realms.Fail("username - password mismatch")
	case errors.Is(err, accounts.ErrAlreadyLinked):
		return realms.Fail("account already linked")
	case errors.Is(err, accounts.ErrNotLinked):
		return realms.Fail("account not linked to this wallet")
	case errors.Is(err, realms.ErrRealmUnavailable):
		return realms.Fail("realm is offline")
	case errors.Is(err, realms.ErrTimeout):
		return realms.Fail("realm did not respond")
	default:
		slog.Error("request failed", "error", err)

		return realms.Fail("internal error")
	}
}
