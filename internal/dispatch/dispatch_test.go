package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fastprodman/realmpay/internal/realms"
	"github.com/fastprodman/realmpay/internal/repos/accounts"
	"github.com/fastprodman/realmpay/internal/repos/pending"
	"github.com/fastprodman/realmpay/internal/repos/realminfo"
	"github.com/fastprodman/realmpay/internal/services/reconcile"
)

// --- Fakes ---

type fakeRegistry struct{ online map[int]bool }

func (f *fakeRegistry) IsOnline(id int) bool { return f.online[id] }

type fakeRPC struct {
	calls     int
	lastInfo  []string
	responses map[string]realms.Response
}

func (f *fakeRPC) Send(_ context.Context, _ int, subject string, info []string) (realms.Response, error) {
	f.calls++
	f.lastInfo = info

	resp, ok := f.responses[subject]
	if !ok {
		return realms.Fail("unexpected subject %q", subject), nil
	}

	return resp, nil
}

type fakeWithdrawer struct {
	got *reconcile.WithdrawRequest
	err error
}

func (f *fakeWithdrawer) Withdraw(_ context.Context, req reconcile.WithdrawRequest) error {
	f.got = &req

	return f.err
}

type fakeAccounts struct {
	logins  []string
	linkErr error
}

func (f *fakeAccounts) LoginsByWallet(context.Context, string) ([]string, error) {
	return f.logins, nil
}

func (f *fakeAccounts) IsWalletOwner(context.Context, string, string) (bool, error) {
	return true, nil
}

func (f *fakeAccounts) Link(context.Context, string, string, string) error { return f.linkErr }

func (f *fakeAccounts) Unlink(context.Context, string, string, string) error { return f.linkErr }

type fakeRealmInfo struct{ total int64 }

func (f *fakeRealmInfo) Get(context.Context, int) (realminfo.Info, error) {
	return realminfo.Info{}, realminfo.ErrRealmNotFound
}

func (f *fakeRealmInfo) List(context.Context) ([]realminfo.Info, error) { return nil, nil }

func (f *fakeRealmInfo) UpdateBalance(context.Context, int, int64) error { return nil }

func (f *fakeRealmInfo) TotalBalance(context.Context) (int64, error) { return f.total, nil }

const testWallet = "0x1234567890abcDEF1234567890abcdef12345678"

func testDispatcher() (*Dispatcher, *fakeRPC, *fakeWithdrawer) {
	rpc := &fakeRPC{responses: map[string]realms.Response{}}
	eng := &fakeWithdrawer{}

	d := &Dispatcher{
		reg:    &fakeRegistry{online: map[int]bool{1: true}},
		rpc:    rpc,
		engine: eng,
		accs:   &fakeAccounts{logins: []string{"bobacc"}},
		info:   &fakeRealmInfo{total: 500},
	}

	return d, rpc, eng
}

func env(id, subject, data string) Envelope {
	return Envelope{ID: id, Subject: subject, Data: json.RawMessage(data)}
}

// --- Envelope validation ---

func TestHandle_EnvelopeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		envelope  Envelope
		wantError string
	}{
		{name: "unknown_coordinator_subject", envelope: env(CoordinatorID, "reboot", `{}`), wantError: "unknown operation"},
		{name: "unknown_realm_subject", envelope: env("1", "reboot", `{}`), wantError: "unknown operation"},
		{name: "non_numeric_realm_id", envelope: env("bartz", SubjectGetGameServerMode, `{}`), wantError: `illegal realm id "bartz"`},
		{name: "realm_id_zero", envelope: env("0", SubjectGetGameServerMode, `{}`), wantError: `illegal realm id "0"`},
		{name: "realm_id_above_range", envelope: env("128", SubjectGetGameServerMode, `{}`), wantError: `illegal realm id "128"`},
		{name: "offline_realm", envelope: env("2", SubjectGetGameServerMode, `{}`), wantError: "realm 2 is offline"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, rpc, _ := testDispatcher()

			resp := d.Handle(context.Background(), tt.envelope)
			if resp.OK {
				t.Fatalf("expected failure, got %+v", resp)
			}
			if resp.Error != tt.wantError {
				t.Fatalf("want %q, got %q", tt.wantError, resp.Error)
			}
			if rpc.calls != 0 {
				t.Fatalf("rejected envelope must never reach a realm")
			}
		})
	}
}

// --- Coordinator subjects ---

func TestGetAccounts(t *testing.T) {
	t.Parallel()

	d, _, _ := testDispatcher()

	resp := d.Handle(context.Background(), env(CoordinatorID, SubjectGetAccounts,
		`{"walletAddress":"`+testWallet+`"}`))
	if !resp.OK {
		t.Fatalf("get accounts failed: %s", resp.Error)
	}
	if string(resp.Data) != `["bobacc"]` {
		t.Fatalf("unexpected data: %s", resp.Data)
	}
}

func TestGetAccounts_RejectsMalformedWallet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		wallet string
	}{
		{name: "no_prefix", wallet: "1234567890abcdef1234567890abcdef12345678"},
		{name: "too_short", wallet: "0x1234"},
		{name: "bad_chars", wallet: "0xZZ34567890abcdef1234567890abcdef12345678"},
		{name: "empty", wallet: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, _, _ := testDispatcher()

			resp := d.Handle(context.Background(), env(CoordinatorID, SubjectGetAccounts,
				`{"walletAddress":"`+tt.wallet+`"}`))
			if resp.OK {
				t.Fatalf("malformed wallet must fail")
			}
			if resp.Error != "malformed wallet address" {
				t.Fatalf("unexpected error: %q", resp.Error)
			}
		})
	}
}

func TestGetClientBalance(t *testing.T) {
	t.Parallel()

	d, _, _ := testDispatcher()

	resp := d.Handle(context.Background(), env(CoordinatorID, SubjectGetClientBalance, `{}`))
	if !resp.OK {
		t.Fatalf("get client balance failed: %s", resp.Error)
	}
	if string(resp.Data) != "500" {
		t.Fatalf("unexpected data: %s", resp.Data)
	}
}

func TestLinkAccount_MapsSentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		linkErr   error
		wantError string
	}{
		{name: "bad_credentials", linkErr: accounts.ErrCredentialsMismatch, wantError: "username - password mismatch"},
		{name: "already_linked", linkErr: accounts.ErrAlreadyLinked, wantError: "account already linked"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, _, _ := testDispatcher()
			d.accs = &fakeAccounts{linkErr: tt.linkErr}

			resp := d.Handle(context.Background(), env(CoordinatorID, SubjectLinkAccount,
				`{"username":"bobacc","password":"aa","walletAddress":"`+testWallet+`"}`))
			if resp.OK {
				t.Fatalf("expected failure")
			}
			if resp.Error != tt.wantError {
				t.Fatalf("want %q, got %q", tt.wantError, resp.Error)
			}
		})
	}
}

// --- Realm subjects ---

func TestForward_FlattensDataFields(t *testing.T) {
	t.Parallel()

	d, rpc, _ := testDispatcher()
	rpc.responses[SubjectGetCharacterBalance] = realms.OKData(100)

	resp := d.Handle(context.Background(), env("1", SubjectGetCharacterBalance, `{"character":"Bob"}`))
	if !resp.OK {
		t.Fatalf("forward failed: %s", resp.Error)
	}
	if string(resp.Data) != "100" {
		t.Fatalf("unexpected data: %s", resp.Data)
	}
	if len(rpc.lastInfo) != 1 || rpc.lastInfo[0] != "Bob" {
		t.Fatalf("unexpected info: %v", rpc.lastInfo)
	}
}

func TestForward_MissingField(t *testing.T) {
	t.Parallel()

	d, rpc, _ := testDispatcher()

	resp := d.Handle(context.Background(), env("1", SubjectGetCharacterBalance, `{}`))
	if resp.OK {
		t.Fatalf("expected failure")
	}
	if resp.Error != `missing field "character"` {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
	if rpc.calls != 0 {
		t.Fatalf("incomplete request must not reach the realm")
	}
}

func TestRequestWithdraw_ParsesAndDelegates(t *testing.T) {
	t.Parallel()

	d, _, eng := testDispatcher()

	resp := d.Handle(context.Background(), env("1", SubjectRequestWithdraw,
		`{"walletAddress":"`+testWallet+`","character":"Bob","refund":"1700000000","amount":"40"}`))
	if !resp.OK {
		t.Fatalf("withdraw failed: %s", resp.Error)
	}

	if eng.got == nil {
		t.Fatalf("engine was not called")
	}

	want := reconcile.WithdrawRequest{
		RealmID:      1,
		Character:    "Bob",
		Wallet:       testWallet,
		RefundUnlock: 1_700_000_000,
		Amount:       40,
	}
	if *eng.got != want {
		t.Fatalf("request mismatch:\nwant %+v\ngot  %+v", want, *eng.got)
	}
}

func TestRequestWithdraw_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		data      string
		wantError string
	}{
		{
			name:      "bad_amount",
			data:      `{"walletAddress":"` + testWallet + `","character":"Bob","refund":"1700000000","amount":"forty"}`,
			wantError: "malformed amount",
		},
		{
			name:      "negative_amount",
			data:      `{"walletAddress":"` + testWallet + `","character":"Bob","refund":"1700000000","amount":"-5"}`,
			wantError: "malformed amount",
		},
		{
			name:      "bad_refund",
			data:      `{"walletAddress":"` + testWallet + `","character":"Bob","refund":"soon","amount":"40"}`,
			wantError: "malformed refund token",
		},
		{
			name:      "bad_wallet",
			data:      `{"walletAddress":"0x12","character":"Bob","refund":"1700000000","amount":"40"}`,
			wantError: "malformed wallet address",
		},
		{
			name:      "missing_character",
			data:      `{"walletAddress":"` + testWallet + `","refund":"1700000000","amount":"40"}`,
			wantError: "malformed request data",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, _, eng := testDispatcher()

			resp := d.Handle(context.Background(), env("1", SubjectRequestWithdraw, tt.data))
			if resp.OK {
				t.Fatalf("expected failure")
			}
			if resp.Error != tt.wantError {
				t.Fatalf("want %q, got %q", tt.wantError, resp.Error)
			}
			if eng.got != nil {
				t.Fatalf("invalid request must not reach the engine")
			}
		})
	}
}

func TestRequestWithdraw_MapsEngineSentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantError string
	}{
		{name: "duplicate", err: pending.ErrDuplicateWithdrawal, wantError: "duplicate withdrawal request"},
		{name: "wallet_mismatch", err: reconcile.ErrWalletMismatch, wantError: "wallet is not linked to this account"},
		{name: "unknown_character", err: reconcile.ErrCharacterUnknown, wantError: "character not found"},
		{name: "timeout", err: realms.ErrTimeout, wantError: "realm did not respond"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, _, eng := testDispatcher()
			eng.err = tt.err

			resp := d.Handle(context.Background(), env("1", SubjectRequestWithdraw,
				`{"walletAddress":"`+testWallet+`","character":"Bob","refund":"1700000000","amount":"40"}`))
			if resp.OK {
				t.Fatalf("expected failure")
			}
			if resp.Error != tt.wantError {
				t.Fatalf("want %q, got %q", tt.wantError, resp.Error)
			}
		})
	}
}
