package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/fastprodman/realmpay/internal/repos/accounts"
	"github.com/fastprodman/realmpay/internal/repos/pending"
	"github.com/fastprodman/realmpay/internal/repos/realminfo"
)

// HandlerProvider exposes the read-only operator endpoints.
type HandlerProvider struct {
	online func() []int
	info   realminfo.RealmInfo
	pend   pending.Pending
	accs   accounts.Accounts
}

func NewHandler(online func() []int, info realminfo.RealmInfo, pend pending.Pending, accs accounts.Accounts) *HandlerProvider {
	return &HandlerProvider{online: online, info: info, pend: pend, accs: accs}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var walletShape = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// --- Handlers ---

type realmView struct {
	RealmID      int    `json:"realmId"`
	Name         string `json:"name"`
	RewardItemID int    `json:"rewardItemId"`
	Balance      int64  `json:"balance"`
	Online       bool   `json:"online"`
}

// ListRealmsHandler returns every registered realm with its last known
// balance snapshot and live connection state.
func (h *HandlerProvider) ListRealmsHandler(w http.ResponseWriter, r *http.Request) {
	infos, err := h.info.List(r.Context())
	if err != nil {
		slog.Error("list realms failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	connected := map[int]bool{}
	for _, id := range h.online() {
		connected[id] = true
	}

	views := make([]realmView, 0, len(infos))
	for _, info := range infos {
		views = append(views, realmView{
			RealmID:      info.RealmID,
			Name:         info.Name,
			RewardItemID: info.RewardItemID,
			Balance:      info.Balance,
			Online:       connected[info.RealmID],
		})
	}

	writeJSON(w, http.StatusOK, views)
}

type pendingView struct {
	RealmID      int    `json:"realmId"`
	Character    string `json:"character"`
	RefundUnlock int64  `json:"refundUnlock"`
	Amount       int64  `json:"amount"`
}

// ListPendingHandler returns all in-flight withdrawals.
func (h *HandlerProvider) ListPendingHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.pend.List(r.Context())
	if err != nil {
		slog.Error("list pending withdrawals failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	views := make([]pendingView, 0, len(rows))
	for _, row := range rows {
		views = append(views, pendingView{
			RealmID:      row.RealmID,
			Character:    row.Character,
			RefundUnlock: row.RefundUnlock,
			Amount:       row.Amount,
		})
	}

	writeJSON(w, http.StatusOK, views)
}

// WalletAccountsHandler returns the logins linked to `{wallet}`.
func (h *HandlerProvider) WalletAccountsHandler(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")
	if !walletShape.MatchString(wallet) {
		writeError(w, http.StatusBadRequest, "malformed wallet address")

		return
	}

	logins, err := h.accs.LoginsByWallet(r.Context(), wallet)
	if err != nil {
		slog.Error("list wallet accounts failed", "wallet", wallet, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"wallet": wallet, "accounts": logins})
}

// ClientBalanceHandler returns the summed balance snapshot across realms.
func (h *HandlerProvider) ClientBalanceHandler(w http.ResponseWriter, r *http.Request) {
	total, err := h.info.TotalBalance(r.Context())
	if err != nil {
		slog.Error("client balance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"balance": total})
}
