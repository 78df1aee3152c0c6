package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter registers the operator endpoints on a chi router.
func NewRouter(h *HandlerProvider) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/realms", h.ListRealmsHandler)
	r.Get("/withdrawals/pending", h.ListPendingHandler)
	r.Get("/wallets/{wallet}/accounts", h.WalletAccountsHandler)
	r.Get("/balance/client", h.ClientBalanceHandler)

	return r
}
