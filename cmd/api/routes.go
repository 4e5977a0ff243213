package main

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexscore/backend/internal/catalog"
	"github.com/lexscore/backend/internal/ledger"
	"github.com/lexscore/backend/internal/middleware"
	"github.com/lexscore/backend/internal/models"
	"github.com/lexscore/backend/internal/tasks"
)

// newRouter assembles the API surface. Everything under /v1 except account
// creation requires a resolved account; admin routes additionally require
// the matching capability.
func newRouter(
	pool *pgxpool.Pool,
	accounts *ledger.AccountRepo,
	ledgerH *ledger.Handler,
	catalogH *catalog.Handler,
	taskH *tasks.Handler,
) http.Handler {
	mux := http.NewServeMux()

	auth := middleware.ResolveAccount(accounts)
	authed := func(h http.HandlerFunc) http.Handler {
		return auth(h)
	}
	admin := func(capability string, h http.HandlerFunc) http.Handler {
		return auth(middleware.RequireCapability(capability)(h))
	}

	mux.Handle("POST /v1/accounts", http.HandlerFunc(ledgerH.CreateAccount))

	mux.Handle("GET /v1/models", authed(catalogH.ListModels))
	mux.Handle("POST /v1/predictions", authed(taskH.CreatePrediction))
	mux.Handle("GET /v1/predictions", authed(taskH.ListPredictions))
	mux.Handle("GET /v1/predictions/{id}", authed(taskH.GetPrediction))

	mux.Handle("GET /v1/balance", authed(ledgerH.GetBalance))
	mux.Handle("POST /v1/balance/deposit", authed(ledgerH.Deposit))
	mux.Handle("GET /v1/transactions", authed(ledgerH.ListTransactions))

	mux.Handle("GET /v1/admin/accounts", admin(models.CapListAccounts, ledgerH.ListAccounts))
	mux.Handle("POST /v1/admin/accounts/{id}/deposit", admin(models.CapAdjustBalance, ledgerH.AdminDeposit))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, `{"status":"degraded"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return middleware.HTTPMetrics(mux)
}
