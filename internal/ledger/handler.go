package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexscore/backend/internal/middleware"
	"github.com/lexscore/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountStore is the account repository subset the handler needs.
type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
}

// Handler serves the billing and account endpoints.
type Handler struct {
	Pool     TxBeginner
	Ledger   *Service
	Accounts AccountStore
	Logger   *slog.Logger
}

func NewHandler(pool TxBeginner, ledger *Service, accounts AccountStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Pool: pool, Ledger: ledger, Accounts: accounts, Logger: logger}
}

type balanceResponse struct {
	AccountID int64   `json:"account_id"`
	Balance   float64 `json:"balance"`
}

type depositRequest struct {
	Amount float64 `json:"amount"`
}

type entryResponse struct {
	ID        int64   `json:"id"`
	Amount    float64 `json:"amount"`
	Kind      string  `json:"kind"`
	Reason    string  `json:"reason"`
	CreatedAt string  `json:"created_at"`
}

// GetBalance handles GET /v1/balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	balance, err := h.Ledger.Balance(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("get balance", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: acc.ID, Balance: centsToCredits(balance)})
}

// Deposit handles POST /v1/balance/deposit: a self-service top-up. An
// optional Idempotency-Key header (UUID) makes retries safe.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	h.deposit(w, r, acc.ID, "balance top-up via API")
}

// AdminDeposit handles POST /v1/admin/accounts/{id}/deposit. Capability
// checks happen in middleware; the handler only resolves the target account.
func (h *Handler) AdminDeposit(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AccountFromCtx(r.Context())
	if caller == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	targetID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid account id"}`, http.StatusBadRequest)
		return
	}
	if _, err := h.Accounts.GetByID(r.Context(), targetID); err != nil {
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	}
	h.deposit(w, r, targetID, "admin deposit by "+caller.Email)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request, accountID int64, reason string) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	amountCents := creditsToCents(req.Amount)
	if amountCents <= 0 {
		http.Error(w, `{"error":"amount must be positive"}`, http.StatusUnprocessableEntity)
		return
	}

	opKey := uuid.Nil
	if raw := r.Header.Get("Idempotency-Key"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, `{"error":"Idempotency-Key must be a UUID"}`, http.StatusBadRequest)
			return
		}
		opKey = parsed
	}

	tx, err := h.Pool.Begin(r.Context())
	if err != nil {
		h.Logger.Error("begin deposit tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	entry, err := h.Ledger.Credit(r.Context(), tx, accountID, amountCents, reason, opKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateOpKey):
			h.replayDeposit(w, r, tx, opKey)
		case errors.Is(err, ErrInvalidAmount):
			http.Error(w, `{"error":"amount must be positive"}`, http.StatusUnprocessableEntity)
		case errors.Is(err, ErrAccountNotFound):
			http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		default:
			h.Logger.Error("deposit", "account_id", accountID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.Logger.Error("commit deposit tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, entryToResponse(entry))
}

// replayDeposit serves the losing side of a concurrent idempotency-key race.
// The original transaction is aborted by the unique violation, so the entry
// the winner wrote is read back in a fresh one.
func (h *Handler) replayDeposit(w http.ResponseWriter, r *http.Request, aborted pgx.Tx, opKey uuid.UUID) {
	_ = aborted.Rollback(r.Context())

	tx, err := h.Pool.Begin(r.Context())
	if err != nil {
		h.Logger.Error("begin replay tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	entry, err := h.Ledger.EntryByOpKey(r.Context(), tx, opKey)
	if err != nil || entry == nil {
		h.Logger.Error("replay deposit lookup", "op_key", opKey, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, entryToResponse(entry))
}

// ListTransactions handles GET /v1/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	entries, err := h.Ledger.Entries(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list transactions", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type createAccountRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// CreateAccount handles POST /v1/accounts: a new principal with zero balance.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		http.Error(w, `{"error":"email is required"}`, http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	if !models.ValidRole(req.Role) {
		http.Error(w, `{"error":"invalid role"}`, http.StatusBadRequest)
		return
	}
	acc := &models.Account{Email: req.Email, Role: req.Role}
	if err := h.Accounts.Create(r.Context(), acc); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			http.Error(w, `{"error":"email already registered"}`, http.StatusConflict)
			return
		}
		h.Logger.Error("create account", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

// ListAccounts handles GET /v1/admin/accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Accounts.List(r.Context())
	if err != nil {
		h.Logger.Error("list accounts", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func entryToResponse(e *models.LedgerEntry) entryResponse {
	return entryResponse{
		ID:        e.ID,
		Amount:    centsToCredits(e.AmountCents),
		Kind:      e.Kind,
		Reason:    e.Reason,
		CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func centsToCredits(cents int64) float64 {
	return float64(cents) / models.CentsPerCredit
}

func creditsToCents(credits float64) int64 {
	return int64(math.Round(credits * models.CentsPerCredit))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
