package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexscore/backend/internal/middleware"
	"github.com/lexscore/backend/internal/models"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakePool struct{}

func (fakePool) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

// TestDepositIdempotencyKeyRace covers the deposit whose idempotency-key
// insert loses to a concurrent request: the response must be the winner's
// entry, not an internal error.
func TestDepositIdempotencyKeyRace(t *testing.T) {
	key := uuid.New()
	winner := &models.LedgerEntry{ID: 42, AccountID: 1, AmountCents: 1000,
		Kind: models.LedgerKindCredit, Reason: "balance top-up via API", OpKey: &key}
	repo := &racingRepo{memRepo: newMemRepo(map[int64]int64{1: 0}), winner: winner}
	h := NewHandler(fakePool{}, NewService(repo), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/balance/deposit",
		strings.NewReader(`{"amount": 10}`))
	req.Header.Set("Idempotency-Key", key.String())
	req = req.WithContext(middleware.WithAccount(req.Context(),
		&models.Account{ID: 1, Email: "demo@example.com", Role: models.RoleUser}))
	rr := httptest.NewRecorder()
	h.Deposit(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (body %s)", rr.Code, rr.Body.String())
	}
	var resp struct {
		ID     int64   `json:"id"`
		Amount float64 `json:"amount"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 42 {
		t.Errorf("entry id: got %d, want the winner's 42", resp.ID)
	}
	if resp.Amount != 10 {
		t.Errorf("amount: got %v, want 10", resp.Amount)
	}
}
