package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexscore/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory Repo. Lets us exercise the real Service logic, including its
// concurrency guarantees, without a database.
// ---------------------------------------------------------------------------

type memRepo struct {
	mu       sync.Mutex
	balances map[int64]int64
	entries  []*models.LedgerEntry
	nextID   int64
}

func newMemRepo(balances map[int64]int64) *memRepo {
	m := &memRepo{balances: make(map[int64]int64)}
	for id, b := range balances {
		m.balances[id] = b
	}
	return m
}

func (m *memRepo) ApplyCredit(_ context.Context, _ pgx.Tx, accountID, amountCents int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[accountID]; !ok {
		return 0, ErrAccountNotFound
	}
	m.balances[accountID] += amountCents
	return m.balances[accountID], nil
}

func (m *memRepo) ApplyDebit(_ context.Context, _ pgx.Tx, accountID, amountCents int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[accountID]
	if !ok || b < amountCents {
		return 0, ErrInsufficientFunds
	}
	m.balances[accountID] = b - amountCents
	return m.balances[accountID], nil
}

func (m *memRepo) InsertEntry(_ context.Context, _ pgx.Tx, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memRepo) GetEntryByOpKey(_ context.Context, _ pgx.Tx, key uuid.UUID) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.OpKey != nil && *e.OpKey == key {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) Balance(_ context.Context, accountID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return b, nil
}

func (m *memRepo) ListEntries(_ context.Context, accountID int64) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.AccountID == accountID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// pgUniqueErr mimics the pgconn error shape for a 23505 unique violation.
type pgUniqueErr struct{}

func (pgUniqueErr) Error() string {
	return `duplicate key value violates unique constraint "ledger_entries_op_key_key"`
}
func (pgUniqueErr) SQLState() string { return "23505" }

// racingRepo simulates losing an idempotency-key insert race: the lookup
// misses, the insert trips the unique constraint, and later lookups see the
// winner's entry.
type racingRepo struct {
	*memRepo
	winner  *models.LedgerEntry
	lookups int
}

func (r *racingRepo) GetEntryByOpKey(ctx context.Context, tx pgx.Tx, key uuid.UUID) (*models.LedgerEntry, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.winner, nil
}

func (r *racingRepo) InsertEntry(context.Context, pgx.Tx, *models.LedgerEntry) error {
	return pgUniqueErr{}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreditAndDebit(t *testing.T) {
	const acct = int64(1)
	repo := newMemRepo(map[int64]int64{acct: 0})
	svc := NewService(repo)
	ctx := context.Background()

	entry, err := svc.Credit(ctx, nil, acct, 1000, "top-up", uuid.Nil)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if entry.Kind != models.LedgerKindCredit || entry.AmountCents != 1000 {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if _, err := svc.Debit(ctx, nil, acct, 300, "charge", uuid.Nil); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	balance, err := svc.Balance(ctx, acct)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 700 {
		t.Errorf("balance: got %d, want 700", balance)
	}

	entries, _ := svc.Entries(ctx, acct)
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
}

func TestInvalidAmount(t *testing.T) {
	repo := newMemRepo(map[int64]int64{1: 500})
	svc := NewService(repo)
	ctx := context.Background()

	for _, amount := range []int64{0, -100} {
		if _, err := svc.Credit(ctx, nil, 1, amount, "", uuid.Nil); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Credit(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
		if _, err := svc.Debit(ctx, nil, 1, amount, "", uuid.Nil); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Debit(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
	}

	// No entries should have been written.
	if entries, _ := svc.Entries(ctx, 1); len(entries) != 0 {
		t.Errorf("entries after invalid ops: got %d, want 0", len(entries))
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	repo := newMemRepo(map[int64]int64{1: 300})
	svc := NewService(repo)
	ctx := context.Background()

	if _, err := svc.Debit(ctx, nil, 1, 500, "charge", uuid.Nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, _ := svc.Balance(ctx, 1)
	if balance != 300 {
		t.Errorf("balance after failed debit: got %d, want 300", balance)
	}
	if entries, _ := svc.Entries(ctx, 1); len(entries) != 0 {
		t.Errorf("failed debit must not append an entry, got %d", len(entries))
	}
}

func TestIdempotentOpKey(t *testing.T) {
	repo := newMemRepo(map[int64]int64{1: 0})
	svc := NewService(repo)
	ctx := context.Background()
	key := uuid.New()

	first, err := svc.Credit(ctx, nil, 1, 1000, "top-up", key)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	second, err := svc.Credit(ctx, nil, 1, 1000, "top-up", key)
	if err != nil {
		t.Fatalf("Credit replay: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("replay returned a new entry: %d vs %d", second.ID, first.ID)
	}

	balance, _ := svc.Balance(ctx, 1)
	if balance != 1000 {
		t.Errorf("balance after replay: got %d, want 1000 (applied once)", balance)
	}
	if entries, _ := svc.Entries(ctx, 1); len(entries) != 1 {
		t.Errorf("entries after replay: got %d, want 1", len(entries))
	}
}

func TestOpKeyInsertRaceLoser(t *testing.T) {
	key := uuid.New()
	winner := &models.LedgerEntry{ID: 42, AccountID: 1, AmountCents: 1000,
		Kind: models.LedgerKindCredit, OpKey: &key}
	repo := &racingRepo{memRepo: newMemRepo(map[int64]int64{1: 0}), winner: winner}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Credit(ctx, nil, 1, 1000, "top-up", key)
	if !errors.Is(err, ErrDuplicateOpKey) {
		t.Fatalf("expected ErrDuplicateOpKey, got %v", err)
	}

	// The winner's entry is recoverable for the replay response.
	entry, err := svc.EntryByOpKey(ctx, nil, key)
	if err != nil {
		t.Fatalf("EntryByOpKey: %v", err)
	}
	if entry == nil || entry.ID != 42 {
		t.Errorf("replay lookup: got %+v, want winner entry 42", entry)
	}
}

// TestConcurrentDebits checks the conservation property: the final balance
// equals initial minus the sum of successful debits, and no debit that would
// go negative ever succeeds.
func TestConcurrentDebits(t *testing.T) {
	const (
		acct    = int64(7)
		initial = int64(1000)
		amount  = int64(300)
		workers = 10
	)
	repo := newMemRepo(map[int64]int64{acct: initial})
	svc := NewService(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Debit(ctx, nil, acct, amount, "race", uuid.Nil); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 1000 / 300: at most 3 debits can fit.
	if succeeded != 3 {
		t.Errorf("successful debits: got %d, want 3", succeeded)
	}
	balance, _ := svc.Balance(ctx, acct)
	if want := initial - int64(succeeded)*amount; balance != want {
		t.Errorf("balance: got %d, want %d", balance, want)
	}
	if balance < 0 {
		t.Error("balance went negative")
	}
	entries, _ := svc.Entries(ctx, acct)
	if len(entries) != succeeded {
		t.Errorf("entries: got %d, want %d (one per successful debit)", len(entries), succeeded)
	}
}
