package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexscore/backend/internal/models"
)

var (
	// ErrInvalidAmount is returned for credit/debit amounts <= 0.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientFunds is returned when the balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAccountNotFound is returned when the referenced account is missing.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateOpKey is returned when a concurrent operation with the same
	// idempotency key won the insert race. The surrounding transaction is
	// aborted at that point; the caller must re-read the original entry in a
	// fresh transaction.
	ErrDuplicateOpKey = errors.New("operation key already used")
)

// Repo is the minimal storage interface the ledger service needs. The pgx
// Repository implements it; tests substitute an in-memory version.
type Repo interface {
	ApplyCredit(ctx context.Context, tx pgx.Tx, accountID, amountCents int64) (int64, error)
	ApplyDebit(ctx context.Context, tx pgx.Tx, accountID, amountCents int64) (int64, error)
	InsertEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	GetEntryByOpKey(ctx context.Context, tx pgx.Tx, key uuid.UUID) (*models.LedgerEntry, error)
	Balance(ctx context.Context, accountID int64) (int64, error)
	ListEntries(ctx context.Context, accountID int64) ([]*models.LedgerEntry, error)
}

// Service implements the append-only credit accounting primitive. Every
// successful operation writes exactly one entry atomically with the balance
// change, inside the transaction handle the caller passes in.
type Service struct {
	repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{repo: repo}
}

// Credit increases the account balance by amountCents. opKey, when not
// uuid.Nil, deduplicates retries: a second call with the same key returns the
// original entry without applying anything.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, accountID, amountCents int64, reason string, opKey uuid.UUID) (*models.LedgerEntry, error) {
	return s.apply(ctx, tx, accountID, amountCents, models.LedgerKindCredit, reason, opKey)
}

// Debit decreases the account balance by amountCents. Fails with
// ErrInsufficientFunds when the balance cannot cover the amount; the check
// and the deduction are one atomic statement.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, accountID, amountCents int64, reason string, opKey uuid.UUID) (*models.LedgerEntry, error) {
	return s.apply(ctx, tx, accountID, amountCents, models.LedgerKindDebit, reason, opKey)
}

func (s *Service) apply(ctx context.Context, tx pgx.Tx, accountID, amountCents int64, kind, reason string, opKey uuid.UUID) (*models.LedgerEntry, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	if opKey != uuid.Nil {
		existing, err := s.repo.GetEntryByOpKey(ctx, tx, opKey)
		if err != nil {
			return nil, fmt.Errorf("lookup op key: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	var err error
	if kind == models.LedgerKindDebit {
		_, err = s.repo.ApplyDebit(ctx, tx, accountID, amountCents)
	} else {
		_, err = s.repo.ApplyCredit(ctx, tx, accountID, amountCents)
	}
	if err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		AccountID:   accountID,
		AmountCents: amountCents,
		Kind:        kind,
		Reason:      reason,
	}
	if opKey != uuid.Nil {
		entry.OpKey = &opKey
	}
	if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
		// Two concurrent operations with the same key can both miss the
		// lookup above; the loser trips the op_key UNIQUE constraint.
		if opKey != uuid.Nil && isUniqueViolation(err) {
			return nil, ErrDuplicateOpKey
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return entry, nil
}

// EntryByOpKey returns the entry previously written with the idempotency key,
// or nil when none exists.
func (s *Service) EntryByOpKey(ctx context.Context, tx pgx.Tx, key uuid.UUID) (*models.LedgerEntry, error) {
	return s.repo.GetEntryByOpKey(ctx, tx, key)
}

// Balance returns the current balance. Never negative by construction: the
// debit path refuses any deduction the balance cannot cover.
func (s *Service) Balance(ctx context.Context, accountID int64) (int64, error) {
	return s.repo.Balance(ctx, accountID)
}

// Entries returns the account's history, newest first.
func (s *Service) Entries(ctx context.Context, accountID int64) ([]*models.LedgerEntry, error) {
	return s.repo.ListEntries(ctx, accountID)
}
