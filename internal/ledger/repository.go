package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexscore/backend/internal/models"
)

// Repository is the Postgres implementation of the ledger storage contract.
// Balance mutations and entry inserts run inside the caller's transaction so
// the higher-level operation (task submission, deposit) commits atomically.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// ApplyCredit adds amountCents to the account balance and returns the new
// balance. Runs inside the caller's transaction.
func (r *Repository) ApplyCredit(ctx context.Context, tx pgx.Tx, accountID, amountCents int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET balance_cents = balance_cents + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance_cents
	`, amountCents, accountID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return newBalance, err
}

// ApplyDebit deducts amountCents if the balance covers it. The conditional
// UPDATE is the atomic overspend guard: two concurrent debits serialize on
// the row and the second one sees the reduced balance.
func (r *Repository) ApplyDebit(ctx context.Context, tx pgx.Tx, accountID, amountCents int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET balance_cents = balance_cents - $1, updated_at = now()
		WHERE id = $2 AND balance_cents >= $1
		RETURNING balance_cents
	`, amountCents, accountID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientFunds
	}
	return newBalance, err
}

// InsertEntry appends one immutable ledger entry inside the transaction.
func (r *Repository) InsertEntry(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (account_id, amount_cents, kind, reason, op_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, e.AccountID, e.AmountCents, e.Kind, e.Reason, e.OpKey).Scan(&e.ID, &e.CreatedAt)
}

// GetEntryByOpKey returns the entry previously written with the given
// idempotency key, or nil when no such entry exists.
func (r *Repository) GetEntryByOpKey(ctx context.Context, tx pgx.Tx, key uuid.UUID) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := tx.QueryRow(ctx, `
		SELECT id, account_id, amount_cents, kind, reason, op_key, created_at
		FROM ledger_entries WHERE op_key = $1
	`, key).Scan(&e.ID, &e.AccountID, &e.AmountCents, &e.Kind, &e.Reason, &e.OpKey, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Balance returns the account's current balance.
func (r *Repository) Balance(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT balance_cents FROM accounts WHERE id = $1
	`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return balance, err
}

// ListEntries returns the account's ledger entries, newest first.
func (r *Repository) ListEntries(ctx context.Context, accountID int64) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, amount_cents, kind, reason, op_key, created_at
		FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC, id DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.AmountCents, &e.Kind, &e.Reason, &e.OpKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
