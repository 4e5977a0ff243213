package tasks

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexscore/backend/internal/models"
)

const taskColumns = `id, account_id, model_id, input_data, status, prediction,
	error_message, credits_charged_cents, created_at, started_at, completed_at`

// Repository is the Postgres task store. Status transitions are guarded
// UPDATEs: the WHERE clause on the current status is what makes each
// transition atomic and duplicate-safe.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreateTx inserts a new pending task inside the caller's transaction.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (account_id, model_id, input_data, status, credits_charged_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, t.AccountID, t.ModelID, t.InputData, t.Status, t.CreditsChargedCents).Scan(&t.ID, &t.CreatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

// GetForAccount reads a task scoped to its owning account.
func (r *Repository) GetForAccount(ctx context.Context, id, accountID int64) (*models.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND account_id = $2
	`, id, accountID)
	return scanTask(row)
}

// MarkProcessing transitions pending → processing. Returns (nil, nil) when
// the task is not pending, which is how duplicate deliveries lose the race.
func (r *Repository) MarkProcessing(ctx context.Context, id int64) (*models.Task, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tasks SET status = $2, started_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+taskColumns, id, models.TaskStatusProcessing, models.TaskStatusPending)
	t, err := scanTask(row)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, nil
	}
	return t, err
}

// MarkCompletedTx transitions processing → completed inside the caller's
// transaction. Returns (nil, nil) when the task is not processing.
func (r *Repository) MarkCompletedTx(ctx context.Context, tx pgx.Tx, id int64, prediction float64) (*models.Task, error) {
	row := tx.QueryRow(ctx, `
		UPDATE tasks SET status = $2, prediction = $3, completed_at = now()
		WHERE id = $1 AND status = $4
		RETURNING `+taskColumns, id, models.TaskStatusCompleted, prediction, models.TaskStatusProcessing)
	t, err := scanTask(row)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, nil
	}
	return t, err
}

// MarkFailedTx transitions pending or processing → failed inside the caller's
// transaction. Returns (nil, nil) when the task is already terminal.
func (r *Repository) MarkFailedTx(ctx context.Context, tx pgx.Tx, id int64, errMsg string) (*models.Task, error) {
	row := tx.QueryRow(ctx, `
		UPDATE tasks SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING `+taskColumns,
		id, models.TaskStatusFailed, errMsg, models.TaskStatusPending, models.TaskStatusProcessing)
	t, err := scanTask(row)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, nil
	}
	return t, err
}

// InsertPredictionTx appends the denormalized history row inside the caller's
// transaction, atomically with the task's completed transition.
func (r *Repository) InsertPredictionTx(ctx context.Context, tx pgx.Tx, p *models.PredictionRecord) error {
	return tx.QueryRow(ctx, `
		INSERT INTO predictions (account_id, model_id, total_debt, penalty_amount,
			days_overdue, payments_ratio, is_physical_person, prediction, credits_charged_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, p.AccountID, p.ModelID, p.TotalDebt, p.PenaltyAmount, p.DaysOverdue,
		p.PaymentsRatio, p.IsPhysicalPerson, p.Prediction, p.CreditsChargedCents).Scan(&p.ID, &p.CreatedAt)
}

// ListPredictions returns the account's completed-prediction history, newest
// first.
func (r *Repository) ListPredictions(ctx context.Context, accountID int64) ([]*models.PredictionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, model_id, total_debt, penalty_amount, days_overdue,
			payments_ratio, is_physical_person, prediction, credits_charged_cents, created_at
		FROM predictions WHERE account_id = $1 ORDER BY created_at DESC, id DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PredictionRecord
	for rows.Next() {
		var p models.PredictionRecord
		if err := rows.Scan(&p.ID, &p.AccountID, &p.ModelID, &p.TotalDebt, &p.PenaltyAmount,
			&p.DaysOverdue, &p.PaymentsRatio, &p.IsPhysicalPerson, &p.Prediction,
			&p.CreditsChargedCents, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.AccountID, &t.ModelID, &t.InputData, &t.Status, &t.Prediction,
		&t.ErrorMessage, &t.CreditsChargedCents, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
