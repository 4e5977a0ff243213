package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexscore/backend/internal/models"
	"github.com/lexscore/backend/internal/queue"
	"github.com/lexscore/backend/internal/scoring"
)

var (
	// ErrTaskNotFound is returned when no task matches (or the caller does
	// not own it).
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a status change would leave a
	// terminal state or skip a step.
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// Repo is the task storage contract. The pgx Repository implements it; tests
// substitute an in-memory version.
type Repo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	GetForAccount(ctx context.Context, id, accountID int64) (*models.Task, error)
	MarkProcessing(ctx context.Context, id int64) (*models.Task, error)
	MarkCompletedTx(ctx context.Context, tx pgx.Tx, id int64, prediction float64) (*models.Task, error)
	MarkFailedTx(ctx context.Context, tx pgx.Tx, id int64, errMsg string) (*models.Task, error)
	InsertPredictionTx(ctx context.Context, tx pgx.Tx, p *models.PredictionRecord) error
	ListPredictions(ctx context.Context, accountID int64) ([]*models.PredictionRecord, error)
}

// CreditLedger is the ledger subset task billing needs.
type CreditLedger interface {
	Debit(ctx context.Context, tx pgx.Tx, accountID, amountCents int64, reason string, opKey uuid.UUID) (*models.LedgerEntry, error)
	Credit(ctx context.Context, tx pgx.Tx, accountID, amountCents int64, reason string, opKey uuid.UUID) (*models.LedgerEntry, error)
}

// ModelCatalog resolves scoring models by name.
type ModelCatalog interface {
	GetByName(ctx context.Context, name string) (*models.ScoringModel, error)
}

// InsertScoreTaskTxFunc enqueues a scoring job within the given transaction.
// Provided by main using river.Client.InsertTx, which is what makes the
// debit, the task row, and the queue message one atomic unit.
type InsertScoreTaskTxFunc func(ctx context.Context, tx pgx.Tx, args queue.ScoreTaskArgs) error

// Service owns the task lifecycle: pending → processing → {completed|failed},
// with the billing invariants from the ledger enforced on submission.
type Service struct {
	repo            Repo
	ledger          CreditLedger
	catalog         ModelCatalog
	insertScoreTask InsertScoreTaskTxFunc
	refundOnFailure bool
}

func NewService(repo Repo, ledger CreditLedger, catalog ModelCatalog, insert InsertScoreTaskTxFunc, refundOnFailure bool) *Service {
	return &Service{
		repo:            repo,
		ledger:          ledger,
		catalog:         catalog,
		insertScoreTask: insert,
		refundOnFailure: refundOnFailure,
	}
}

// Submit charges the account for the named model and creates a pending task,
// all in one transaction together with the queue insert. If anything fails —
// insufficient funds, storage, enqueue — the whole unit rolls back: no
// charge without a queued task, no queued task without a charge.
func (s *Service) Submit(ctx context.Context, accountID int64, modelName string, input json.RawMessage) (*models.Task, *models.ScoringModel, error) {
	model, err := s.catalog.GetByName(ctx, modelName)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	price := model.PriceCents()
	if _, err := s.ledger.Debit(ctx, tx, accountID, price, "scoring task: "+model.Name, uuid.Nil); err != nil {
		return nil, nil, err
	}

	task := &models.Task{
		AccountID:           accountID,
		ModelID:             model.ID,
		InputData:           input,
		Status:              models.TaskStatusPending,
		CreditsChargedCents: price,
	}
	if err := s.repo.CreateTx(ctx, tx, task); err != nil {
		return nil, nil, fmt.Errorf("create task: %w", err)
	}

	if err := s.insertScoreTask(ctx, tx, queue.ScoreTaskArgs{
		TaskID:    task.ID,
		AccountID: accountID,
		ModelID:   model.ID,
		InputData: input,
	}); err != nil {
		return nil, nil, fmt.Errorf("enqueue task: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit submit tx: %w", err)
	}
	return task, model, nil
}

// GetTask reads a task without account scoping. For internal consumers.
func (s *Service) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	return s.repo.GetByID(ctx, id)
}

// Get reads a task scoped to its owning account.
func (s *Service) Get(ctx context.Context, id, accountID int64) (*models.Task, error) {
	return s.repo.GetForAccount(ctx, id, accountID)
}

// ClaimForProcessing attempts the pending → processing transition. The bool
// reports whether this caller won the claim; false with a non-nil task means
// a duplicate delivery (the task was already claimed or is terminal), false
// with a nil task means the reference points at nothing.
func (s *Service) ClaimForProcessing(ctx context.Context, id int64) (*models.Task, bool, error) {
	t, err := s.repo.MarkProcessing(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if t != nil {
		return t, true, nil
	}
	cur, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cur, false, nil
}

// Complete transitions processing → completed, records the prediction, and
// appends the history record — one transaction, so an observer never sees a
// completed task without its history row.
func (s *Service) Complete(ctx context.Context, id int64, prediction float64) (*models.Task, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.MarkCompletedTx(ctx, tx, id, prediction)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, s.transitionError(ctx, id)
	}

	f, err := scoring.ParseFeatures(t.InputData)
	if err != nil {
		// The worker validated before scoring, so this means the stored
		// payload was mutated or the schema drifted.
		return nil, fmt.Errorf("parse completed task payload: %w", err)
	}
	record := &models.PredictionRecord{
		AccountID:           t.AccountID,
		ModelID:             t.ModelID,
		TotalDebt:           f.TotalDebt,
		PenaltyAmount:       f.PenaltyAmount,
		DaysOverdue:         f.DaysOverdue,
		PaymentsRatio:       f.PaymentsRatio,
		IsPhysicalPerson:    f.IsPhysicalPerson,
		Prediction:          prediction,
		CreditsChargedCents: t.CreditsChargedCents,
	}
	if err := s.repo.InsertPredictionTx(ctx, tx, record); err != nil {
		return nil, fmt.Errorf("insert prediction record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete tx: %w", err)
	}
	return t, nil
}

// Fail transitions a pending or processing task to failed. Idempotent once
// failed: repeat calls return the task without touching history or balances.
// When refund-on-failure is enabled the charge is returned in the same
// transaction as the transition, so the guarded UPDATE also guards against
// double refunds.
func (s *Service) Fail(ctx context.Context, id int64, reason string) (*models.Task, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin fail tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.MarkFailedTx(ctx, tx, id, reason)
	if err != nil {
		return nil, err
	}
	if t == nil {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.Status == models.TaskStatusFailed {
			return cur, nil
		}
		return nil, fmt.Errorf("%w: %s task cannot fail", ErrInvalidTransition, cur.Status)
	}

	if s.refundOnFailure && t.CreditsChargedCents > 0 {
		reason := fmt.Sprintf("refund: task %d failed", t.ID)
		if _, err := s.ledger.Credit(ctx, tx, t.AccountID, t.CreditsChargedCents, reason, uuid.Nil); err != nil {
			return nil, fmt.Errorf("refund failed task: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit fail tx: %w", err)
	}
	return t, nil
}

// History returns the account's completed predictions, newest first.
func (s *Service) History(ctx context.Context, accountID int64) ([]*models.PredictionRecord, error) {
	return s.repo.ListPredictions(ctx, accountID)
}

func (s *Service) transitionError(ctx context.Context, id int64) error {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: task is %s", ErrInvalidTransition, cur.Status)
}
