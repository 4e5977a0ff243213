package queue

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/riverqueue/river"

	"github.com/lexscore/backend/internal/models"
	"github.com/lexscore/backend/internal/scoring"
)

// ---------------------------------------------------------------------------
// In-memory collaborators
// ---------------------------------------------------------------------------

type stubTasks struct {
	mu     sync.Mutex
	tasks  map[int64]*models.Task
	scores map[int64]float64
	fails  map[int64]string
}

func newStubTasks(tasks ...*models.Task) *stubTasks {
	s := &stubTasks{
		tasks:  make(map[int64]*models.Task),
		scores: make(map[int64]float64),
		fails:  make(map[int64]string),
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *stubTasks) ClaimForProcessing(_ context.Context, id int64) (*models.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false, nil
	}
	if t.Status != models.TaskStatusPending {
		cp := *t
		return &cp, false, nil
	}
	t.Status = models.TaskStatusProcessing
	cp := *t
	return &cp, true, nil
}

func (s *stubTasks) Complete(_ context.Context, id int64, prediction float64) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[id]
	t.Status = models.TaskStatusCompleted
	t.Prediction = &prediction
	s.scores[id] = prediction
	cp := *t
	return &cp, nil
}

func (s *stubTasks) Fail(_ context.Context, id int64, reason string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[id]
	t.Status = models.TaskStatusFailed
	t.ErrorMessage = &reason
	s.fails[id] = reason
	cp := *t
	return &cp, nil
}

type stubModels struct {
	byID map[int64]*models.ScoringModel
}

func (s *stubModels) GetByID(_ context.Context, id int64) (*models.ScoringModel, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, errors.New("scoring model not found")
	}
	cp := *m
	return &cp, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const validInput = `{"total_debt": 50000, "penalty_amount": 1500, "days_overdue": 120,
	"payments_ratio": 0.3, "is_physical_person": true}`

func pendingTask(id int64, input string) *models.Task {
	return &models.Task{
		ID:        id,
		AccountID: 1,
		ModelID:   10,
		InputData: json.RawMessage(input),
		Status:    models.TaskStatusPending,
	}
}

func newWorker(tasks *stubTasks, registry *scoring.Registry) *ScoreTaskWorker {
	if registry == nil {
		registry = scoring.DefaultRegistry()
	}
	return &ScoreTaskWorker{
		Tasks: tasks,
		Models: &stubModels{byID: map[int64]*models.ScoringModel{
			10: {ID: 10, Name: scoring.ModelCourtOrderSuitability, PriceCredits: 5},
		}},
		Scorers:      registry,
		ScoreTimeout: time.Second,
	}
}

func jobFor(t *models.Task) *river.Job[ScoreTaskArgs] {
	return &river.Job[ScoreTaskArgs]{Args: ScoreTaskArgs{
		TaskID:    t.ID,
		AccountID: t.AccountID,
		ModelID:   t.ModelID,
		InputData: t.InputData,
	}}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWorkCompletesTask(t *testing.T) {
	task := pendingTask(1, validInput)
	tasks := newStubTasks(task)
	w := newWorker(tasks, nil)

	if err := w.Work(context.Background(), jobFor(task)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("status: got %s, want completed", task.Status)
	}
	// 0.5 + 0.2 (debt in range) + 0.1 (overdue > 90) + 0.05 (physical)
	// - 0.3*0.2 (payments ratio) = 0.79
	if got := tasks.scores[1]; math.Abs(got-0.79) > 1e-9 {
		t.Errorf("prediction: got %v, want 0.79", got)
	}
}

func TestWorkDuplicateDeliveryAcks(t *testing.T) {
	task := pendingTask(2, validInput)
	task.Status = models.TaskStatusProcessing
	tasks := newStubTasks(task)
	w := newWorker(tasks, nil)

	if err := w.Work(context.Background(), jobFor(task)); err != nil {
		t.Fatalf("Work on duplicate: %v", err)
	}
	if len(tasks.scores) != 0 || len(tasks.fails) != 0 {
		t.Error("duplicate delivery must not score or fail the task")
	}
}

func TestWorkUnknownTaskAcks(t *testing.T) {
	tasks := newStubTasks()
	w := newWorker(tasks, nil)

	job := &river.Job[ScoreTaskArgs]{Args: ScoreTaskArgs{TaskID: 404}}
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work on unknown task: %v", err)
	}
	if len(tasks.fails) != 0 {
		t.Error("unknown task must be dropped, not failed")
	}
}

func TestWorkInvalidInputFailsTask(t *testing.T) {
	// days_overdue missing entirely.
	task := pendingTask(3, `{"total_debt": 50000, "penalty_amount": 0,
		"payments_ratio": 0.3, "is_physical_person": true}`)
	tasks := newStubTasks(task)
	w := newWorker(tasks, nil)

	if err := w.Work(context.Background(), jobFor(task)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if task.Status != models.TaskStatusFailed {
		t.Errorf("status: got %s, want failed", task.Status)
	}
	reason := tasks.fails[3]
	if !strings.Contains(reason, "days_overdue") {
		t.Errorf("failure reason must name the missing field, got %q", reason)
	}
}

func TestWorkScorerErrorFailsTask(t *testing.T) {
	task := pendingTask(4, validInput)
	tasks := newStubTasks(task)

	registry := scoring.NewRegistry()
	registry.Register(scoring.ModelCourtOrderSuitability,
		scoring.ScorerFunc(func(context.Context, scoring.Features) (float64, error) {
			return 0, errors.New("model file corrupt")
		}))
	w := newWorker(tasks, registry)

	if err := w.Work(context.Background(), jobFor(task)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if task.Status != models.TaskStatusFailed {
		t.Errorf("status: got %s, want failed", task.Status)
	}
	if reason := tasks.fails[4]; !strings.Contains(reason, "model file corrupt") {
		t.Errorf("failure reason: %q", reason)
	}
}

func TestWorkUnregisteredModelFailsTask(t *testing.T) {
	task := pendingTask(5, validInput)
	tasks := newStubTasks(task)
	w := newWorker(tasks, scoring.NewRegistry())

	if err := w.Work(context.Background(), jobFor(task)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if task.Status != models.TaskStatusFailed {
		t.Errorf("status: got %s, want failed", task.Status)
	}
}

func TestWorkScoreTimeout(t *testing.T) {
	task := pendingTask(6, validInput)
	tasks := newStubTasks(task)

	registry := scoring.NewRegistry()
	registry.Register(scoring.ModelCourtOrderSuitability,
		scoring.ScorerFunc(func(ctx context.Context, _ scoring.Features) (float64, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}))
	w := newWorker(tasks, registry)
	w.ScoreTimeout = 10 * time.Millisecond

	if err := w.Work(context.Background(), jobFor(task)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if task.Status != models.TaskStatusFailed {
		t.Errorf("status: got %s, want failed", task.Status)
	}
	if reason := tasks.fails[6]; !strings.Contains(reason, "deadline") {
		t.Errorf("timeout failure reason: %q", reason)
	}
}
