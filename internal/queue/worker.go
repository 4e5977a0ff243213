package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/riverqueue/river"

	"github.com/lexscore/backend/internal/models"
	"github.com/lexscore/backend/internal/scoring"
)

var (
	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lexscore_tasks_processed_total",
		Help: "Scoring tasks consumed from the queue, by outcome.",
	}, []string{"outcome"})
	scoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lexscore_score_duration_seconds",
		Help:    "Wall time spent inside the scorer.",
		Buckets: prometheus.DefBuckets,
	})
)

// TaskService is the task lifecycle subset the worker drives.
type TaskService interface {
	ClaimForProcessing(ctx context.Context, id int64) (*models.Task, bool, error)
	Complete(ctx context.Context, id int64, prediction float64) (*models.Task, error)
	Fail(ctx context.Context, id int64, reason string) (*models.Task, error)
}

// ModelResolver maps a task's model reference to its catalog entry.
type ModelResolver interface {
	GetByID(ctx context.Context, id int64) (*models.ScoringModel, error)
}

// ScoreTaskWorker consumes scoring jobs. Delivery is at-least-once, so the
// claim step decides whether this delivery does any work: losing the claim
// acknowledges without scoring, which is what makes redelivery harmless.
type ScoreTaskWorker struct {
	river.WorkerDefaults[ScoreTaskArgs]

	Tasks        TaskService
	Models       ModelResolver
	Scorers      *scoring.Registry
	ScoreTimeout time.Duration
	Logger       *slog.Logger
}

func (w *ScoreTaskWorker) Work(ctx context.Context, job *river.Job[ScoreTaskArgs]) error {
	log := w.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("task_id", job.Args.TaskID, "account_id", job.Args.AccountID)

	task, claimed, err := w.Tasks.ClaimForProcessing(ctx, job.Args.TaskID)
	if err != nil {
		return fmt.Errorf("claim task %d: %w", job.Args.TaskID, err)
	}
	if task == nil {
		// Message references a task that no longer exists. Nothing to do.
		log.Warn("dropping message for unknown task")
		tasksProcessed.WithLabelValues("orphaned").Inc()
		return nil
	}
	if !claimed {
		// Duplicate delivery: someone already claimed it, or it is terminal.
		log.Info("duplicate delivery acknowledged", "status", task.Status)
		tasksProcessed.WithLabelValues("duplicate").Inc()
		return nil
	}

	features, err := scoring.ParseFeatures(task.InputData)
	if err != nil {
		// Invalid input is a business failure, not a delivery failure. The
		// error message names the offending field.
		return w.failTask(ctx, log, task.ID, err.Error())
	}

	model, err := w.Models.GetByID(ctx, task.ModelID)
	if err != nil {
		return w.failTask(ctx, log, task.ID, fmt.Sprintf("unknown model id %d", task.ModelID))
	}
	scorer, err := w.Scorers.ForModel(model.Name)
	if err != nil {
		return w.failTask(ctx, log, task.ID, err.Error())
	}

	scoreCtx := ctx
	if w.ScoreTimeout > 0 {
		var cancel context.CancelFunc
		scoreCtx, cancel = context.WithTimeout(ctx, w.ScoreTimeout)
		defer cancel()
	}
	start := time.Now()
	prediction, err := scorer.Score(scoreCtx, features)
	scoreDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return w.failTask(ctx, log, task.ID, "scoring failed: "+err.Error())
	}

	if _, err := w.Tasks.Complete(ctx, task.ID, prediction); err != nil {
		return fmt.Errorf("complete task %d: %w", task.ID, err)
	}
	log.Info("task completed", "model", model.Name, "prediction", prediction)
	tasksProcessed.WithLabelValues("completed").Inc()
	return nil
}

// failTask records a business failure and acknowledges the message. The
// charge stays (or is refunded, per configuration) in the same transaction as
// the transition. Only a storage error propagates for redelivery.
func (w *ScoreTaskWorker) failTask(ctx context.Context, log *slog.Logger, id int64, reason string) error {
	if _, err := w.Tasks.Fail(ctx, id, reason); err != nil {
		return fmt.Errorf("mark task %d failed: %w", id, err)
	}
	log.Warn("task failed", "reason", reason)
	tasksProcessed.WithLabelValues("failed").Inc()
	return nil
}
