package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexscore/backend/internal/catalog"
	"github.com/lexscore/backend/internal/config"
	"github.com/lexscore/backend/internal/db"
	"github.com/lexscore/backend/internal/ledger"
	"github.com/lexscore/backend/internal/queue"
	"github.com/lexscore/backend/internal/scoring"
	"github.com/lexscore/backend/internal/tasks"
)

const (
	connectAttempts = 30
	connectDelay    = 2 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := connectWithRetry(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Giving up on PostgreSQL connection", "error", err, "attempts", connectAttempts)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("Migrations failed", "error", err)
		os.Exit(1)
	}

	catalogRepo := catalog.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool))

	// The worker never publishes, so its task service gets a nil insert hook.
	taskSvc := tasks.NewService(tasks.NewRepository(pool), ledgerSvc, catalogRepo, nil, cfg.RefundOnFailure)

	worker := &queue.ScoreTaskWorker{
		Tasks:        taskSvc,
		Models:       catalogRepo,
		Scorers:      scoring.DefaultRegistry(),
		ScoreTimeout: cfg.ScoreTimeout,
		Logger:       logger,
	}

	client, err := queue.NewWorkerClient(pool, worker, cfg.QueueName, cfg.WorkerMaxJobs)
	if err != nil {
		slog.Error("Failed to create queue worker client", "error", err)
		os.Exit(1)
	}

	if err := client.Start(ctx); err != nil {
		slog.Error("Queue worker failed to start", "error", err)
		os.Exit(1)
	}
	slog.Info("Worker consuming scoring queue", "queue", cfg.QueueName, "max_jobs", cfg.WorkerMaxJobs)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	slog.Info("Shutting down worker")

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Stop(stopCtx); err != nil {
		slog.Error("Queue worker did not stop cleanly", "error", err)
		os.Exit(1)
	}
}

// connectWithRetry keeps trying while the database comes up. Worker pods
// routinely start before Postgres does.
func connectWithRetry(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pool, err := db.Connect(ctx, connString)
		if err == nil {
			return pool, nil
		}
		lastErr = err
		slog.Warn("PostgreSQL not ready, retrying", "attempt", attempt, "error", err)
		time.Sleep(connectDelay)
	}
	return nil, lastErr
}
