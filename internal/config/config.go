package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries process configuration read from the environment.
type Config struct {
	DatabaseURL string
	Port        string

	// QueueName is the durable scoring queue both producer and consumer use.
	QueueName string

	// WorkerMaxJobs caps in-flight jobs per worker process. The default of 1
	// gives fair dispatch: a slow worker holds one task while others drain
	// the queue.
	WorkerMaxJobs int

	// ScoreTimeout bounds a single scorer invocation. A scorer that exceeds
	// it produces a failed task instead of blocking the worker slot forever.
	ScoreTimeout time.Duration

	// RefundOnFailure controls whether a failed task refunds the credits
	// charged at submission. Off by default: a failed attempt is billable.
	RefundOnFailure bool
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg := &Config{
		DatabaseURL:   dbURL,
		Port:          envOr("PORT", "8080"),
		QueueName:     envOr("SCORING_QUEUE", "ml_tasks"),
		WorkerMaxJobs: 1,
		ScoreTimeout:  30 * time.Second,
	}

	if v := os.Getenv("WORKER_MAX_JOBS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid WORKER_MAX_JOBS %q", v)
		}
		cfg.WorkerMaxJobs = n
	}
	if v := os.Getenv("SCORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SCORE_TIMEOUT %q", v)
		}
		cfg.ScoreTimeout = d
	}
	if v := os.Getenv("REFUND_ON_FAILURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REFUND_ON_FAILURE %q", v)
		}
		cfg.RefundOnFailure = b
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
