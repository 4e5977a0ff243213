package queue

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// NewInsertClient returns a River client that only publishes. The API process
// uses it: no queues configured, never started, InsertTx only.
func NewInsertClient(pool *pgxpool.Pool) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), &river.Config{})
}

// NewWorkerClient returns a started-by-caller River client consuming the
// scoring queue. maxWorkers 1 gives fair single-message dispatch; raise it
// for parallel consumers.
func NewWorkerClient(pool *pgxpool.Pool, worker *ScoreTaskWorker, queueName string, maxWorkers int) (*river.Client[pgx.Tx], error) {
	if queueName == "" {
		queueName = ScoringQueue
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, worker)
	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			queueName: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
}

// InsertFunc adapts a River client into the transactional enqueue hook the
// task service takes. Jobs land on the scoring queue in the same transaction
// as the debit and the task row.
func InsertFunc(client *river.Client[pgx.Tx], queueName string) func(ctx context.Context, tx pgx.Tx, args ScoreTaskArgs) error {
	if queueName == "" {
		queueName = ScoringQueue
	}
	return func(ctx context.Context, tx pgx.Tx, args ScoreTaskArgs) error {
		_, err := client.InsertTx(ctx, tx, args, &river.InsertOpts{Queue: queueName})
		return err
	}
}
