package queue

import (
	"encoding/json"
)

// ScoringQueue is the default durable queue name shared by producer and
// consumer. Either side declares it; River creates it lazily.
const ScoringQueue = "ml_tasks"

// ScoreTaskArgs is the queue wire format: a reference to a persisted task
// plus enough context for a consumer to process without extra lookups.
// Messages survive broker restarts; delivery is at-least-once.
type ScoreTaskArgs struct {
	TaskID    int64           `json:"task_id"`
	AccountID int64           `json:"user_id"`
	ModelID   int64           `json:"model_id"`
	InputData json.RawMessage `json:"input_data"`
}

func (ScoreTaskArgs) Kind() string { return "score_task" }
