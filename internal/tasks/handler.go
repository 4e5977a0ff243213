package tasks

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lexscore/backend/internal/catalog"
	"github.com/lexscore/backend/internal/ledger"
	"github.com/lexscore/backend/internal/middleware"
	"github.com/lexscore/backend/internal/models"
)

// Handler serves the prediction endpoints.
type Handler struct {
	Tasks  *Service
	Logger *slog.Logger
}

func NewHandler(tasks *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Tasks: tasks, Logger: logger}
}

type createPredictionRequest struct {
	Model     string          `json:"model"`
	InputData json.RawMessage `json:"input_data"`
}

type taskResponse struct {
	TaskID         int64           `json:"task_id"`
	Model          string          `json:"model,omitempty"`
	Status         string          `json:"status"`
	InputData      json.RawMessage `json:"input_data,omitempty"`
	Prediction     *float64        `json:"prediction,omitempty"`
	Error          *string         `json:"error,omitempty"`
	CreditsCharged float64         `json:"credits_charged"`
	CreatedAt      string          `json:"created_at"`
	CompletedAt    *string         `json:"completed_at,omitempty"`
}

type predictionHistoryResponse struct {
	ID               int64   `json:"id"`
	ModelID          int64   `json:"model_id"`
	TotalDebt        float64 `json:"total_debt"`
	PenaltyAmount    float64 `json:"penalty_amount"`
	DaysOverdue      int     `json:"days_overdue"`
	PaymentsRatio    float64 `json:"payments_ratio"`
	IsPhysicalPerson bool    `json:"is_physical_person"`
	Prediction       float64 `json:"prediction"`
	CreditsCharged   float64 `json:"credits_charged"`
	CreatedAt        string  `json:"created_at"`
}

// CreatePrediction handles POST /v1/predictions. The account is charged up
// front and the work is queued; the response is 202 with the task reference.
func (h *Handler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createPredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		http.Error(w, `{"error":"model is required"}`, http.StatusBadRequest)
		return
	}
	if len(req.InputData) == 0 {
		http.Error(w, `{"error":"input_data is required"}`, http.StatusBadRequest)
		return
	}

	task, model, err := h.Tasks.Submit(r.Context(), acc.ID, req.Model, req.InputData)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrModelNotFound):
			http.Error(w, `{"error":"unknown model"}`, http.StatusNotFound)
		case errors.Is(err, ledger.ErrInsufficientFunds):
			http.Error(w, `{"error":"insufficient balance"}`, http.StatusPaymentRequired)
		default:
			h.Logger.Error("submit prediction", "account_id", acc.ID, "model", req.Model, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	h.Logger.Info("prediction task queued",
		"task_id", task.ID, "account_id", acc.ID, "model", model.Name)
	writeJSON(w, http.StatusAccepted, taskToResponse(task, model.Name))
}

// GetPrediction handles GET /v1/predictions/{id}. Tasks are scoped to the
// account that submitted them; other accounts see 404, not 403.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}
	task, err := h.Tasks.Get(r.Context(), id, acc.ID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("get prediction", "task_id", id, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task, ""))
}

// ListPredictions handles GET /v1/predictions: the account's completed
// prediction history, newest first.
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	records, err := h.Tasks.History(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list predictions", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	out := make([]predictionHistoryResponse, 0, len(records))
	for _, p := range records {
		out = append(out, predictionHistoryResponse{
			ID:               p.ID,
			ModelID:          p.ModelID,
			TotalDebt:        p.TotalDebt,
			PenaltyAmount:    p.PenaltyAmount,
			DaysOverdue:      p.DaysOverdue,
			PaymentsRatio:    p.PaymentsRatio,
			IsPhysicalPerson: p.IsPhysicalPerson,
			Prediction:       p.Prediction,
			CreditsCharged:   centsToCredits(p.CreditsChargedCents),
			CreatedAt:        formatTime(p.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func taskToResponse(t *models.Task, modelName string) taskResponse {
	resp := taskResponse{
		TaskID:         t.ID,
		Model:          modelName,
		Status:         t.Status,
		InputData:      t.InputData,
		Prediction:     t.Prediction,
		Error:          t.ErrorMessage,
		CreditsCharged: centsToCredits(t.CreditsChargedCents),
		CreatedAt:      formatTime(t.CreatedAt),
	}
	if t.CompletedAt != nil {
		s := formatTime(*t.CompletedAt)
		resp.CompletedAt = &s
	}
	return resp
}

func centsToCredits(cents int64) float64 {
	return float64(cents) / models.CentsPerCredit
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
