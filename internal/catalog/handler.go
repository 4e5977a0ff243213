package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lexscore/backend/internal/models"
)

// ModelLister is the repository subset the handler needs.
type ModelLister interface {
	List(ctx context.Context) ([]*models.ScoringModel, error)
}

type Handler struct {
	Repo   ModelLister
	Logger *slog.Logger
}

func NewHandler(repo ModelLister, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Repo: repo, Logger: logger}
}

// ListModels handles GET /v1/models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	list, err := h.Repo.List(r.Context())
	if err != nil {
		h.Logger.Error("list models", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.ScoringModel{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}
