package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexscore/backend/internal/models"
	"github.com/lexscore/backend/internal/scoring"
)

// ErrModelNotFound is returned when no catalog entry matches.
var ErrModelNotFound = errors.New("scoring model not found")

// Repository stores the scoring model catalog. Read-mostly: seeded at
// startup, served to request traffic unchanged.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByName(ctx context.Context, name string) (*models.ScoringModel, error) {
	var m models.ScoringModel
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, price_credits FROM scoring_models WHERE name = $1
	`, name).Scan(&m.ID, &m.Name, &m.Description, &m.PriceCredits)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*models.ScoringModel, error) {
	var m models.ScoringModel
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, price_credits FROM scoring_models WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Description, &m.PriceCredits)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) List(ctx context.Context) ([]*models.ScoringModel, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, price_credits FROM scoring_models ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ScoringModel
	for rows.Next() {
		var m models.ScoringModel
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.PriceCredits); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// Seed inserts the default scoring models if they are not present yet.
// Safe to call from every process at startup.
func (r *Repository) Seed(ctx context.Context) error {
	defaults := []models.ScoringModel{
		{
			Name:         scoring.ModelCourtOrderSuitability,
			Description:  "Suitability of a case for a court order",
			PriceCredits: 5,
		},
		{
			Name:         scoring.ModelDebtRiskScorer,
			Description:  "Risk of debt non-repayment",
			PriceCredits: 3,
		},
	}
	for _, m := range defaults {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO scoring_models (name, description, price_credits)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO NOTHING
		`, m.Name, m.Description, m.PriceCredits)
		if err != nil {
			return err
		}
	}
	return nil
}
