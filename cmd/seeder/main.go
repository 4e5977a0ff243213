package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexscore/backend/internal/catalog"
	"github.com/lexscore/backend/internal/config"
	"github.com/lexscore/backend/internal/db"
	"github.com/lexscore/backend/internal/ledger"
	"github.com/lexscore/backend/internal/models"
)

type seedAccount struct {
	email        string
	role         string
	balanceCents int64
}

var seedAccounts = []seedAccount{
	{email: "demo@example.com", role: models.RoleUser, balanceCents: 100 * models.CentsPerCredit},
	{email: "admin@example.com", role: models.RoleAdmin, balanceCents: 1000 * models.CentsPerCredit},
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("Migrations failed", "error", err)
		os.Exit(1)
	}

	catalogRepo := catalog.NewRepository(pool)
	if err := catalogRepo.Seed(ctx); err != nil {
		slog.Error("Failed to seed scoring models", "error", err)
		os.Exit(1)
	}
	slog.Info("Scoring model catalog seeded")

	accountRepo := ledger.NewAccountRepo(pool)
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool))

	for _, s := range seedAccounts {
		if err := seedOne(ctx, pool, accountRepo, ledgerSvc, s); err != nil {
			slog.Error("Failed to seed account", "email", s.email, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Seed complete")
}

// seedOne creates the account and funds it through the ledger so the opening
// balance has a transaction trail. Rerunning the seeder is a no-op for
// accounts that already exist.
func seedOne(ctx context.Context, pool *pgxpool.Pool, accounts *ledger.AccountRepo, svc *ledger.Service, s seedAccount) error {
	if _, err := accounts.GetByEmail(ctx, s.email); err == nil {
		slog.Info("Account already seeded", "email", s.email)
		return nil
	} else if !errors.Is(err, ledger.ErrAccountNotFound) {
		return err
	}

	acc := &models.Account{Email: s.email, Role: s.role}
	if err := accounts.Create(ctx, acc); err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := svc.Credit(ctx, tx, acc.ID, s.balanceCents, "initial seed balance", uuid.New()); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	slog.Info("Account seeded", "email", s.email, "role", s.role,
		"balance_credits", s.balanceCents/models.CentsPerCredit)
	return nil
}
