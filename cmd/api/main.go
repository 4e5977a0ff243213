package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/lexscore/backend/internal/catalog"
	"github.com/lexscore/backend/internal/config"
	"github.com/lexscore/backend/internal/db"
	"github.com/lexscore/backend/internal/ledger"
	"github.com/lexscore/backend/internal/queue"
	"github.com/lexscore/backend/internal/tasks"
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
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("Migrations failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("Schema and queue migrations applied")

	// Catalog: seeded so the default models are always available.
	catalogRepo := catalog.NewRepository(pool)
	if err := catalogRepo.Seed(ctx); err != nil {
		slog.Error("Failed to seed scoring model catalog", "error", err)
		os.Exit(1)
	}

	// Ledger & accounts
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool))
	accountRepo := ledger.NewAccountRepo(pool)

	// Queue publisher: insert-only client, jobs go out in the same
	// transaction as the debit and the task row.
	insertClient, err := queue.NewInsertClient(pool)
	if err != nil {
		slog.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}

	taskSvc := tasks.NewService(
		tasks.NewRepository(pool),
		ledgerSvc,
		catalogRepo,
		queue.InsertFunc(insertClient, cfg.QueueName),
		cfg.RefundOnFailure,
	)

	ledgerHandler := ledger.NewHandler(pool, ledgerSvc, accountRepo, logger)
	catalogHandler := catalog.NewHandler(catalogRepo, logger)
	taskHandler := tasks.NewHandler(taskSvc, logger)

	mux := newRouter(pool, accountRepo, ledgerHandler, catalogHandler, taskHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Account-ID", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(mux)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	slog.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server did not stop cleanly", "error", err)
		os.Exit(1)
	}
}
