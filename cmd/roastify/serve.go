package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmedmhosni/roastify/internal/auth"
	"github.com/ahmedmhosni/roastify/internal/db"
	"github.com/ahmedmhosni/roastify/internal/logger"
	"github.com/ahmedmhosni/roastify/internal/middleware"
	"github.com/ahmedmhosni/roastify/internal/repository"
	"github.com/ahmedmhosni/roastify/internal/timetracking"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (login and time tracking)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, target)
		},
	}
	cmd.Flags().StringVar(&target, "target", "local", "database the API serves from (local or remote)")
	return cmd
}

func runServe(cmd *cobra.Command, target string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setup database connection
	conn, err := connectTarget(ctx, cfg, target)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Run migrations
	migrated, err := db.RunMigrations(ctx, conn.Pool)
	if err != nil {
		return err
	}
	logger.Default.Info("database schema at version %d", migrated)

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("auth.jwt_secret must be set to serve the API: %w", err)
	}

	// Create repositories
	sqlDB := sqlx.NewDb(stdlib.OpenDBFromPool(conn.Pool), "pgx")
	defer sqlDB.Close()
	userRepo := repository.NewUserRepository(sqlDB)
	entryRepo := repository.NewTimeEntryRepository(conn.Pool)

	authHandler := auth.NewHandler(auth.NewService(userRepo, issuer))
	timeHandler := middleware.RequireAuth(issuer)(timetracking.NewHTTPHandler(timetracking.NewService(entryRepo)))

	mux := http.NewServeMux()
	mux.Handle("/auth/login", authHandler)
	mux.Handle("/time-tracking", timeHandler)
	mux.Handle("/time-tracking/", timeHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := conn.Pool.Ping(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Default.Info("API listening on %s (database: %s)", cfg.Server.Addr, target)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Default.Info("shutting down server...")
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Default.Info("server exited")
	return nil
}
