package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cbtexam/internal/app"
	"cbtexam/internal/app/observability"
	"cbtexam/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()
	cfg := app.LoadConfig()
	logger := observability.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.OpenPostgresWithConfig(ctx, cfg.DBDSN, db.PostgresConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("database error")
	}
	defer dbConn.Close()

	if cfg.DBAutoMigrate {
		applied, err := db.Migrate(ctx, dbConn)
		if err != nil {
			logger.Fatal().Err(err).Msg("database migration failed")
		}
		logger.Info().Strs("applied", applied).Msg("database migrations done")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.NewRouter(cfg, dbConn, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("cbtexam web listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
