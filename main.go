package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"hypolab/adapters/api"
	"hypolab/adapters/postgres"
	"hypolab/app"
	"hypolab/internal"
	"hypolab/internal/config"
	apperrors "hypolab/internal/errors"
	"hypolab/internal/session"
)

// initDatabase opens the history database when one is configured. A nil DB
// means history lives in memory only.
func initDatabase(ctx context.Context, appConfig *config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	if !appConfig.Database.Enabled() {
		logger.Info("DATABASE_URL not set, transition history is kept in memory")
		return nil, nil
	}

	db, err := postgres.Open(ctx, appConfig.Database.Driver, appConfig.Database.URL, appConfig.Database.MaxOpenConns, logger)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to initialize database")
	}
	return db, nil
}

func main() {
	appConfig, err := config.Load()
	if err != nil {
		internal.NewDefaultLogger().Fatal("failed to load configuration", zap.Error(err))
	}

	logger, err := internal.NewLogger(internal.ParseLogLevel(appConfig.Logging.Level))
	if err != nil {
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	policy, err := config.LoadPolicy(appConfig.Scoring.PolicyFile)
	if err != nil {
		logger.Fatal("failed to load scoring policy", zap.String("path", appConfig.Scoring.PolicyFile), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := session.NewFileStore(appConfig.Records.Dir)
	if err != nil {
		logger.Fatal("failed to open record store", zap.String("dir", appConfig.Records.Dir), zap.Error(err))
	}

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithRecordRepository(records),
	}

	db, err := initDatabase(ctx, appConfig, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
		opts = append(opts, app.WithHistoryRepository(postgres.NewHistoryRepository(db)))
	}

	svc := app.NewEvaluationService(policy, opts...)
	server := api.NewServer(svc, logger, api.Options{EnableMetrics: appConfig.Server.EnableMetrics})

	httpServer := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting hypolab server",
			zap.String("port", appConfig.Server.Port),
			zap.Bool("metrics", appConfig.Server.EnableMetrics),
			zap.Bool("history_db", db != nil))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
