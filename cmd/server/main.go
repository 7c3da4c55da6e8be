package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/alphastack/equityresearch/internal/api"
	"github.com/alphastack/equityresearch/internal/api/handlers"
	"github.com/alphastack/equityresearch/internal/backtest"
	"github.com/alphastack/equityresearch/internal/cache"
	"github.com/alphastack/equityresearch/internal/config"
	"github.com/alphastack/equityresearch/internal/database"
	"github.com/alphastack/equityresearch/internal/logging"
	"github.com/alphastack/equityresearch/internal/providers"
	"github.com/alphastack/equityresearch/internal/services"
	"github.com/alphastack/equityresearch/internal/telemetry"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.Enabled, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		logger.WithError(err).Fatal("Failed to set up tracing")
	}

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	validationTTL := parseDurationOr(cfg.CacheTTL.Validation, 90*24*time.Hour)
	scoreTTL := parseDurationOr(cfg.CacheTTL.Fundamentals, 7*24*time.Hour)
	decisionTTL := parseDurationOr(cfg.CacheTTL.Decisions, 24*time.Hour)

	analysisCache := cache.NewAnalysisCache(redis.Client, logger, validationTTL, scoreTTL)
	decisionCache := cache.NewDecisionCache(redis.Client, logger, decisionTTL, cfg.Analysis.CacheSimilarity)

	candles := database.NewCandleRepository(db.Pool)
	research := database.NewResearchRepository(db.Pool)
	fundamentals := providers.NewFundamentalsRepository(db.Pool)
	sentiment := providers.NewSentimentRepository(db.Pool)
	management := providers.NewManagementRepository(db.Pool)

	detector := services.NewPatternDetector(cfg.Patterns, logger)
	validator := services.NewPatternValidator(cfg.Patterns, detector, analysisCache, logger)
	technical := services.NewTechnicalAnalyst(cfg.Patterns, detector, validator, logger)
	fundamental := services.NewFundamentalAnalyst(fundamentals, analysisCache, logger)
	sentimentAnalyst := services.NewSentimentAnalyst(sentiment, logger)
	managementAnalyst := services.NewManagementAnalyst(management, logger)

	// The LLM synthesis collaborator is optional; without one the
	// synthesizer stays on the rule-based path.
	synthesizer := services.NewSynthesizer(
		cfg.Analysis, cfg.Patterns,
		candles,
		technical, fundamental, sentimentAnalyst, managementAnalyst,
		nil, decisionCache,
		logger,
	)

	replayer := backtest.NewReplayer(cfg.Backtest, candles, synthesizer, logger)

	notifier, err := services.NewTelegramNotifier(cfg.Telegram, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Telegram notifier")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	analysisHandler := handlers.NewAnalysisHandler(synthesizer, research, notifierOrNil(notifier), logger)
	backtestHandler := handlers.NewBacktestHandler(replayer, research, logger)
	api.SetupRoutes(router, db, redis, analysisHandler, backtestHandler, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Error("tracer shutdown failed")
	}
}

// notifierOrNil avoids storing a typed nil in the DecisionNotifier
// interface when notifications are not configured.
func notifierOrNil(n *services.TelegramNotifier) services.DecisionNotifier {
	if n == nil {
		return nil
	}
	return n
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
