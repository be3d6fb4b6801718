package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docsentra/consult-platform/internal/api/router"
	"github.com/docsentra/consult-platform/internal/app/bootstrap"
	"github.com/docsentra/consult-platform/internal/audit"
	"github.com/docsentra/consult-platform/internal/chatbot"
	appconfig "github.com/docsentra/consult-platform/internal/config"
	"github.com/docsentra/consult-platform/internal/mailfeed"
	"github.com/docsentra/consult-platform/internal/observability/metrics"
	"github.com/docsentra/consult-platform/internal/stats"
	"github.com/docsentra/consult-platform/internal/suggestions"
	"github.com/docsentra/consult-platform/internal/visit"
	"github.com/docsentra/consult-platform/pkg/logging"
)

func main() {
	// .env is a local development convenience; production uses real env vars.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting consult-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	visitMetrics := metrics.NewVisitMetrics(prometheus.DefaultRegisterer)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	sqlDB := bootstrap.BuildSQLDB(ctx, cfg, logger)
	if sqlDB != nil {
		defer sqlDB.Close()
	}
	pgxPool := bootstrap.BuildPgxPool(ctx, cfg, logger)
	if pgxPool != nil {
		defer pgxPool.Close()
	}

	chatbotClient := chatbot.NewClient(cfg.ChatbotBaseURL,
		chatbot.WithLogger(logger),
		chatbot.WithTimeout(cfg.ChatbotTimeout),
	)

	manager := visit.NewManager(chatbotClient, cfg.SessionTTL, logger, visitMetrics)
	manager.StartSweeper(ctx, cfg.SessionSweepEvery)

	transcriptStore := visit.NewTranscriptStore(redisClient, cfg.SessionTTL)
	resultStore := suggestions.NewResultStore(redisClient, cfg.SessionTTL)
	hub := visit.NewStreamHub(logger)
	auditService := audit.NewService(sqlDB)

	// With Redis the suggestion queue can be shared with a standalone
	// worker process; without it, jobs run on an in-process memory queue.
	var publisher *suggestions.Publisher
	if redisClient != nil {
		redisQueue := suggestions.NewRedisQueue(redisClient, "")
		publisher = suggestions.NewPublisher(redisQueue, logger)
		worker := suggestions.NewWorker(redisQueue, chatbotClient, resultStore, logger, visitMetrics, cfg.WorkerCount)
		worker.Start(ctx)
		defer worker.Wait()
	} else {
		memQueue := suggestions.NewMemoryQueue(cfg.SuggestionQueue)
		publisher = suggestions.NewPublisher(memQueue, logger)
		worker := suggestions.NewWorker(memQueue, chatbotClient, resultStore, logger, visitMetrics, cfg.WorkerCount)
		worker.Start(ctx)
		defer worker.Wait()
	}

	visitHandler := visit.NewHandler(manager, transcriptStore, hub, publisher, resultStore, auditService, logger)

	var statsHandler *stats.Handler
	if pgxPool != nil {
		statsHandler = stats.NewHandler(stats.NewRepository(pgxPool), prometheus.DefaultGatherer, logger)
	}

	if cfg.MailFeedURL != "" {
		monitor := mailfeed.NewMonitor(cfg.MailFeedURL, cfg.MailFeedRetryInterval, logger,
			mailfeed.WithMetrics(visitMetrics),
		)
		monitor.Subscribe(func(n mailfeed.Notification) {
			logger.Info("clinic mail received", "mail_id", n.ID, "subject", n.Subject)
		})
		go monitor.Run(ctx)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		VisitHandler:       visitHandler,
		StatsHandler:       statsHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthJWTSecret:      cfg.AuthJWTSecret,
		RateLimitPerSecond: float64(cfg.RateLimitPerSecond),
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
