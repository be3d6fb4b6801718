// The suggestions worker consumes care-suggestion refresh jobs from the
// shared Redis queue, so suggestion generation can scale independently
// of the API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/docsentra/consult-platform/internal/app/bootstrap"
	"github.com/docsentra/consult-platform/internal/chatbot"
	appconfig "github.com/docsentra/consult-platform/internal/config"
	"github.com/docsentra/consult-platform/internal/observability/metrics"
	"github.com/docsentra/consult-platform/internal/suggestions"
	"github.com/docsentra/consult-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting suggestions worker",
		"env", cfg.Env,
		"workers", cfg.WorkerCount,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for the standalone suggestions worker")
		os.Exit(1)
	}

	visitMetrics := metrics.NewVisitMetrics(prometheus.DefaultRegisterer)
	chatbotClient := chatbot.NewClient(cfg.ChatbotBaseURL,
		chatbot.WithLogger(logger),
		chatbot.WithTimeout(cfg.ChatbotTimeout),
	)

	queue := suggestions.NewRedisQueue(redisClient, "")
	store := suggestions.NewResultStore(redisClient, cfg.SessionTTL)
	worker := suggestions.NewWorker(queue, chatbotClient, store, logger, visitMetrics, cfg.WorkerCount)

	worker.Start(ctx)
	<-ctx.Done()
	logger.Info("shutting down suggestions worker...")
	worker.Wait()
	logger.Info("suggestions worker stopped")
}
