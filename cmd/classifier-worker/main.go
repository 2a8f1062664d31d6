package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"feed-engine/internal/bootstrap"
	"feed-engine/internal/infra/config"
	applog "feed-engine/internal/infra/log"
	"feed-engine/internal/infra/metrics"
	"feed-engine/internal/usecase/emotion"
)

// Отдельный обработчик очереди классификации. API в этом режиме запускается
// с PIPELINE_INPROCESS=false и только ставит задачи.
func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogLevel)

	if cfg.StorageBackend != config.BackendPostgres || cfg.Queue.Backend == config.BackendMemory {
		logger.Fatal().Msg("classifier-worker: нужны общее хранилище postgres и внешняя очередь (redis или rabbitmq)")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	deps, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("classifier-worker: не удалось подготовить зависимости")
	}
	defer deps.Close()

	// Задачи, взятые упавшим обработчиком, остаются в списке processing.
	if rq, ok := deps.RedisQueue(); ok {
		n, err := rq.Requeue(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("classifier-worker: не удалось вернуть задачи из processing")
		} else if n > 0 {
			logger.Info().Int("count", n).Msg("classifier-worker: задачи возвращены из processing")
		}
	}

	pipeline := emotion.NewPipeline(deps.Storage, deps.Posts, deps.Queue, bootstrap.NewClassifier(cfg),
		bootstrap.PipelineConfig(cfg), applog.Component(logger, "emotion"))
	if _, err := pipeline.ResumePending(ctx); err != nil {
		logger.Error().Err(err).Msg("classifier-worker: не удалось вернуть незавершённые теги в очередь")
	}

	logger.Info().Int("workers", cfg.Classifier.Workers).Str("queue", cfg.Queue.Backend).Msg("classifier-worker: старт")
	if err := pipeline.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("classifier-worker: конвейер остановлен с ошибкой")
	}
	logger.Info().Msg("classifier-worker: остановка")
}
