package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"feed-engine/internal/adapters/httpapi"
	"feed-engine/internal/bootstrap"
	"feed-engine/internal/infra/config"
	infrahttp "feed-engine/internal/infra/http"
	applog "feed-engine/internal/infra/log"
	"feed-engine/internal/infra/metrics"
	"feed-engine/internal/usecase/emotion"
	feedusecase "feed-engine/internal/usecase/feed"
	graphusecase "feed-engine/internal/usecase/graph"
	interactionsusecase "feed-engine/internal/usecase/interactions"
	notifyusecase "feed-engine/internal/usecase/notify"
	postsusecase "feed-engine/internal/usecase/posts"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogLevel)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	deps, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось подготовить зависимости")
	}
	defer deps.Close()

	limits := bootstrap.PageLimits(cfg)
	pipeline := emotion.NewPipeline(deps.Storage, deps.Posts, deps.Queue, bootstrap.NewClassifier(cfg),
		bootstrap.PipelineConfig(cfg), applog.Component(logger, "emotion"))
	notifier := notifyusecase.NewService(deps.Storage, limits, applog.Component(logger, "notify"))
	postsSvc := postsusecase.NewService(deps.Posts, pipeline, notifier, cfg.Limits.PostMaxLength, limits, applog.Component(logger, "posts"))

	handler := httpapi.NewHandler(httpapi.Services{
		Posts:         postsSvc,
		Graph:         graphusecase.NewService(deps.Storage, postsSvc, notifier, limits, applog.Component(logger, "graph")),
		Interactions:  interactionsusecase.NewService(deps.Storage, deps.Posts, notifier, limits, applog.Component(logger, "interactions")),
		Feed:          feedusecase.NewService(deps.Posts, deps.Storage, deps.Storage, deps.Storage, limits, applog.Component(logger, "feed")),
		Notifications: notifier,
	}, httpapi.WithLogger(applog.Component(logger, "httpapi")))

	pipelineDone := make(chan struct{})
	if cfg.PipelineInProcess {
		if n, err := pipeline.ResumePending(ctx); err != nil {
			logger.Error().Err(err).Msg("api: не удалось вернуть незавершённые теги в очередь")
		} else if n > 0 {
			logger.Info().Int("count", n).Msg("api: незавершённые теги возвращены в очередь")
		}
		go func() {
			defer close(pipelineDone)
			if err := pipeline.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("api: конвейер классификации остановлен")
			}
		}()
	} else {
		close(pipelineDone)
	}

	server := infrahttp.NewServer(applog.Component(logger, "http"))
	handler.Mount(server.Router)
	go func() {
		logger.Info().Str("storage", cfg.StorageBackend).Str("queue", cfg.Queue.Backend).Msg("api: старт")
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка остановки сервера")
	}
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("api: конвейер не успел завершиться")
	}
}
