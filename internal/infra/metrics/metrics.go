package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	InteractionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "interactions_total",
		Help: "Количество применённых и отозванных реакций",
	}, []string{"kind", "outcome"})

	FollowMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "follow_mutations_total",
		Help: "Изменения графа подписок",
	}, []string{"op", "outcome"})

	PostsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_created_total",
		Help: "Количество созданных постов",
	}, []string{"with_image"})

	ClassifierAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classifier_attempts_total",
		Help: "Попытки классификации снимков",
	}, []string{"status"})

	EmotionTagsTerminalTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emotion_tags_terminal_total",
		Help: "Переходы тегов в терминальное состояние",
	}, []string{"state"})

	ClassifierLateResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classifier_late_results_total",
		Help: "Результаты классификатора, пришедшие после таймаута",
	}, []string{"accepted"})

	FeedBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_build_seconds",
		Help:    "Время построения ленты",
		Buckets: prometheus.DefBuckets,
	})

	InvariantViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invariant_violations_total",
		Help: "Обнаруженные нарушения инвариантов хранилища",
	}, []string{"kind"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		InteractionsTotal,
		FollowMutationsTotal,
		PostsCreatedTotal,
		ClassifierAttemptsTotal,
		EmotionTagsTerminalTotal,
		ClassifierLateResultsTotal,
		FeedBuildSeconds,
		InvariantViolationsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncInteraction учитывает результат применения или отзыва реакции.
func IncInteraction(kind, outcome string) {
	InteractionsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncFollow учитывает изменение подписки. changed=false означает идемпотентный повтор.
func IncFollow(op string, changed bool) {
	outcome := "noop"
	if changed {
		outcome = "changed"
	}
	FollowMutationsTotal.WithLabelValues(op, outcome).Inc()
}

// IncPostCreated учитывает созданный пост.
func IncPostCreated(withImage bool) {
	PostsCreatedTotal.WithLabelValues(strconv.FormatBool(withImage)).Inc()
}

// IncClassifierAttempt учитывает попытку классификации: success, error или timeout.
func IncClassifierAttempt(status string) {
	ClassifierAttemptsTotal.WithLabelValues(status).Inc()
}

// IncTagTerminal учитывает переход тега в ready или failed.
func IncTagTerminal(state string) {
	EmotionTagsTerminalTotal.WithLabelValues(state).Inc()
}

// IncLateResult учитывает поздний ответ классификатора.
func IncLateResult(accepted bool) {
	ClassifierLateResultsTotal.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

// ObserveFeedBuild записывает время построения ленты.
func ObserveFeedBuild(start time.Time) {
	FeedBuildSeconds.Observe(time.Since(start).Seconds())
}

// IncInvariantViolation учитывает нарушение инварианта, например попытку уйти в отрицательный счётчик.
func IncInvariantViolation(kind string) {
	InvariantViolationsTotal.WithLabelValues(kind).Inc()
}
