package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Поддерживаемые бэкенды.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
	BackendLRU      = "lru"
	BackendNone     = "none"
	BackendStub     = "stub"
	BackendHTTP     = "http"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"memory"`
	PGDSN          string `envconfig:"PG_DSN"`
	PGMaxConns     int32  `envconfig:"PG_MAX_CONNS" default:"10"`
	PGEnsureSchema bool   `envconfig:"PG_ENSURE_SCHEMA" default:"true"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Cache struct {
		Backend string        `envconfig:"CACHE_BACKEND" default:"lru"`
		TTL     time.Duration `envconfig:"CACHE_TTL" default:"1m"`
		Size    int           `envconfig:"CACHE_SIZE" default:"4096"`
	} `envconfig:""`

	Queue struct {
		Backend   string `envconfig:"QUEUE_BACKEND" default:"memory"`
		RabbitURL string `envconfig:"RABBITMQ_URL"`
		Key       string `envconfig:"CLASSIFICATION_QUEUE_KEY" default:"emotion_jobs"`
		Capacity  int    `envconfig:"QUEUE_CAPACITY" default:"1024"`
	} `envconfig:""`

	Classifier struct {
		Backend        string        `envconfig:"CLASSIFIER_BACKEND" default:"stub"`
		URL            string        `envconfig:"CLASSIFIER_URL"`
		Timeout        time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"2s"`
		MaxAttempts    int           `envconfig:"CLASSIFIER_MAX_ATTEMPTS" default:"3"`
		BackoffInitial time.Duration `envconfig:"CLASSIFIER_BACKOFF_INITIAL" default:"200ms"`
		BackoffMax     time.Duration `envconfig:"CLASSIFIER_BACKOFF_MAX" default:"5s"`
		Workers        int           `envconfig:"CLASSIFIER_WORKERS" default:"4"`
		StaleAfter     time.Duration `envconfig:"CLASSIFIER_STALE_AFTER" default:"2m"`
		LateGrace      time.Duration `envconfig:"CLASSIFIER_LATE_GRACE" default:"10s"`
	} `envconfig:""`

	PipelineInProcess bool `envconfig:"PIPELINE_INPROCESS" default:"true"`

	Limits struct {
		PostMaxLength int `envconfig:"POST_MAX_LENGTH" default:"280"`
		PageDefault   int `envconfig:"PAGE_DEFAULT" default:"20"`
		PageMax       int `envconfig:"PAGE_MAX" default:"100"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает и проверяет конфиг без завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c AppConfig) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PGDSN == "" {
			errs = append(errs, errors.New("PG_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	switch c.Cache.Backend {
	case BackendLRU, BackendNone:
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend))
	}
	switch c.Queue.Backend {
	case BackendMemory:
		if !c.PipelineInProcess {
			errs = append(errs, errors.New("memory queue requires PIPELINE_INPROCESS=true"))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for redis queue"))
		}
	case BackendRabbitMQ:
		if c.Queue.RabbitURL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for rabbitmq queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown QUEUE_BACKEND %q", c.Queue.Backend))
	}
	switch c.Classifier.Backend {
	case BackendStub:
	case BackendHTTP:
		if c.Classifier.URL == "" {
			errs = append(errs, errors.New("CLASSIFIER_URL is required for http classifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CLASSIFIER_BACKEND %q", c.Classifier.Backend))
	}
	if c.Classifier.MaxAttempts < 1 {
		errs = append(errs, errors.New("CLASSIFIER_MAX_ATTEMPTS must be positive"))
	}
	if c.Classifier.Workers < 1 {
		errs = append(errs, errors.New("CLASSIFIER_WORKERS must be positive"))
	}
	if c.Limits.PostMaxLength < 1 {
		errs = append(errs, errors.New("POST_MAX_LENGTH must be positive"))
	}
	if c.Limits.PageDefault < 1 || c.Limits.PageMax < c.Limits.PageDefault {
		errs = append(errs, errors.New("PAGE_DEFAULT must be positive and not above PAGE_MAX"))
	}
	return errors.Join(errs...)
}
