package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string

	HTTPAddr    string
	DatabaseURL string

	// RabbitMQ
	RabbitURL        string
	RabbitQueue      string
	RabbitRetryQueue string
	RabbitDLQQueue   string

	// Redis idempotency cache (optional extension beyond the last_event_id CAS)
	RedisURL       string
	IdempotencyTTL time.Duration

	// Backend facades
	CMSURL  string
	ROSURL  string
	WMSHost string
	WMSPort int

	CMSTimeout time.Duration
	ROSTimeout time.Duration
	WMSTimeout time.Duration

	// Outbound status/notification facade (best-effort, failures are logged and swallowed)
	FacadeStatusURL string
	FacadeNotifyURL string

	// Retry policy
	MaxRetries   int
	BaseRetryTTL time.Duration
	MaxRetryTTL  time.Duration

	// Demo pacing: when true, the worker sleeps between pipeline stages to make
	// the pipeline observable end-to-end; disabled in tests and load scenarios.
	DemoDelays bool

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	LogLevel  string
	LogFormat string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Rate limiting on the operational surface (defends /metrics and /readyz
	// from scraping storms).
	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8082")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")

	cfg.RabbitURL = getEnv("RABBIT_URL", "")
	cfg.RabbitQueue = getEnv("RABBIT_QUEUE", "order.created")
	cfg.RabbitRetryQueue = getEnv("RABBIT_RETRY_QUEUE", "order.created.retry")
	cfg.RabbitDLQQueue = getEnv("RABBIT_DLQ_QUEUE", "order.created.dlq")

	cfg.RedisURL = getEnv("REDIS_URL", "")
	cfg.IdempotencyTTL = getDuration("IDEMPOTENCY_TTL", 24*time.Hour)

	cfg.CMSURL = getEnv("CMS_URL", "")
	cfg.ROSURL = getEnv("ROS_URL", "")
	cfg.WMSHost = getEnv("WMS_HOST", "")
	cfg.WMSPort = getIntEnv("WMS_PORT", 9100)

	cfg.CMSTimeout = getDuration("CMS_TIMEOUT", 5*time.Second)
	cfg.ROSTimeout = getDuration("ROS_TIMEOUT", 5*time.Second)
	cfg.WMSTimeout = getDuration("WMS_TIMEOUT", 5*time.Second)

	cfg.FacadeStatusURL = getEnv("FACADE_STATUS_URL", "")
	cfg.FacadeNotifyURL = getEnv("FACADE_NOTIFY_URL", "")

	cfg.MaxRetries = getIntEnv("MAX_RETRIES", 5)
	cfg.BaseRetryTTL = time.Duration(getIntEnv("BASE_RETRY_TTL_MS", 2000)) * time.Millisecond
	cfg.MaxRetryTTL = time.Duration(getIntEnv("MAX_RETRY_TTL_MS", 60000)) * time.Millisecond

	cfg.DemoDelays = getEnv("DEMO_DELAYS", "true") == "true"

	cfg.OutboxPollInterval = getDuration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond)
	cfg.OutboxBatchSize = getIntEnv("OUTBOX_BATCH_SIZE", 20)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	cfg.HTTPReadTimeout = getDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.HTTPWriteTimeout = getDuration("HTTP_WRITE_TIMEOUT", 20*time.Second)
	cfg.HTTPIdleTimeout = getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second)

	cfg.RLEnabled = getEnv("RL_ENABLED", "true") == "true"
	cfg.RLLimit = getIntEnv("RL_IP_LIMIT", 100)
	cfg.RLWindow = getDuration("RL_IP_WINDOW", 1*time.Minute)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing DATABASE_URL")
	}

	// Rabbit: dev allows running the HTTP-only surface (health checks, local
	// tooling) without a broker; every other environment needs it to consume.
	if cfg.AppEnv != "dev" && cfg.RabbitURL == "" {
		return nil, fmt.Errorf("missing RABBIT_URL (required when APP_ENV != dev)")
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("MAX_RETRIES must be >= 1, got %d", cfg.MaxRetries)
	}

	return cfg, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
