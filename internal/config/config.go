package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config groups runtime settings for the api, worker and device CLI.
type Config struct {
	AWSRegion        string
	EndpointOverride string
	AWSMaxAttempts   int

	LinksTable       string
	JobsTable        string
	IdempotencyTable string
	TablePrefix      string

	LinkEventsQueueURL string
	MetricsNamespace   string

	AccessCodeKey string
	PublicBaseURL string
	PhoneRegion   string

	RedisAddr    string
	DeviceDBPath string
	ProbeURL     string

	DebounceWindow time.Duration
	CacheTTL       time.Duration

	LogLevel   string
	LogFormat  string
	RunLocal   bool
	WorkerMode string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AWSRegion:          getenv("AWS_REGION", "us-east-1"),
		EndpointOverride:   os.Getenv("AWS_ENDPOINT_OVERRIDE"),
		AWSMaxAttempts:     3,
		LinksTable:         getenv("LINKS_TABLE", "magic_links"),
		JobsTable:          getenv("JOBS_TABLE", "jobs"),
		IdempotencyTable:   getenv("IDEMPOTENCY_TABLE", "link_idempotency"),
		TablePrefix:        os.Getenv("TABLE_PREFIX"),
		LinkEventsQueueURL: os.Getenv("LINK_EVENTS_QUEUE_URL"),
		MetricsNamespace:   getenv("METRICS_NAMESPACE", "FieldLink"),
		AccessCodeKey:      os.Getenv("ACCESS_CODE_KEY"),
		PublicBaseURL:      strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		PhoneRegion:        getenv("PHONE_REGION", "US"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		DeviceDBPath:       getenv("DEVICE_DB_PATH", "fieldlink-device.db"),
		ProbeURL:           os.Getenv("PROBE_URL"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "json"),
		RunLocal:           os.Getenv("RUN_LOCAL") == "true",
		WorkerMode:         getenv("WORKER_MODE", "events"),
		DebounceWindow:     2 * time.Second,
		CacheTTL:           30 * time.Second,
	}

	if raw := os.Getenv("DEBOUNCE_WINDOW"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse DEBOUNCE_WINDOW: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("DEBOUNCE_WINDOW must be positive, got %s", raw)
		}
		cfg.DebounceWindow = d
	}

	if raw := os.Getenv("AWS_MAX_ATTEMPTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("AWS_MAX_ATTEMPTS must be a positive integer, got %q", raw)
		}
		cfg.AWSMaxAttempts = n
	}

	if raw := os.Getenv("CACHE_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse CACHE_TTL: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("CACHE_TTL must be positive, got %s", raw)
		}
		cfg.CacheTTL = d
	}

	if cfg.AccessCodeKey == "" {
		return nil, fmt.Errorf("ACCESS_CODE_KEY is required")
	}
	return cfg, nil
}

// Table returns the physical table name for an entity kind. Kinds with a
// dedicated setting use it; the prefix applies to all of them.
func (c *Config) Table(entityKind string) string {
	name := entityKind
	switch entityKind {
	case "jobs":
		name = c.JobsTable
	case "links":
		name = c.LinksTable
	case "idempotency":
		name = c.IdempotencyTable
	}
	if name == "" {
		name = entityKind
	}
	return c.TablePrefix + name
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
