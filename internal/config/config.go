package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the brokerage service.
type Config struct {
	Port     int
	LogLevel string

	StoreDriver string
	DatabaseURL string
	LockTimeout time.Duration

	EventsSink     string
	KafkaBrokers   []string
	KafkaTopic     string
	WebhookURL     string
	WebhookTimeout time.Duration
	OutboxDir      string
	OutboxInterval time.Duration

	JWTSecret string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Event sinks.
const (
	SinkNone    = "none"
	SinkLog     = "log"
	SinkKafka   = "kafka"
	SinkWebhook = "webhook"
)

// source resolves a key from the environment first and the optional YAML
// file second.
type source struct {
	file map[string]string
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. When BROKERAGE_CONFIG names a YAML file its keys
// (same names as the variables) fill in anything the environment leaves
// unset. It returns an error for any invalid value.
func Load() (*Config, error) {
	src, err := newSource(os.Getenv("BROKERAGE_CONFIG"))
	if err != nil {
		return nil, err
	}

	port, err := src.getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", port)
	}

	logLevel := src.getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	storeDriver := src.getStr("STORE_DRIVER", StoreMemory)
	databaseURL := src.getStr("DATABASE_URL", "")
	switch storeDriver {
	case StoreMemory:
	case StorePostgres:
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q, must be one of: memory, postgres", storeDriver)
	}

	lockTimeout, err := src.getDuration("LOCK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LOCK_TIMEOUT: %w", err)
	}
	if lockTimeout <= 0 {
		return nil, fmt.Errorf("invalid LOCK_TIMEOUT: must be positive")
	}

	eventsSink := src.getStr("EVENTS_SINK", SinkLog)
	kafkaBrokers := splitList(src.getStr("KAFKA_BROKERS", ""))
	webhookURL := src.getStr("WEBHOOK_URL", "")
	switch eventsSink {
	case SinkNone, SinkLog:
	case SinkKafka:
		if len(kafkaBrokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BROKERS is required when EVENTS_SINK=%s", SinkKafka)
		}
	case SinkWebhook:
		if webhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when EVENTS_SINK=%s", SinkWebhook)
		}
		if u, err := url.Parse(webhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid WEBHOOK_URL: %q", webhookURL)
		}
	default:
		return nil, fmt.Errorf("invalid EVENTS_SINK: %q, must be one of: none, log, kafka, webhook", eventsSink)
	}

	webhookTimeout, err := src.getDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	outboxInterval, err := src.getDuration("OUTBOX_INTERVAL", 1*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid OUTBOX_INTERVAL: %w", err)
	}
	if outboxInterval <= 0 {
		return nil, fmt.Errorf("invalid OUTBOX_INTERVAL: must be positive")
	}

	readTimeout, err := src.getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := src.getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := src.getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := src.getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		StoreDriver:     storeDriver,
		DatabaseURL:     databaseURL,
		LockTimeout:     lockTimeout,
		EventsSink:      eventsSink,
		KafkaBrokers:    kafkaBrokers,
		KafkaTopic:      src.getStr("KAFKA_TOPIC", "brokerage.orders"),
		WebhookURL:      webhookURL,
		WebhookTimeout:  webhookTimeout,
		OutboxDir:       src.getStr("OUTBOX_DIR", ""),
		OutboxInterval:  outboxInterval,
		JWTSecret:       src.getStr("JWT_SECRET", ""),
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func newSource(path string) (*source, error) {
	src := &source{file: map[string]string{}}
	if path == "" {
		return src, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &src.file); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return src, nil
}

func (s *source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s *source) getStr(key, defaultVal string) string {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func (s *source) getInt(key string, defaultVal int) (int, error) {
	v := s.lookup(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func (s *source) getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := s.lookup(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
