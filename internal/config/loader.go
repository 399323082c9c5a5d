package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "stockforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "STOCKFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "STOCKFORGE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "STOCKFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "STOCKFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "STOCKFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "STOCKFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "STOCKFORGE_PG_HEALTH_CHECK")
	setDuration(&cfg.Postgres.LockTimeout, "STOCKFORGE_PG_LOCK_TIMEOUT")
	setString(&cfg.Storage.Driver, "STOCKFORGE_STORAGE_DRIVER")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "STOCKFORGE_NATS_STREAM")
	setString(&cfg.NATS.ProductSubject, "STOCKFORGE_NATS_PRODUCT_SUBJECT")
	setString(&cfg.NATS.Durable, "STOCKFORGE_NATS_DURABLE")
	setString(&cfg.Logging.Level, "STOCKFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "STOCKFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "STOCKFORGE_LOG_ASYNC")
	setBool(&cfg.Auth.Enabled, "STOCKFORGE_AUTH_ENABLED")
	setString(&cfg.Auth.JWTSecret, "STOCKFORGE_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "STOCKFORGE_JWT_ISSUER")
	setDuration(&cfg.Sweeper.Interval, "STOCKFORGE_SWEEPER_INTERVAL")
	setInt(&cfg.Sweeper.BatchSize, "STOCKFORGE_SWEEPER_BATCH_SIZE")
	setInt(&cfg.Sweeper.Concurrency, "STOCKFORGE_SWEEPER_CONCURRENCY")
	setInt(&cfg.Provisioning.Concurrency, "STOCKFORGE_PROVISIONING_CONCURRENCY")
	setInt(&cfg.Breaker.MaxFailures, "STOCKFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "STOCKFORGE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "STOCKFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "STOCKFORGE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "STOCKFORGE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "STOCKFORGE_RATE_MAX_IDLE_TIME")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "STOCKFORGE_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "STOCKFORGE_IDEMPOTENCY_TTL")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "STOCKFORGE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "STOCKFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "STOCKFORGE_CACHE_L2_TTL")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "STOCKFORGE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "STOCKFORGE_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "STOCKFORGE_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "STOCKFORGE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "STOCKFORGE_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Storage.Driver {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver %q is not one of postgres, memory", cfg.Storage.Driver)
	}
	if cfg.Postgres.LockTimeout <= 0 {
		return errors.New("postgres.lock_timeout must be > 0")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Sweeper.Interval <= 0 {
		return errors.New("sweeper.interval must be > 0")
	}
	if cfg.Sweeper.BatchSize < 1 {
		return errors.New("sweeper.batch_size must be >= 1")
	}
	if cfg.Sweeper.Concurrency < 1 {
		return errors.New("sweeper.concurrency must be >= 1")
	}
	if cfg.Provisioning.Concurrency < 1 {
		return errors.New("provisioning.concurrency must be >= 1")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes when auth is enabled")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
