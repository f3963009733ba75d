// ABOUTME: This file builds the configuration from defaults and environment overrides
// ABOUTME: Each block has a loader so a bad variable names its section in the error
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadConfig builds the configuration from defaults and overrides provided
// via environment variables.
func LoadConfig() (*Config, error) {
	config := defaultConfig()

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func loadFromEnv(config *Config) error {
	if err := loadServerConfig(&config.Server); err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	if err := loadDatabaseConfig(&config.Database); err != nil {
		return fmt.Errorf("failed to load database config: %w", err)
	}

	if err := loadRedisConfig(&config.Redis); err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}

	if err := loadQueueConfig(&config.Queue); err != nil {
		return fmt.Errorf("failed to load queue config: %w", err)
	}

	if err := loadScanConfig(&config.Scan); err != nil {
		return fmt.Errorf("failed to load scan config: %w", err)
	}

	if err := loadDeliveryConfig(&config.Delivery); err != nil {
		return fmt.Errorf("failed to load delivery config: %w", err)
	}

	if err := loadRetryConfig(&config.Retry); err != nil {
		return fmt.Errorf("failed to load retry config: %w", err)
	}

	if err := loadBreakerConfig(&config.Breaker); err != nil {
		return fmt.Errorf("failed to load breaker config: %w", err)
	}

	if err := loadRateLimitConfig(&config.RateLimit); err != nil {
		return fmt.Errorf("failed to load rate limit config: %w", err)
	}

	if err := loadDLQConfig(&config.DLQ); err != nil {
		return fmt.Errorf("failed to load DLQ config: %w", err)
	}

	if err := loadMetricsConfig(&config.Metrics); err != nil {
		return fmt.Errorf("failed to load metrics config: %w", err)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	return nil
}

func loadServerConfig(cfg *ServerConfig) error {
	var err error

	if cfg.Port, err = parseIntEnv("SERVER_PORT", cfg.Port); err != nil {
		return err
	}

	if cfg.ShutdownTimeout, err = parseDurationEnv("SERVER_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return err
	}

	if cfg.ReadTimeout, err = parseDurationEnv("SERVER_READ_TIMEOUT", cfg.ReadTimeout); err != nil {
		return err
	}

	if cfg.WriteTimeout, err = parseDurationEnv("SERVER_WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return err
	}

	return nil
}

func loadDatabaseConfig(cfg *DatabaseConfig) error {
	var err error

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}

	if cfg.Port, err = parseIntEnv("DB_PORT", cfg.Port); err != nil {
		return err
	}

	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}

	if mode := os.Getenv("DB_SSL_MODE"); mode != "" {
		cfg.SSLMode = mode
	}

	if cfg.MaxConns, err = parseIntEnv("DB_MAX_CONNS", cfg.MaxConns); err != nil {
		return err
	}

	return nil
}

func loadRedisConfig(cfg *RedisConfig) error {
	var err error

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}

	if cfg.DB, err = parseIntEnv("REDIS_DB", cfg.DB); err != nil {
		return err
	}

	return nil
}

func loadQueueConfig(cfg *QueueConfig) error {
	var err error

	if backend := os.Getenv("QUEUE_BACKEND"); backend != "" {
		cfg.Backend = backend
	}

	if cfg.FlushInterval, err = parseDurationEnv("QUEUE_FLUSH_INTERVAL", cfg.FlushInterval); err != nil {
		return err
	}

	if cfg.FlushBatchSize, err = parseIntEnv("QUEUE_FLUSH_BATCH_SIZE", cfg.FlushBatchSize); err != nil {
		return err
	}

	if cfg.MaxAttempts, err = parseIntEnv("QUEUE_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return err
	}

	return nil
}

func loadScanConfig(cfg *ScanConfig) error {
	var err error

	if base := os.Getenv("SCAN_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}

	if cfg.Interval, err = parseDurationEnv("SCAN_INTERVAL", cfg.Interval); err != nil {
		return err
	}

	if cfg.Workers, err = parseIntEnv("SCAN_WORKERS", cfg.Workers); err != nil {
		return err
	}

	if cfg.EmptyPagesDone, err = parseIntEnv("SCAN_EMPTY_PAGES_DONE", cfg.EmptyPagesDone); err != nil {
		return err
	}

	if cfg.CheckpointEvery, err = parseIntEnv("SCAN_CHECKPOINT_EVERY", cfg.CheckpointEvery); err != nil {
		return err
	}

	if cfg.RecentWindow, err = parseDurationEnv("SCAN_RECENT_WINDOW", cfg.RecentWindow); err != nil {
		return err
	}

	return nil
}

func loadDeliveryConfig(cfg *DeliveryConfig) error {
	var err error

	if token := os.Getenv("DELIVERY_BOT_TOKEN"); token != "" {
		cfg.BotToken = token
	}

	if chatID := os.Getenv("DELIVERY_CHAT_ID"); chatID != "" {
		cfg.ChatID = chatID
	}

	if endpoint := os.Getenv("DELIVERY_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}

	if cfg.Timeout, err = parseDurationEnv("DELIVERY_TIMEOUT", cfg.Timeout); err != nil {
		return err
	}

	if cfg.StrictOrder, err = parseBoolEnv("DELIVERY_STRICT_ORDER", cfg.StrictOrder); err != nil {
		return err
	}

	return nil
}

func loadRetryConfig(cfg *RetryConfig) error {
	var err error

	if cfg.MaxAttempts, err = parseIntEnv("RETRY_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return err
	}

	if cfg.BaseDelay, err = parseDurationEnv("RETRY_BASE_DELAY", cfg.BaseDelay); err != nil {
		return err
	}

	if cfg.MaxDelay, err = parseDurationEnv("RETRY_MAX_DELAY", cfg.MaxDelay); err != nil {
		return err
	}

	if cfg.BackoffFactor, err = parseFloatEnv("RETRY_BACKOFF_FACTOR", cfg.BackoffFactor); err != nil {
		return err
	}

	if cfg.JitterFactor, err = parseFloatEnv("RETRY_JITTER_FACTOR", cfg.JitterFactor); err != nil {
		return err
	}

	return nil
}

func loadBreakerConfig(cfg *BreakerConfig) error {
	var err error

	if cfg.FailureThreshold, err = parseIntEnv("BREAKER_FAILURE_THRESHOLD", cfg.FailureThreshold); err != nil {
		return err
	}

	if cfg.FailureWindow, err = parseDurationEnv("BREAKER_FAILURE_WINDOW", cfg.FailureWindow); err != nil {
		return err
	}

	if cfg.Cooldown, err = parseDurationEnv("BREAKER_COOLDOWN", cfg.Cooldown); err != nil {
		return err
	}

	return nil
}

func loadRateLimitConfig(cfg *RateLimitConfig) error {
	var err error

	if cfg.HostInterval, err = parseDurationEnv("RATE_LIMIT_HOST_INTERVAL", cfg.HostInterval); err != nil {
		return err
	}

	if cfg.HostJitter, err = parseDurationEnv("RATE_LIMIT_HOST_JITTER", cfg.HostJitter); err != nil {
		return err
	}

	return nil
}

func loadDLQConfig(cfg *DLQConfig) error {
	var err error

	if cfg.RetryInterval, err = parseDurationEnv("DLQ_RETRY_INTERVAL", cfg.RetryInterval); err != nil {
		return err
	}

	if cfg.RetryBatchSize, err = parseIntEnv("DLQ_RETRY_BATCH_SIZE", cfg.RetryBatchSize); err != nil {
		return err
	}

	return nil
}

func loadMetricsConfig(cfg *MetricsConfig) error {
	var err error

	if cfg.Enabled, err = parseBoolEnv("METRICS_ENABLED", cfg.Enabled); err != nil {
		return err
	}

	if path := os.Getenv("METRICS_PATH"); path != "" {
		cfg.Path = path
	}

	if cfg.RefreshInterval, err = parseDurationEnv("METRICS_REFRESH_INTERVAL", cfg.RefreshInterval); err != nil {
		return err
	}

	return nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		return d, nil
	}
	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		return i, nil
	}
	return defaultValue, nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %s", key, value)
		}
		return b, nil
	}
	return defaultValue, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		return f, nil
	}
	return defaultValue, nil
}
