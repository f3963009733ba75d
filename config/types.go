// ABOUTME: This file defines the configuration blocks for every service component
// ABOUTME: Defaults live here and environment variables override them at load time
package config

import (
	"fmt"
	"time"
)

// Config aggregates all service configuration blocks.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Queue     QueueConfig     `json:"queue"`
	Scan      ScanConfig      `json:"scan"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Retry     RetryConfig     `json:"retry"`
	Breaker   BreakerConfig   `json:"breaker"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	DLQ       DLQConfig       `json:"dlq"`
	Metrics   MetricsConfig   `json:"metrics"`
	LogLevel  string          `json:"log_level" env:"LOG_LEVEL" default:"info"`
}

type ServerConfig struct {
	Port            int           `json:"port" env:"SERVER_PORT" default:"9300"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	Host     string `json:"host" env:"DB_HOST" default:"localhost"`
	Port     int    `json:"port" env:"DB_PORT" default:"5432"`
	Name     string `json:"name" env:"DB_NAME" default:"news_courier"`
	User     string `json:"user" env:"DB_USER" default:"courier"`
	Password string `json:"password" env:"DB_PASSWORD"`
	SSLMode  string `json:"ssl_mode" env:"DB_SSL_MODE" default:"prefer"`
	MaxConns int    `json:"max_conns" env:"DB_MAX_CONNS" default:"10"`
}

// DSN renders the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns)
}

type RedisConfig struct {
	Addr     string `json:"addr" env:"REDIS_ADDR" default:"localhost:6379"`
	Password string `json:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" env:"REDIS_DB" default:"0"`
}

type QueueConfig struct {
	// Backend selects the pending-delivery store: "postgres", "redis", or
	// "memory".
	Backend        string        `json:"backend" env:"QUEUE_BACKEND" default:"postgres"`
	FlushInterval  time.Duration `json:"flush_interval" env:"QUEUE_FLUSH_INTERVAL" default:"5s"`
	FlushBatchSize int           `json:"flush_batch_size" env:"QUEUE_FLUSH_BATCH_SIZE" default:"20"`
	MaxAttempts    int           `json:"max_attempts" env:"QUEUE_MAX_ATTEMPTS" default:"5"`
}

type ScanConfig struct {
	BaseURL         string        `json:"base_url" env:"SCAN_BASE_URL" default:"http://localhost:8080"`
	Interval        time.Duration `json:"interval" env:"SCAN_INTERVAL" default:"5m"`
	Workers         int           `json:"workers" env:"SCAN_WORKERS" default:"4"`
	EmptyPagesDone  int           `json:"empty_pages_done" env:"SCAN_EMPTY_PAGES_DONE" default:"2"`
	CheckpointEvery int           `json:"checkpoint_every" env:"SCAN_CHECKPOINT_EVERY" default:"10"`
	RecentWindow    time.Duration `json:"recent_window" env:"SCAN_RECENT_WINDOW" default:"24h"`
}

type DeliveryConfig struct {
	BotToken    string        `json:"-" env:"DELIVERY_BOT_TOKEN"`
	ChatID      string        `json:"chat_id" env:"DELIVERY_CHAT_ID"`
	Endpoint    string        `json:"endpoint" env:"DELIVERY_ENDPOINT" default:"https://api.telegram.org"`
	Timeout     time.Duration `json:"timeout" env:"DELIVERY_TIMEOUT" default:"10s"`
	StrictOrder bool          `json:"strict_order" env:"DELIVERY_STRICT_ORDER" default:"true"`
}

type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts" env:"RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay     time.Duration `json:"base_delay" env:"RETRY_BASE_DELAY" default:"1s"`
	MaxDelay      time.Duration `json:"max_delay" env:"RETRY_MAX_DELAY" default:"30s"`
	BackoffFactor float64       `json:"backoff_factor" env:"RETRY_BACKOFF_FACTOR" default:"2.0"`
	JitterFactor  float64       `json:"jitter_factor" env:"RETRY_JITTER_FACTOR" default:"0.1"`
}

type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" env:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	FailureWindow    time.Duration `json:"failure_window" env:"BREAKER_FAILURE_WINDOW" default:"60s"`
	Cooldown         time.Duration `json:"cooldown" env:"BREAKER_COOLDOWN" default:"30s"`
}

type RateLimitConfig struct {
	HostInterval time.Duration `json:"host_interval" env:"RATE_LIMIT_HOST_INTERVAL" default:"2s"`
	HostJitter   time.Duration `json:"host_jitter" env:"RATE_LIMIT_HOST_JITTER" default:"500ms"`
}

type DLQConfig struct {
	RetryInterval  time.Duration `json:"retry_interval" env:"DLQ_RETRY_INTERVAL" default:"10m"`
	RetryBatchSize int           `json:"retry_batch_size" env:"DLQ_RETRY_BATCH_SIZE" default:"10"`
}

type MetricsConfig struct {
	Enabled         bool          `json:"enabled" env:"METRICS_ENABLED" default:"true"`
	Path            string        `json:"path" env:"METRICS_PATH" default:"/metrics"`
	RefreshInterval time.Duration `json:"refresh_interval" env:"METRICS_REFRESH_INTERVAL" default:"10s"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9300,
			ShutdownTimeout: 30 * time.Second,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "news_courier",
			User:     "courier",
			SSLMode:  "prefer",
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Queue: QueueConfig{
			Backend:        "postgres",
			FlushInterval:  5 * time.Second,
			FlushBatchSize: 20,
			MaxAttempts:    5,
		},
		Scan: ScanConfig{
			BaseURL:         "http://localhost:8080",
			Interval:        5 * time.Minute,
			Workers:         4,
			EmptyPagesDone:  2,
			CheckpointEvery: 10,
			RecentWindow:    24 * time.Hour,
		},
		Delivery: DeliveryConfig{
			Endpoint:    "https://api.telegram.org",
			Timeout:     10 * time.Second,
			StrictOrder: true,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
			JitterFactor:  0.1,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			FailureWindow:    60 * time.Second,
			Cooldown:         30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			HostInterval: 2 * time.Second,
			HostJitter:   500 * time.Millisecond,
		},
		DLQ: DLQConfig{
			RetryInterval:  10 * time.Minute,
			RetryBatchSize: 10,
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			Path:            "/metrics",
			RefreshInterval: 10 * time.Second,
		},
		LogLevel: "info",
	}
}
