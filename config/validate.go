// ABOUTME: This file checks configuration invariants before the service starts
// ABOUTME: Startup fails fast on missing credentials or out-of-range values
package config

import (
	"fmt"
)

var validQueueBackends = map[string]bool{
	"postgres": true,
	"redis":    true,
	"memory":   true,
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}

	if !validQueueBackends[config.Queue.Backend] {
		return fmt.Errorf("unknown queue backend: %s", config.Queue.Backend)
	}

	if config.Queue.Backend == "redis" && config.Redis.Addr == "" {
		return fmt.Errorf("redis address cannot be empty when queue backend is redis")
	}

	if config.Queue.FlushInterval <= 0 {
		return fmt.Errorf("queue flush interval must be positive: %v", config.Queue.FlushInterval)
	}

	if config.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue max attempts must be positive: %d", config.Queue.MaxAttempts)
	}

	if config.Scan.Workers <= 0 {
		return fmt.Errorf("scan workers must be positive: %d", config.Scan.Workers)
	}

	if config.Scan.EmptyPagesDone <= 0 {
		return fmt.Errorf("scan empty pages threshold must be positive: %d", config.Scan.EmptyPagesDone)
	}

	if config.Scan.CheckpointEvery <= 0 {
		return fmt.Errorf("scan checkpoint interval must be positive: %d", config.Scan.CheckpointEvery)
	}

	if config.Delivery.BotToken == "" {
		return fmt.Errorf("delivery bot token cannot be empty")
	}

	if config.Delivery.ChatID == "" {
		return fmt.Errorf("delivery chat id cannot be empty")
	}

	if config.Delivery.Timeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive: %v", config.Delivery.Timeout)
	}

	if config.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive: %d", config.Retry.MaxAttempts)
	}

	if config.Retry.BackoffFactor <= 1.0 {
		return fmt.Errorf("backoff factor must be greater than 1.0: %f", config.Retry.BackoffFactor)
	}

	if config.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure threshold must be positive: %d", config.Breaker.FailureThreshold)
	}

	if config.Breaker.FailureWindow <= 0 {
		return fmt.Errorf("breaker failure window must be positive: %v", config.Breaker.FailureWindow)
	}

	if config.Breaker.Cooldown <= 0 {
		return fmt.Errorf("breaker cooldown must be positive: %v", config.Breaker.Cooldown)
	}

	if config.RateLimit.HostInterval <= 0 {
		return fmt.Errorf("rate limit host interval must be positive: %v", config.RateLimit.HostInterval)
	}

	if config.DLQ.RetryBatchSize <= 0 {
		return fmt.Errorf("DLQ retry batch size must be positive: %d", config.DLQ.RetryBatchSize)
	}

	return nil
}
