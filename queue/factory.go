// ABOUTME: This file selects the queue backend pair from configuration
// ABOUTME: Queue and dead-letter store always come from the same backend
package queue

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"news-courier/config"
	"news-courier/repository"
)

// Build returns the delivery queue and dead-letter store for the configured
// backend. Both sides share one backend so dead-letter moves stay atomic.
func Build(cfg config.QueueConfig, db repository.DB, redisCfg config.RedisConfig, logger *slog.Logger) (Store, DeadLetterStore, error) {
	switch cfg.Backend {
	case "postgres":
		return NewPostgresStore(db, logger), NewPostgresDeadLetterStore(db, logger), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		return NewRedisStore(client, logger), NewRedisDeadLetterStore(client, logger), nil
	case "memory":
		letters := NewMemoryDeadLetterStore()
		return NewMemoryStore(letters), letters, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend: %s", cfg.Backend)
	}
}
