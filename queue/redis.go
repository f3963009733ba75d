// ABOUTME: This file implements the delivery queue and dead-letter store on Redis
// ABOUTME: A list keeps FIFO order, a hash keeps entries, pipelines keep moves atomic
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"news-courier/models"
)

const (
	redisQueueList  = "courier:queue:order"
	redisQueueItems = "courier:queue:items"
	redisDeadHash   = "courier:dlq"
)

// enqueueScript writes the item hash and the order list in one atomic step,
// so the two structures cannot diverge mid-enqueue. A duplicate whose ref is
// missing from the order list is re-appended, which repairs entries from an
// interrupted writer instead of leaving them invisible to Peek.
var enqueueScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 1 then
	redis.call("RPUSH", KEYS[2], ARGV[1])
	return 1
end
if redis.call("LPOS", KEYS[2], ARGV[1]) == false then
	redis.call("RPUSH", KEYS[2], ARGV[1])
end
return 0
`)

type redisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore creates a Redis-backed delivery queue.
func NewRedisStore(client *redis.Client, logger *slog.Logger) Store {
	return &redisStore{
		client: client,
		logger: logger,
	}
}

func (s *redisStore) Backend() string { return "redis" }

func (s *redisStore) Enqueue(ctx context.Context, entry *models.PendingDelivery) (bool, error) {
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now().UTC()
	}
	if entry.NextAttemptAt.IsZero() {
		entry.NextAttemptAt = entry.EnqueuedAt
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal delivery entry: %w", err)
	}

	added, err := enqueueScript.Run(ctx, s.client,
		[]string{redisQueueItems, redisQueueList}, entry.ItemRef, data).Int()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue delivery: %w", err)
	}
	return added == 1, nil
}

func (s *redisStore) Peek(ctx context.Context, limit int) ([]*models.PendingDelivery, error) {
	refs, err := s.client.LRange(ctx, redisQueueList, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue order: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	raw, err := s.client.HMGet(ctx, redisQueueItems, refs...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue entries: %w", err)
	}

	entries := make([]*models.PendingDelivery, 0, len(refs))
	for i, value := range raw {
		data, ok := value.(string)
		if !ok {
			// Order list and item hash can briefly disagree mid-removal.
			continue
		}
		var entry models.PendingDelivery
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry %s: %w", refs[i], err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (s *redisStore) MarkAttempt(ctx context.Context, itemRef string, attempts int, nextAttemptAt time.Time, lastError string) error {
	raw, err := s.client.HGet(ctx, redisQueueItems, itemRef).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read delivery entry: %w", err)
	}

	var entry models.PendingDelivery
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return fmt.Errorf("failed to unmarshal entry %s: %w", itemRef, err)
	}
	entry.Attempts = attempts
	entry.NextAttemptAt = nextAttemptAt.UTC()
	entry.LastError = lastError

	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry %s: %w", itemRef, err)
	}
	if err := s.client.HSet(ctx, redisQueueItems, itemRef, data).Err(); err != nil {
		return fmt.Errorf("failed to mark delivery attempt: %w", err)
	}
	return nil
}

func (s *redisStore) Remove(ctx context.Context, itemRef string) error {
	pipe := s.client.TxPipeline()
	removed := pipe.LRem(ctx, redisQueueList, 1, itemRef)
	pipe.HDel(ctx, redisQueueItems, itemRef)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove delivery: %w", err)
	}
	if removed.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *redisStore) MoveToDeadLetter(ctx context.Context, itemRef string, letter *models.DeadLetter) error {
	merged, err := mergeDeadLetter(ctx, s.client, letter)
	if err != nil {
		return err
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, redisQueueList, 1, itemRef)
	pipe.HDel(ctx, redisQueueItems, itemRef)
	pipe.HSet(ctx, redisDeadHash, deadLetterKey(merged.EntityType, merged.EntityRef), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to move delivery to dead letter store: %w", err)
	}

	s.logger.WarnContext(ctx, "delivery moved to dead letter store",
		"item_ref", itemRef,
		"error_code", letter.ErrorCode,
		"attempts", merged.Attempts)
	return nil
}

func (s *redisStore) Depth(ctx context.Context) (int, error) {
	depth, err := s.client.LLen(ctx, redisQueueList).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return int(depth), nil
}

func (s *redisStore) OldestAge(ctx context.Context) (time.Duration, error) {
	head, err := s.Peek(ctx, 1)
	if err != nil {
		return 0, err
	}
	if len(head) == 0 {
		return 0, nil
	}
	return time.Since(head[0].EnqueuedAt), nil
}

type redisDeadLetterStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisDeadLetterStore creates a Redis-backed dead-letter store.
func NewRedisDeadLetterStore(client *redis.Client, logger *slog.Logger) DeadLetterStore {
	return &redisDeadLetterStore{
		client: client,
		logger: logger,
	}
}

func (s *redisDeadLetterStore) Record(ctx context.Context, letter *models.DeadLetter) error {
	merged, err := mergeDeadLetter(ctx, s.client, letter)
	if err != nil {
		return err
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	if err := s.client.HSet(ctx, redisDeadHash,
		deadLetterKey(merged.EntityType, merged.EntityRef), data).Err(); err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

func (s *redisDeadLetterStore) List(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	raw, err := s.client.HGetAll(ctx, redisDeadHash).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	letters := make([]*models.DeadLetter, 0, len(raw))
	for key, data := range raw {
		var letter models.DeadLetter
		if err := json.Unmarshal([]byte(data), &letter); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter %s: %w", key, err)
		}
		letters = append(letters, &letter)
		if len(letters) == limit {
			break
		}
	}
	return letters, nil
}

func (s *redisDeadLetterStore) Remove(ctx context.Context, entityType, entityRef string) error {
	removed, err := s.client.HDel(ctx, redisDeadHash, deadLetterKey(entityType, entityRef)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove dead letter: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *redisDeadLetterStore) Size(ctx context.Context) (int, error) {
	size, err := s.client.HLen(ctx, redisDeadHash).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read dead letter size: %w", err)
	}
	return int(size), nil
}

func deadLetterKey(entityType, entityRef string) string {
	return entityType + ":" + entityRef
}

// mergeDeadLetter applies the upsert semantics: a repeat of the same entity
// bumps the attempt count and last-seen time instead of inserting twice.
func mergeDeadLetter(ctx context.Context, client *redis.Client, letter *models.DeadLetter) (*models.DeadLetter, error) {
	now := time.Now().UTC()
	merged := *letter
	if merged.ID == "" {
		merged.ID = uuid.NewString()
	}
	if merged.FirstSeenAt.IsZero() {
		merged.FirstSeenAt = now
	}
	merged.LastSeenAt = now

	raw, err := client.HGet(ctx, redisDeadHash, deadLetterKey(letter.EntityType, letter.EntityRef)).Result()
	if err == redis.Nil {
		return &merged, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read existing dead letter: %w", err)
	}

	var existing models.DeadLetter
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal existing dead letter: %w", err)
	}
	merged.ID = existing.ID
	merged.FirstSeenAt = existing.FirstSeenAt
	merged.Attempts = existing.Attempts + 1
	return &merged, nil
}
