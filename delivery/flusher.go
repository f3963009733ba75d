// ABOUTME: This file drains the delivery queue through the circuit breaker
// ABOUTME: Failures route between backoff retry and the dead-letter store
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"news-courier/breaker"
	"news-courier/metrics"
	"news-courier/models"
	"news-courier/queue"
	"news-courier/repository"
	"news-courier/retry"
)

// Config carries flusher tuning.
type Config struct {
	Destination string
	BatchSize   int
	MaxAttempts int
	// StrictOrder makes the queue head block everything behind it, for
	// destinations where message order matters.
	StrictOrder bool
}

// Flusher owns the delivery path: direct sends when the queue is clear and
// periodic drains of queued work.
type Flusher struct {
	cfg       Config
	queue     queue.Store
	articles  repository.ArticleStore
	transport Transport
	breaker   *breaker.Breaker
	policy    retry.Policy
	collector *metrics.Collector
	logger    *slog.Logger

	// flushMu serializes queue drains so ordering holds even when a flush
	// is triggered from more than one place.
	flushMu sync.Mutex

	// now is swappable in tests.
	now func() time.Time
}

func NewFlusher(cfg Config, q queue.Store, articles repository.ArticleStore,
	transport Transport, b *breaker.Breaker, policy retry.Policy, logger *slog.Logger) *Flusher {
	return &Flusher{
		cfg:       cfg,
		queue:     q,
		articles:  articles,
		transport: transport,
		breaker:   b,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// WithCollector attaches the metrics collector. A nil collector is fine.
func (f *Flusher) WithCollector(c *metrics.Collector) *Flusher {
	f.collector = c
	return f
}

// Deliver attempts to send a fresh item immediately. When the queue is not
// empty in strict-order mode, or the breaker is open, the item is queued
// instead so nothing overtakes older work.
func (f *Flusher) Deliver(ctx context.Context, payload *models.DeliveryPayload) error {
	if f.cfg.StrictOrder {
		depth, err := f.queue.Depth(ctx)
		if err != nil {
			return fmt.Errorf("failed to read queue depth: %w", err)
		}
		if depth > 0 {
			return f.enqueue(ctx, payload, 0, f.now())
		}
	}

	if err := f.breaker.Allow(); err != nil {
		f.logger.WarnContext(ctx, "circuit open, queueing delivery",
			"canonical_id", payload.CanonicalID)
		return f.enqueue(ctx, payload, 0, f.now())
	}

	err := f.transport.Send(ctx, f.cfg.Destination, payload)
	if err == nil {
		f.breaker.RecordSuccess()
		f.collector.ObserveDelivery(metrics.ResultSuccess)
		return f.markDelivered(ctx, payload.CanonicalID)
	}

	// A fatal response proves the downstream answered, so it counts as
	// breaker success even though the item is undeliverable.
	if IsFatal(err) {
		f.breaker.RecordSuccess()
		f.collector.ObserveDelivery(metrics.ResultFatal)
		return f.deadLetterDirect(ctx, payload, err, 1)
	}

	f.breaker.RecordFailure()
	f.collector.ObserveDelivery(metrics.ResultFailure)
	f.logger.WarnContext(ctx, "direct delivery failed, queueing for retry",
		"canonical_id", payload.CanonicalID,
		"error", err)
	return f.enqueue(ctx, payload, 1, f.now().Add(f.policy.Delay(1)))
}

// Enqueue queues a payload without attempting a direct send.
func (f *Flusher) Enqueue(ctx context.Context, payload *models.DeliveryPayload) error {
	return f.enqueue(ctx, payload, 0, f.now())
}

// Flush processes one batch from the queue head. It stops early when the
// breaker opens or, in strict-order mode, when the head cannot be delivered.
func (f *Flusher) Flush(ctx context.Context) error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	entries, err := f.queue.Peek(ctx, f.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to peek delivery queue: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if entry.NextAttemptAt.After(f.now()) {
			if f.cfg.StrictOrder {
				return nil
			}
			continue
		}

		if err := f.breaker.Allow(); err != nil {
			f.logger.WarnContext(ctx, "circuit open, pausing queue flush",
				"queue_depth", len(entries))
			return nil
		}

		sendErr := f.transport.Send(ctx, entry.Destination, &entry.Payload)
		if sendErr == nil {
			f.breaker.RecordSuccess()
			f.collector.ObserveDelivery(metrics.ResultSuccess)
			if err := f.queue.Remove(ctx, entry.ItemRef); err != nil && !errors.Is(err, queue.ErrNotFound) {
				return fmt.Errorf("failed to remove delivered entry: %w", err)
			}
			if err := f.markDelivered(ctx, entry.Payload.CanonicalID); err != nil {
				return err
			}
			continue
		}

		if IsFatal(sendErr) {
			f.breaker.RecordSuccess()
			f.collector.ObserveDelivery(metrics.ResultFatal)
			if err := f.moveToDeadLetter(ctx, entry, sendErr, CodeFatal, entry.Attempts+1); err != nil {
				return err
			}
			continue
		}

		f.breaker.RecordFailure()
		f.collector.ObserveDelivery(metrics.ResultFailure)
		attempts := entry.Attempts + 1
		if attempts > f.cfg.MaxAttempts {
			f.collector.ObserveDelivery(metrics.ResultExhausted)
			if err := f.moveToDeadLetter(ctx, entry, sendErr, CodeExhausted, attempts); err != nil {
				return err
			}
			if f.cfg.StrictOrder {
				return nil
			}
			continue
		}

		due := f.now().Add(f.policy.Delay(attempts))
		if err := f.queue.MarkAttempt(ctx, entry.ItemRef, attempts, due, sendErr.Error()); err != nil {
			return fmt.Errorf("failed to record delivery attempt: %w", err)
		}
		f.logger.WarnContext(ctx, "delivery attempt failed",
			"item_ref", entry.ItemRef,
			"attempt", attempts,
			"next_attempt_at", due,
			"error", sendErr)

		if f.cfg.StrictOrder {
			return nil
		}
	}

	return nil
}

// Status reports the queue snapshot for the ops surface.
func (f *Flusher) Status(ctx context.Context, letters queue.DeadLetterStore) (*models.QueueStatus, error) {
	depth, err := f.queue.Depth(ctx)
	if err != nil {
		return nil, err
	}
	oldest, err := f.queue.OldestAge(ctx)
	if err != nil {
		return nil, err
	}
	size, err := letters.Size(ctx)
	if err != nil {
		return nil, err
	}
	return &models.QueueStatus{
		Backend:   f.queue.Backend(),
		Depth:     depth,
		OldestAge: oldest,
		DLQSize:   size,
	}, nil
}

func (f *Flusher) enqueue(ctx context.Context, payload *models.DeliveryPayload, attempts int, due time.Time) error {
	added, err := f.queue.Enqueue(ctx, &models.PendingDelivery{
		ItemRef:       payload.CanonicalID,
		Destination:   f.cfg.Destination,
		Payload:       *payload,
		Attempts:      attempts,
		NextAttemptAt: due.UTC(),
		EnqueuedAt:    f.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue delivery: %w", err)
	}
	if !added {
		f.logger.DebugContext(ctx, "delivery already queued",
			"canonical_id", payload.CanonicalID)
	}
	return nil
}

func (f *Flusher) markDelivered(ctx context.Context, canonicalID string) error {
	if err := f.articles.MarkDelivered(ctx, canonicalID, f.now().UTC()); err != nil {
		return fmt.Errorf("failed to mark article delivered: %w", err)
	}
	f.logger.InfoContext(ctx, "delivery succeeded", "canonical_id", canonicalID)
	return nil
}

func (f *Flusher) moveToDeadLetter(ctx context.Context, entry *models.PendingDelivery, cause error, code string, attempts int) error {
	err := f.queue.MoveToDeadLetter(ctx, entry.ItemRef, &models.DeadLetter{
		EntityType:   models.EntityDelivery,
		EntityRef:    entry.ItemRef,
		ErrorCode:    code,
		ErrorPayload: cause.Error(),
		Attempts:     attempts,
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter delivery: %w", err)
	}
	return nil
}

func (f *Flusher) deadLetterDirect(ctx context.Context, payload *models.DeliveryPayload, cause error, attempts int) error {
	// The item never entered the queue, so enqueue then move keeps the
	// dead-letter path identical for both cases.
	if err := f.enqueue(ctx, payload, 0, f.now()); err != nil {
		return err
	}
	entry := &models.PendingDelivery{ItemRef: payload.CanonicalID}
	return f.moveToDeadLetter(ctx, entry, cause, CodeFatal, attempts)
}
