// ABOUTME: This file replays dead-lettered items against the live downstream
// ABOUTME: Success removes the letter, failure re-records it with a bumped count
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"news-courier/breaker"
	"news-courier/models"
	"news-courier/queue"
	"news-courier/repository"
)

// Replayer retries dead letters. The payload is rebuilt from the ingest
// store, so a letter whose article was updated replays the current content.
type Replayer struct {
	letters     queue.DeadLetterStore
	articles    repository.ArticleStore
	transport   Transport
	breaker     *breaker.Breaker
	destination string
	logger      *slog.Logger
}

func NewReplayer(letters queue.DeadLetterStore, articles repository.ArticleStore,
	transport Transport, b *breaker.Breaker, destination string, logger *slog.Logger) *Replayer {
	return &Replayer{
		letters:     letters,
		articles:    articles,
		transport:   transport,
		breaker:     b,
		destination: destination,
		logger:      logger,
	}
}

// ReplayBatch attempts up to limit dead letters and returns how many were
// delivered. The batch stops as soon as the breaker rejects a call.
func (r *Replayer) ReplayBatch(ctx context.Context, limit int) (int, error) {
	letters, err := r.letters.List(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list dead letters: %w", err)
	}

	replayed := 0
	for _, letter := range letters {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		article, err := r.articles.GetByCanonicalID(ctx, letter.EntityRef)
		if err != nil {
			return replayed, err
		}
		if article == nil {
			// Nothing stored to deliver; the item needs a rescan first.
			r.logger.WarnContext(ctx, "dead letter has no stored article, skipping",
				"entity_ref", letter.EntityRef)
			continue
		}
		if article.Delivered() {
			if err := r.letters.Remove(ctx, letter.EntityType, letter.EntityRef); err != nil {
				return replayed, err
			}
			continue
		}

		if err := r.breaker.Allow(); err != nil {
			r.logger.WarnContext(ctx, "circuit open, stopping dead letter replay",
				"replayed", replayed)
			return replayed, nil
		}

		payload := payloadFromArticle(article)
		sendErr := r.transport.Send(ctx, r.destination, payload)
		if sendErr == nil {
			r.breaker.RecordSuccess()
			if err := r.letters.Remove(ctx, letter.EntityType, letter.EntityRef); err != nil {
				return replayed, err
			}
			if err := r.articles.MarkDelivered(ctx, article.CanonicalID, time.Now().UTC()); err != nil {
				return replayed, fmt.Errorf("failed to mark replayed article delivered: %w", err)
			}
			r.logger.InfoContext(ctx, "dead letter replayed successfully",
				"entity_ref", letter.EntityRef)
			replayed++
			continue
		}

		if IsFatal(sendErr) {
			r.breaker.RecordSuccess()
		} else {
			r.breaker.RecordFailure()
		}

		letter.ErrorPayload = sendErr.Error()
		if err := r.letters.Record(ctx, letter); err != nil {
			return replayed, err
		}
		r.logger.WarnContext(ctx, "dead letter replay failed",
			"entity_ref", letter.EntityRef,
			"error", sendErr)
	}

	return replayed, nil
}

func payloadFromArticle(article *models.Article) *models.DeliveryPayload {
	return &models.DeliveryPayload{
		CanonicalID: article.CanonicalID,
		SourceRef:   article.SourceRef,
		Title:       article.Title,
		PublishedAt: article.PublishedAt,
		Text:        article.Body,
	}
}
