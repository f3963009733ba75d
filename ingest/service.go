// ABOUTME: This file runs the scan pipeline from source pages to the delivery path.
// ABOUTME: Stages walk pages newest-first until the cursor boundary is crossed.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"news-courier/canonical"
	"news-courier/config"
	"news-courier/delivery"
	"news-courier/metrics"
	"news-courier/models"
	"news-courier/orchestrator"
	"news-courier/queue"
	"news-courier/ratelimit"
	"news-courier/repository"
	"news-courier/retry"
	"news-courier/scanner"
)

// Stage names for the standing scans.
const (
	StageRecent = "recent"
)

// backfillStagePrefix marks the one-shot stages created per backfill range.
const backfillStagePrefix = "backfill_"

const reconcileBatchLimit = 500

// Dead-letter error codes recorded for items that never reach the store.
const (
	codeInvalidLocator = "invalid_locator"
	codeFetchFailed    = "fetch_failed"
)

// Service walks source pages, persists new items and hands them to the
// delivery path. All scan progress is checkpointed so a crash loses at most
// one page.
type Service struct {
	cfg         config.ScanConfig
	source      scanner.Source
	articles    repository.ArticleStore
	checkpoints *CheckpointManager
	flusher     *delivery.Flusher
	letters     queue.DeadLetterStore
	limiter     *ratelimit.HostLimiter
	retrier     *retry.Retrier
	collector   *metrics.Collector
	logger      *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

func NewService(cfg config.ScanConfig, source scanner.Source, articles repository.ArticleStore,
	checkpoints *CheckpointManager, flusher *delivery.Flusher, letters queue.DeadLetterStore,
	limiter *ratelimit.HostLimiter, retrier *retry.Retrier, collector *metrics.Collector,
	logger *slog.Logger) *Service {
	return &Service{
		cfg:         cfg,
		source:      source,
		articles:    articles,
		checkpoints: checkpoints,
		flusher:     flusher,
		letters:     letters,
		limiter:     limiter,
		retrier:     retrier,
		collector:   collector,
		logger:      logger,
		now:         time.Now,
	}
}

// candidate is one headline that survived canonicalization and filtering.
type candidate struct {
	canonicalID string
	headline    scanner.Headline
}

// ScanRecent runs the standing stage covering the recent window. A finished
// pass starts over from page one on the next call.
func (s *Service) ScanRecent(ctx context.Context) error {
	boundary := s.now().UTC().Add(-s.cfg.RecentWindow)
	return s.runStage(ctx, StageRecent, boundary, time.Time{})
}

// Backfill ingests the historical range [from, to]. Each range gets its own
// stage so an interrupted backfill resumes from its own cursor.
func (s *Service) Backfill(ctx context.Context, from, to time.Time) error {
	if !to.After(from) {
		return fmt.Errorf("backfill range is empty: from %s to %s", from, to)
	}
	stage := fmt.Sprintf("%s%s_%s", backfillStagePrefix,
		from.UTC().Format("20060102"), to.UTC().Format("20060102"))
	if err := s.runStage(ctx, stage, from, to); err != nil {
		return err
	}
	// Keep the freshest finished backfill as an archive and drop the rest.
	return s.checkpoints.PruneDone(ctx, backfillStagePrefix, stage)
}

// Reconcile re-queues stored items that never reached the destination.
// Returns how many were queued.
func (s *Service) Reconcile(ctx context.Context, since time.Time) (int, error) {
	articles, err := s.articles.Undelivered(ctx, since, reconcileBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list undelivered articles: %w", err)
	}

	queued := 0
	for _, article := range articles {
		payload := &models.DeliveryPayload{
			CanonicalID: article.CanonicalID,
			SourceRef:   article.SourceRef,
			Title:       article.Title,
			PublishedAt: article.PublishedAt,
			Text:        article.Body,
		}
		if err := s.flusher.Enqueue(ctx, payload); err != nil {
			return queued, fmt.Errorf("failed to queue article %s: %w", article.CanonicalID, err)
		}
		queued++
	}

	s.logger.InfoContext(ctx, "reconcile queued undelivered articles",
		"since", since, "queued", queued)
	return queued, nil
}

// runStage walks pages forward from the checkpoint cursor. boundary is the
// oldest publication time the stage cares about; until, when set, caps the
// newest (used by backfill so a historical pass skips fresh items).
func (s *Service) runStage(ctx context.Context, stage string, boundary, until time.Time) error {
	run, err := s.checkpoints.Begin(ctx, stage, boundary)
	if err != nil {
		return err
	}
	cp := run.Checkpoint()

	// A resumed run trusts the persisted boundary, not the caller's. The
	// recent window would otherwise drift forward across restarts mid-pass.
	boundary = cp.CursorDate

	for page := cp.CursorPage; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var headlines []scanner.Headline
		scanErr := s.retrier.Do(ctx, func() error {
			var err error
			headlines, err = s.source.ScanPage(ctx, page)
			return err
		})
		if scanErr != nil {
			return fmt.Errorf("failed to scan page %d of stage %s: %w", page, stage, scanErr)
		}

		if len(headlines) == 0 {
			done, err := run.EmptyPage(ctx, page+1)
			if err != nil {
				return err
			}
			if done {
				return run.Complete(ctx)
			}
			continue
		}

		crossed, err := s.processPage(ctx, run, headlines, boundary, until)
		if err != nil {
			return err
		}
		if err := run.PageDone(ctx, page+1); err != nil {
			return err
		}
		if crossed {
			return run.Complete(ctx)
		}
	}
}

// processPage ingests one page of headlines. It reports whether every item
// on the page predates the stage boundary, which ends the walk.
func (s *Service) processPage(ctx context.Context, run *StageRun, headlines []scanner.Headline,
	boundary, until time.Time) (bool, error) {
	crossed := true
	candidates := make([]candidate, 0, len(headlines))
	for _, h := range headlines {
		if h.PublishedAt.After(boundary) {
			crossed = false
		}
		if h.PublishedAt.Before(boundary) {
			continue
		}
		if !until.IsZero() && h.PublishedAt.After(until) {
			continue
		}

		id, err := canonical.Canonicalize(h.SourceRef)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping headline with bad locator",
				"source_ref", h.SourceRef, "error", err)
			s.recordScanFailure(ctx, h.SourceRef, codeInvalidLocator, err)
			continue
		}
		candidates = append(candidates, candidate{canonicalID: id, headline: h})
	}

	fresh, err := s.filterExisting(ctx, candidates)
	if err != nil {
		return false, err
	}

	results := orchestrator.Map(ctx, s.cfg.Workers, fresh, s.ingestOne)
	for i, r := range results {
		c := fresh[i]
		if r.Err != nil {
			s.logger.ErrorContext(ctx, "failed to ingest item",
				"canonical_id", c.canonicalID, "error", r.Err)
			s.recordScanFailure(ctx, c.canonicalID, codeFetchFailed, r.Err)
			continue
		}
		s.collector.ObserveIngest(r.Value)
		if err := run.ObserveItem(ctx, c.canonicalID); err != nil {
			return false, err
		}
	}

	return crossed, nil
}

// filterExisting drops candidates already present in the store. A rescan of
// the same page after a crash is a no-op for items that landed the first time.
func (s *Service) filterExisting(ctx context.Context, candidates []candidate) ([]candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.canonicalID)
	}
	known, err := s.articles.ExistsBatch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing articles: %w", err)
	}

	fresh := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if known[c.canonicalID] {
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

// ingestOne fetches the body, persists the article and hands it to delivery.
// The per-host limiter paces outbound fetches.
func (s *Service) ingestOne(ctx context.Context, c candidate) (models.UpsertOutcome, error) {
	if err := s.limiter.WaitURL(ctx, c.headline.SourceRef); err != nil {
		return "", err
	}

	body, err := s.source.FetchBody(ctx, c.headline.SourceRef)
	if err != nil {
		return "", fmt.Errorf("failed to fetch body: %w", err)
	}

	article := &models.Article{
		CanonicalID: c.canonicalID,
		SourceRef:   c.headline.SourceRef,
		Title:       c.headline.Title,
		PublishedAt: c.headline.PublishedAt.UTC(),
		Body:        body,
	}
	outcome, err := s.articles.Upsert(ctx, article)
	if err != nil {
		return "", fmt.Errorf("failed to upsert article: %w", err)
	}

	if outcome == models.OutcomeUnchanged {
		return outcome, nil
	}

	payload := &models.DeliveryPayload{
		CanonicalID: article.CanonicalID,
		SourceRef:   article.SourceRef,
		Title:       article.Title,
		PublishedAt: article.PublishedAt,
		Text:        article.Body,
	}
	if err := s.flusher.Deliver(ctx, payload); err != nil {
		return outcome, fmt.Errorf("failed to hand off delivery: %w", err)
	}
	return outcome, nil
}

// recordScanFailure dead-letters an item the scan could not ingest so nothing
// silently disappears. Failures here never abort the page.
func (s *Service) recordScanFailure(ctx context.Context, ref, code string, cause error) {
	now := s.now().UTC()
	letter := &models.DeadLetter{
		EntityType:   models.EntityArticle,
		EntityRef:    ref,
		ErrorCode:    code,
		ErrorPayload: cause.Error(),
		Attempts:     1,
		FirstSeenAt:  now,
		LastSeenAt:   now,
	}
	if err := s.letters.Record(ctx, letter); err != nil {
		s.logger.ErrorContext(ctx, "failed to record scan dead letter",
			"entity_ref", ref, "error", err)
	}
}
