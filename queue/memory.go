// ABOUTME: This file implements the delivery queue and dead-letter store in process memory
// ABOUTME: Used for single-node runs and as the fixture backend in tests
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"news-courier/models"
)

type memoryStore struct {
	mu      sync.Mutex
	order   []string
	items   map[string]*models.PendingDelivery
	letters *memoryDeadLetterStore
}

// NewMemoryStore creates an in-process delivery queue. The returned store
// shares its dead-letter side with the given store so moves stay consistent.
func NewMemoryStore(letters DeadLetterStore) Store {
	mem, _ := letters.(*memoryDeadLetterStore)
	return &memoryStore{
		items:   make(map[string]*models.PendingDelivery),
		letters: mem,
	}
}

func (s *memoryStore) Backend() string { return "memory" }

func (s *memoryStore) Enqueue(_ context.Context, entry *models.PendingDelivery) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[entry.ItemRef]; exists {
		return false, nil
	}

	stored := *entry
	stored.ID = uuid.NewString()
	if stored.EnqueuedAt.IsZero() {
		stored.EnqueuedAt = time.Now().UTC()
	}
	if stored.NextAttemptAt.IsZero() {
		stored.NextAttemptAt = stored.EnqueuedAt
	}

	s.items[entry.ItemRef] = &stored
	s.order = append(s.order, entry.ItemRef)
	return true, nil
}

func (s *memoryStore) Peek(_ context.Context, limit int) ([]*models.PendingDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]*models.PendingDelivery, 0, limit)
	for _, ref := range s.order {
		if len(entries) == limit {
			break
		}
		entry := *s.items[ref]
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (s *memoryStore) MarkAttempt(_ context.Context, itemRef string, attempts int, nextAttemptAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.items[itemRef]
	if !exists {
		return ErrNotFound
	}
	entry.Attempts = attempts
	entry.NextAttemptAt = nextAttemptAt.UTC()
	entry.LastError = lastError
	return nil
}

func (s *memoryStore) Remove(_ context.Context, itemRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(itemRef)
}

func (s *memoryStore) removeLocked(itemRef string) error {
	if _, exists := s.items[itemRef]; !exists {
		return ErrNotFound
	}
	delete(s.items, itemRef)
	for i, ref := range s.order {
		if ref == itemRef {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memoryStore) MoveToDeadLetter(ctx context.Context, itemRef string, letter *models.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.removeLocked(itemRef); err != nil {
		return err
	}
	if s.letters != nil {
		return s.letters.Record(ctx, letter)
	}
	return nil
}

func (s *memoryStore) Depth(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order), nil
}

func (s *memoryStore) OldestAge(_ context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return 0, nil
	}
	return time.Since(s.items[s.order[0]].EnqueuedAt), nil
}

type memoryDeadLetterStore struct {
	mu      sync.Mutex
	letters map[string]*models.DeadLetter
}

// NewMemoryDeadLetterStore creates an in-process dead-letter store.
func NewMemoryDeadLetterStore() DeadLetterStore {
	return &memoryDeadLetterStore{
		letters: make(map[string]*models.DeadLetter),
	}
}

func (s *memoryDeadLetterStore) Record(_ context.Context, letter *models.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := deadLetterKey(letter.EntityType, letter.EntityRef)
	if existing, ok := s.letters[key]; ok {
		existing.ErrorCode = letter.ErrorCode
		existing.ErrorPayload = letter.ErrorPayload
		existing.Attempts++
		existing.LastSeenAt = now
		return nil
	}

	stored := *letter
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.FirstSeenAt.IsZero() {
		stored.FirstSeenAt = now
	}
	stored.LastSeenAt = now
	s.letters[key] = &stored
	return nil
}

func (s *memoryDeadLetterStore) List(_ context.Context, limit int) ([]*models.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	letters := make([]*models.DeadLetter, 0, len(s.letters))
	for _, letter := range s.letters {
		copied := *letter
		letters = append(letters, &copied)
		if len(letters) == limit {
			break
		}
	}
	return letters, nil
}

func (s *memoryDeadLetterStore) Remove(_ context.Context, entityType, entityRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deadLetterKey(entityType, entityRef)
	if _, exists := s.letters[key]; !exists {
		return ErrNotFound
	}
	delete(s.letters, key)
	return nil
}

func (s *memoryDeadLetterStore) Size(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.letters), nil
}
