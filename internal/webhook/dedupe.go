package webhook

import (
	"context"
	"sync"
	"time"
)

// DedupeStore tracks which webhook event ids have already been processed so
// redeliveries cause no duplicate downstream effects.
//
// TryClaim is the primary operation: it atomically checks and marks an id in
// one step, so two concurrent deliveries of the same id can never both win
// the claim. HasProcessed and MarkProcessed remain for callers that only
// need one half of that contract.
type DedupeStore interface {
	// TryClaim marks the id processed and reports whether this call was the
	// first to do so.
	TryClaim(ctx context.Context, eventID string) (bool, error)
	// HasProcessed reports whether the id was previously marked. Pure
	// lookup, no mutation.
	HasProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed marks the id processed. Idempotent: marking an
	// already-marked id is a no-op.
	MarkProcessed(ctx context.Context, eventID string) error
	// Release removes a claim, compensating for an enqueue that failed after
	// the claim succeeded so a redelivery can be retried.
	Release(ctx context.Context, eventID string) error
	// Close stops background maintenance.
	Close() error
}

// MemoryDedupeStore is a mutex-guarded in-memory dedupe store for
// single-instance deployments. Entries expire after the configured TTL,
// bounding memory growth while keeping the at-most-once guarantee for as
// long as the provider plausibly redelivers.
type MemoryDedupeStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewMemoryDedupeStore creates a store whose entries expire after ttl. A
// non-positive ttl disables expiry (entries live until Close).
func NewMemoryDedupeStore(ttl time.Duration) *MemoryDedupeStore {
	s := &MemoryDedupeStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	if ttl > 0 {
		go s.janitor()
	}
	return s
}

// TryClaim implements DedupeStore.
func (s *MemoryDedupeStore) TryClaim(_ context.Context, eventID string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.entries[eventID]; ok && (s.ttl <= 0 || now.Before(expiry)) {
		return false, nil
	}
	s.entries[eventID] = now.Add(s.ttl)
	return true, nil
}

// HasProcessed implements DedupeStore.
func (s *MemoryDedupeStore) HasProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.entries[eventID]
	if !ok {
		return false, nil
	}
	if s.ttl > 0 && time.Now().After(expiry) {
		return false, nil
	}
	return true, nil
}

// MarkProcessed implements DedupeStore.
func (s *MemoryDedupeStore) MarkProcessed(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[eventID] = time.Now().Add(s.ttl)
	return nil
}

// Release implements DedupeStore.
func (s *MemoryDedupeStore) Release(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, eventID)
	return nil
}

// Len returns the number of live entries, for metrics.
func (s *MemoryDedupeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the expiry janitor.
func (s *MemoryDedupeStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryDedupeStore) janitor() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, expiry := range s.entries {
				if now.After(expiry) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
