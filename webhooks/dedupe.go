package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-paykit/core"
)

const defaultDedupeTTL = 10 * time.Minute

// Deduper claims event IDs so redelivered events are handled once. A failed
// claim is released for the next delivery.
type Deduper interface {
	Claim(ctx context.Context, eventID string, ttl time.Duration) (claimID string, ok bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

type claimStatus string

const (
	claimStatusProcessing claimStatus = "processing"
	claimStatusRetryReady claimStatus = "retry_ready"
	claimStatusComplete   claimStatus = "complete"
)

type claimEntry struct {
	status    claimStatus
	claimID   string
	attempts  int
	ttl       time.Duration
	expiresAt time.Time
	retryAt   time.Time
}

// InMemoryDeduper keeps claims in process memory; entries expire after their TTL.
type InMemoryDeduper struct {
	mu      sync.Mutex
	entries map[string]claimEntry
	claims  map[string]string
	nextID  int
	Now     func() time.Time
}

func NewInMemoryDeduper() *InMemoryDeduper {
	return &InMemoryDeduper{
		entries: map[string]claimEntry{},
		claims:  map[string]string{},
	}
}

func (s *InMemoryDeduper) Claim(_ context.Context, eventID string, ttl time.Duration) (string, bool, error) {
	if s == nil {
		return "", false, core.NewConfiguration("webhooks: deduper is nil", core.WithMethod("dedupe.claim"))
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", false, core.NewValidation("webhooks: event id is required for dedupe", core.WithMethod("dedupe.claim"))
	}
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = map[string]claimEntry{}
		s.claims = map[string]string{}
	}
	s.evictExpiredLocked(now)

	entry, exists := s.entries[eventID]
	if exists {
		switch entry.status {
		case claimStatusComplete, claimStatusProcessing:
			if now.Before(entry.expiresAt) {
				return "", false, nil
			}
		case claimStatusRetryReady:
			if now.Before(entry.retryAt) {
				return "", false, nil
			}
		}
		delete(s.claims, entry.claimID)
	}

	claimID := s.nextClaimID()
	entry.status = claimStatusProcessing
	entry.claimID = claimID
	entry.attempts++
	entry.ttl = ttl
	entry.expiresAt = now.Add(ttl)
	entry.retryAt = time.Time{}
	s.entries[eventID] = entry
	s.claims[claimID] = eventID
	return claimID, true, nil
}

func (s *InMemoryDeduper) Complete(_ context.Context, claimID string) error {
	return s.settle(claimID, func(entry *claimEntry, now time.Time) {
		entry.status = claimStatusComplete
		entry.expiresAt = now.Add(entry.ttl)
	})
}

func (s *InMemoryDeduper) Fail(_ context.Context, claimID string, _ error, retryAt time.Time) error {
	return s.settle(claimID, func(entry *claimEntry, now time.Time) {
		if retryAt.IsZero() {
			retryAt = now
		}
		entry.status = claimStatusRetryReady
		entry.retryAt = retryAt
		entry.expiresAt = time.Time{}
	})
}

// Attempts reports how many times an event ID has been claimed.
func (s *InMemoryDeduper) Attempts(eventID string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[strings.TrimSpace(eventID)].attempts
}

func (s *InMemoryDeduper) settle(claimID string, apply func(*claimEntry, time.Time)) error {
	if s == nil {
		return core.NewConfiguration("webhooks: deduper is nil", core.WithMethod("dedupe.settle"))
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return core.NewValidation("webhooks: claim id is required", core.WithMethod("dedupe.settle"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	eventID, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	delete(s.claims, claimID)
	entry, exists := s.entries[eventID]
	if !exists || entry.claimID != claimID || entry.status != claimStatusProcessing {
		return nil
	}
	apply(&entry, s.now())
	s.entries[eventID] = entry
	return nil
}

func (s *InMemoryDeduper) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InMemoryDeduper) nextClaimID() string {
	s.nextID++
	return fmt.Sprintf("claim_%d", s.nextID)
}

func (s *InMemoryDeduper) evictExpiredLocked(now time.Time) {
	for eventID, entry := range s.entries {
		if entry.status == claimStatusComplete && !now.Before(entry.expiresAt) {
			delete(s.claims, entry.claimID)
			delete(s.entries, eventID)
		}
	}
}

var _ Deduper = (*InMemoryDeduper)(nil)
