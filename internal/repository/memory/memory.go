// Package memory provides an in-memory Storage used in tests and local runs.
// It enforces the same uniqueness and consumption semantics as the relational
// implementation.
package memory

import (
	"DeepLink-Backend/internal/domain"
	"DeepLink-Backend/internal/repository"
	"context"
	"sort"
	"sync"
	"time"
)

type MemStorage struct {
	mu                 sync.Mutex
	links              map[string]*domain.Link
	fingerprints       map[int64]*domain.DeviceFingerprint
	matchesByDevice    map[string]*domain.AttributionMatch
	fingerprintCounter int64
	matchCounter       int64
	linkCounter        int64
}

func New() *MemStorage {
	return &MemStorage{
		links:           make(map[string]*domain.Link),
		fingerprints:    make(map[int64]*domain.DeviceFingerprint),
		matchesByDevice: make(map[string]*domain.AttributionMatch),
	}
}

// --- Link Methods ---

func (s *MemStorage) SaveLink(_ context.Context, link *domain.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.linkCounter++
	link.ID = s.linkCounter
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	s.links[link.LinkID] = link
	return nil
}

func (s *MemStorage) GetActiveLink(_ context.Context, linkID string) (*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkID]
	if !ok || !link.Active {
		return nil, repository.ErrLinkNotFound
	}
	if link.ExpiresAt != nil && !link.ExpiresAt.After(time.Now()) {
		return nil, repository.ErrLinkExpired
	}
	return link, nil
}

func (s *MemStorage) GetLink(_ context.Context, linkID string) (*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkID]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

// --- Fingerprint Methods ---

func (s *MemStorage) RecordClick(_ context.Context, fp *domain.DeviceFingerprint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fingerprintCounter++
	fp.ID = s.fingerprintCounter
	if fp.CreatedAt.IsZero() {
		fp.CreatedAt = time.Now()
	}
	s.fingerprints[fp.ID] = fp

	if link, ok := s.links[fp.LinkID]; ok {
		link.ClickCount++
	}
	return fp.ID, nil
}

func (s *MemStorage) FindUnmatchedCandidates(_ context.Context, ipAddress string, after time.Time) ([]*domain.DeviceFingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*domain.DeviceFingerprint
	for _, fp := range s.fingerprints {
		if fp.Matched || fp.IPAddress != ipAddress || fp.CreatedAt.Before(after) {
			continue
		}
		candidates = append(candidates, fp)
	}
	sortNewestFirst(candidates)
	return candidates, nil
}

func (s *MemStorage) FindAllUnmatchedCandidates(_ context.Context, after time.Time) ([]*domain.DeviceFingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*domain.DeviceFingerprint
	for _, fp := range s.fingerprints {
		if fp.Matched || fp.CreatedAt.Before(after) {
			continue
		}
		candidates = append(candidates, fp)
	}
	sortNewestFirst(candidates)
	return candidates, nil
}

func (s *MemStorage) FindByFingerprintHash(_ context.Context, hash string) ([]*domain.DeviceFingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fingerprints []*domain.DeviceFingerprint
	for _, fp := range s.fingerprints {
		if fp.FingerprintHash == hash {
			fingerprints = append(fingerprints, fp)
		}
	}
	return fingerprints, nil
}

// --- Attribution Methods ---

func (s *MemStorage) GetMatchByDevice(_ context.Context, deviceID string) (*domain.AttributionMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	match, ok := s.matchesByDevice[deviceID]
	if !ok {
		return nil, repository.ErrMatchNotFound
	}
	return match, nil
}

func (s *MemStorage) RecordMatch(_ context.Context, match *domain.AttributionMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, ok := s.fingerprints[match.FingerprintID]
	if !ok || fp.Matched {
		return repository.ErrFingerprintConsumed
	}
	if _, exists := s.matchesByDevice[match.DeviceID]; exists {
		return repository.ErrDeviceAlreadyMatched
	}

	fp.Matched = true
	s.matchCounter++
	match.ID = s.matchCounter
	if match.MatchedAt.IsZero() {
		match.MatchedAt = time.Now()
	}
	s.matchesByDevice[match.DeviceID] = match

	if link, ok := s.links[match.LinkID]; ok {
		link.InstallCount++
	}
	return nil
}

func (s *MemStorage) CountMatchesByLink(_ context.Context, linkID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, match := range s.matchesByDevice {
		if match.LinkID == linkID {
			count++
		}
	}
	return count, nil
}

// sortNewestFirst orders candidates by creation time descending, newest
// insert first on equal timestamps, matching the relational query order.
func sortNewestFirst(candidates []*domain.DeviceFingerprint) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID > candidates[j].ID
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
}
