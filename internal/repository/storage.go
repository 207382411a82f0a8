package repository

import (
	"DeepLink-Backend/internal/domain"
	"context"
	"errors"
	"time"
)

var (
	ErrLinkNotFound  = errors.New("link not found")
	ErrLinkExpired   = errors.New("link expired")
	ErrMatchNotFound = errors.New("attribution match not found")

	// ErrFingerprintConsumed reports that a concurrent writer flipped the
	// fingerprint to matched first; the caller lost the consumption race.
	ErrFingerprintConsumed = errors.New("fingerprint already consumed")

	// ErrDeviceAlreadyMatched reports that the unique device constraint
	// rejected a second attribution for the same device.
	ErrDeviceAlreadyMatched = errors.New("device already matched")
)

type Storage interface {
	// Link methods
	SaveLink(ctx context.Context, link *domain.Link) error
	// GetActiveLink returns the link only while it is active and unexpired.
	GetActiveLink(ctx context.Context, linkID string) (*domain.Link, error)
	// GetLink returns the link regardless of active/expiry state.
	GetLink(ctx context.Context, linkID string) (*domain.Link, error)

	// Fingerprint methods. RecordClick inserts the fingerprint and increments
	// the link click counter in one transaction, returning the stored id.
	RecordClick(ctx context.Context, fp *domain.DeviceFingerprint) (int64, error)
	// FindUnmatchedCandidates returns unmatched fingerprints for the IP
	// created at or after the window start, newest first.
	FindUnmatchedCandidates(ctx context.Context, ipAddress string, after time.Time) ([]*domain.DeviceFingerprint, error)
	// FindAllUnmatchedCandidates is the IP-less variant of the candidate
	// query, kept for diagnostics; the matching path stays IP-scoped.
	FindAllUnmatchedCandidates(ctx context.Context, after time.Time) ([]*domain.DeviceFingerprint, error)
	FindByFingerprintHash(ctx context.Context, hash string) ([]*domain.DeviceFingerprint, error)

	// Attribution methods. RecordMatch consumes the winning fingerprint
	// (matched=false to true), inserts the attribution row and increments the
	// link install counter in one transaction, or does none of it.
	GetMatchByDevice(ctx context.Context, deviceID string) (*domain.AttributionMatch, error)
	RecordMatch(ctx context.Context, match *domain.AttributionMatch) error
	CountMatchesByLink(ctx context.Context, linkID string) (int64, error)
}
