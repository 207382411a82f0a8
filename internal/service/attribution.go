// Package service implements the attribution core: link creation, click
// fingerprinting, device matching and stats.
package service

import (
	"DeepLink-Backend/internal/config"
	"DeepLink-Backend/internal/domain"
	"DeepLink-Backend/internal/fingerprint"
	"DeepLink-Backend/internal/metrics"
	"DeepLink-Backend/internal/repository"
	"DeepLink-Backend/pkg/useragent"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// raceRetries bounds how often a match request re-runs candidate selection
// after losing the fingerprint-consumption race to a concurrent request.
const raceRetries = 1

type AttributionService struct {
	storage repository.Storage
	parser  *useragent.Parser
	cfg     *config.DeepLink
	log     *zap.Logger
}

func NewAttributionService(storage repository.Storage, parser *useragent.Parser, cfg *config.DeepLink, log *zap.Logger) *AttributionService {
	return &AttributionService{
		storage: storage,
		parser:  parser,
		cfg:     cfg,
		log:     log,
	}
}

// CreateLinkRequest carries the fields a campaign owner supplies for a new
// deep link. CustomData is an open-ended payload passed through verbatim.
type CreateLinkRequest struct {
	TargetURL      string
	CampaignName   *string
	CampaignSource *string
	CampaignMedium *string
	CustomData     map[string]interface{}
	ExpiryDays     *int
}

// CreateLinkResult is the created link plus its public short URL.
type CreateLinkResult struct {
	LinkID    string
	ShortURL  string
	TargetURL string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// ClickInfo is the device signature visible on the click path. Optional
// fields the browser cannot supply (timezone, resolution) stay nil.
type ClickInfo struct {
	IPAddress        string
	UserAgent        string
	DeviceModel      *string
	OSName           *string
	OSVersion        *string
	BrowserName      *string
	BrowserVersion   *string
	Language         *string
	Timezone         *string
	ScreenResolution *string
}

// MatchRequest is the attribute set an installed app reports on first launch.
// Timestamp is the app-open time in Unix milliseconds.
type MatchRequest struct {
	DeviceID         string
	IPAddress        string
	UserAgent        string
	DeviceModel      *string
	OSName           *string
	OSVersion        *string
	Language         *string
	Timezone         *string
	ScreenResolution *string
	Timestamp        int64
}

// MatchOutcome is the attribution decision. Link and Score are meaningful
// only when Matched is true.
type MatchOutcome struct {
	Matched bool
	Link    *domain.Link
	Score   float64
}

// Stats summarizes a link's click and install counters.
type Stats struct {
	LinkID         string
	ClickCount     int64
	InstallCount   int64
	ConversionRate float64
}

// CreateLink registers a new deep link under a fresh UUID. When no expiry is
// requested the configured default lifetime applies.
func (s *AttributionService) CreateLink(ctx context.Context, req CreateLinkRequest) (*CreateLinkResult, error) {
	linkID := uuid.NewString()
	now := time.Now()

	var expiresAt *time.Time
	if req.ExpiryDays != nil {
		t := now.Add(time.Duration(*req.ExpiryDays) * 24 * time.Hour)
		expiresAt = &t
	} else {
		t := now.Add(s.cfg.LinkExpiry())
		expiresAt = &t
	}

	var customData *string
	if len(req.CustomData) > 0 {
		raw, err := json.Marshal(req.CustomData)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize custom data: %w", err)
		}
		encoded := string(raw)
		customData = &encoded
	}

	link := &domain.Link{
		LinkID:         linkID,
		TargetURL:      req.TargetURL,
		CampaignName:   req.CampaignName,
		CampaignSource: req.CampaignSource,
		CampaignMedium: req.CampaignMedium,
		CustomData:     customData,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		Active:         true,
	}

	if err := s.storage.SaveLink(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	metrics.LinksCreated.Inc()
	s.log.Info("created deep link", zap.String("link_id", linkID))

	return &CreateLinkResult{
		LinkID:    linkID,
		ShortURL:  s.cfg.BaseURL + "/d/" + linkID,
		TargetURL: link.TargetURL,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// TrackClick stores the click fingerprint for an active, unexpired link and
// returns the redirect target. Expired and inactive links record nothing:
// repository.ErrLinkNotFound / ErrLinkExpired come back unwrapped so the
// handler can fall through to the store redirect.
func (s *AttributionService) TrackClick(ctx context.Context, linkID string, click ClickInfo) (string, error) {
	link, err := s.storage.GetActiveLink(ctx, linkID)
	if err != nil {
		return "", err
	}

	parsed := s.parser.Parse(click.UserAgent)

	// The hash is keyed on parsed attributes only; request-supplied fields
	// take precedence in the stored record.
	hash := fingerprint.Hash(
		click.IPAddress,
		parsed.OSName,
		parsed.OSMajor,
		parsed.DeviceModel,
		click.Language,
		click.Timezone,
		click.ScreenResolution,
	)

	fp := &domain.DeviceFingerprint{
		LinkID:           link.LinkID,
		FingerprintHash:  hash,
		IPAddress:        click.IPAddress,
		UserAgent:        click.UserAgent,
		DeviceModel:      coalesce(click.DeviceModel, parsed.DeviceModel),
		OSName:           coalesce(click.OSName, parsed.OSName),
		OSVersion:        coalesce(click.OSVersion, parsed.OSVersion),
		BrowserName:      coalesce(click.BrowserName, parsed.BrowserName),
		BrowserVersion:   coalesce(click.BrowserVersion, parsed.BrowserVersion),
		Language:         click.Language,
		Timezone:         click.Timezone,
		ScreenResolution: click.ScreenResolution,
	}

	fpID, err := s.storage.RecordClick(ctx, fp)
	if err != nil {
		return "", fmt.Errorf("failed to record click: %w", err)
	}

	metrics.ClicksTracked.Inc()
	s.log.Info("tracked click",
		zap.String("link_id", link.LinkID),
		zap.Int64("fingerprint_id", fpID),
		zap.String("fingerprint_hash", hash))

	return link.TargetURL, nil
}

// MatchDevice decides which link, if any, drove this device's install.
//
// The operation is idempotent: once a device has an attribution, every later
// call returns the stored decision without rescoring. Candidate retrieval is
// IP-scoped only; an empty pool is an unmatched outcome, not an error. When a
// concurrent request consumes this request's chosen fingerprint first,
// selection re-runs once over the remaining pool, then fails closed.
func (s *AttributionService) MatchDevice(ctx context.Context, req MatchRequest) (*MatchOutcome, error) {
	existing, err := s.storage.GetMatchByDevice(ctx, req.DeviceID)
	if err == nil {
		return s.replayStoredMatch(ctx, existing)
	}
	if !errors.Is(err, repository.ErrMatchNotFound) {
		return nil, fmt.Errorf("failed idempotency check: %w", err)
	}

	reqAttrs := fingerprint.Attributes{
		IPAddress:        req.IPAddress,
		OSName:           req.OSName,
		OSVersion:        req.OSVersion,
		DeviceModel:      req.DeviceModel,
		Language:         req.Language,
		Timezone:         req.Timezone,
		ScreenResolution: req.ScreenResolution,
	}
	windowStart := time.UnixMilli(req.Timestamp).Add(-s.cfg.MatchingWindow())

	for attempt := 0; attempt <= raceRetries; attempt++ {
		candidates, err := s.storage.FindUnmatchedCandidates(ctx, req.IPAddress, windowStart)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve candidates: %w", err)
		}
		if len(candidates) == 0 {
			metrics.MatchRequests.WithLabelValues(metrics.OutcomeNoCandidates).Inc()
			s.log.Info("no matching candidates", zap.String("device_id", req.DeviceID))
			return &MatchOutcome{}, nil
		}

		best, bestScore := selectBestCandidate(reqAttrs, candidates, req.Timestamp, s.cfg.MatchingWindowMs)

		if bestScore < fingerprint.MatchThreshold {
			metrics.MatchRequests.WithLabelValues(metrics.OutcomeBelowThreshold).Inc()
			s.log.Info("best candidate below threshold",
				zap.String("device_id", req.DeviceID),
				zap.Float64("best_score", bestScore))
			return &MatchOutcome{}, nil
		}

		link, err := s.storage.GetLink(ctx, best.LinkID)
		if errors.Is(err, repository.ErrLinkNotFound) {
			// Link vanished between click and match; best effort, not fatal.
			metrics.MatchRequests.WithLabelValues(metrics.OutcomeLinkGone).Inc()
			s.log.Warn("winning candidate's link is gone",
				zap.String("device_id", req.DeviceID),
				zap.String("link_id", best.LinkID))
			return &MatchOutcome{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve link: %w", err)
		}

		match := &domain.AttributionMatch{
			LinkID:        best.LinkID,
			DeviceID:      req.DeviceID,
			FingerprintID: best.ID,
			MatchScore:    bestScore,
			IPAddress:     &req.IPAddress,
			UserAgent:     &req.UserAgent,
			CustomData:    link.CustomData,
		}

		err = s.storage.RecordMatch(ctx, match)
		switch {
		case err == nil:
			metrics.MatchRequests.WithLabelValues(metrics.OutcomeMatched).Inc()
			s.log.Info("device matched",
				zap.String("device_id", req.DeviceID),
				zap.String("link_id", best.LinkID),
				zap.Float64("match_score", bestScore))
			return &MatchOutcome{Matched: true, Link: link, Score: bestScore}, nil

		case errors.Is(err, repository.ErrDeviceAlreadyMatched):
			// A concurrent call for this device won the unique-index race.
			winner, werr := s.storage.GetMatchByDevice(ctx, req.DeviceID)
			if werr != nil {
				return nil, fmt.Errorf("failed to re-read match after race: %w", werr)
			}
			return s.replayStoredMatch(ctx, winner)

		case errors.Is(err, repository.ErrFingerprintConsumed):
			// The winner may have been a concurrent call for this very
			// device; re-check idempotency before re-running selection.
			if winner, werr := s.storage.GetMatchByDevice(ctx, req.DeviceID); werr == nil {
				return s.replayStoredMatch(ctx, winner)
			} else if !errors.Is(werr, repository.ErrMatchNotFound) {
				return nil, fmt.Errorf("failed idempotency re-check after race: %w", werr)
			}
			s.log.Info("lost fingerprint race, re-running selection",
				zap.String("device_id", req.DeviceID),
				zap.Int64("fingerprint_id", best.ID))

		default:
			return nil, fmt.Errorf("failed to record match: %w", err)
		}
	}

	metrics.MatchRequests.WithLabelValues(metrics.OutcomeRaceLost).Inc()
	s.log.Info("match failed closed after repeated fingerprint races", zap.String("device_id", req.DeviceID))
	return &MatchOutcome{}, nil
}

// GetStats returns click/install counters and the conversion rate for a link.
func (s *AttributionService) GetStats(ctx context.Context, linkID string) (*Stats, error) {
	link, err := s.storage.GetLink(ctx, linkID)
	if err != nil {
		return nil, err
	}

	conversionRate := 0.0
	if link.ClickCount > 0 {
		conversionRate = float64(link.InstallCount) / float64(link.ClickCount) * 100
	}

	return &Stats{
		LinkID:         link.LinkID,
		ClickCount:     link.ClickCount,
		InstallCount:   link.InstallCount,
		ConversionRate: conversionRate,
	}, nil
}

// replayStoredMatch turns a stored attribution into a response without any
// rescoring or writes.
func (s *AttributionService) replayStoredMatch(ctx context.Context, match *domain.AttributionMatch) (*MatchOutcome, error) {
	metrics.MatchRequests.WithLabelValues(metrics.OutcomeAlreadyMatched).Inc()

	link, err := s.storage.GetLink(ctx, match.LinkID)
	if errors.Is(err, repository.ErrLinkNotFound) {
		return &MatchOutcome{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stored match link: %w", err)
	}

	return &MatchOutcome{Matched: true, Link: link, Score: match.MatchScore}, nil
}

// selectBestCandidate scans the newest-first candidate list and keeps the
// single highest score. The strict comparison makes ties fall to the first
// candidate examined, i.e. the most recently created fingerprint.
func selectBestCandidate(reqAttrs fingerprint.Attributes, candidates []*domain.DeviceFingerprint, requestTimestamp, windowMs int64) (*domain.DeviceFingerprint, float64) {
	var best *domain.DeviceFingerprint
	bestScore := 0.0

	for _, c := range candidates {
		candAttrs := fingerprint.Attributes{
			IPAddress:        c.IPAddress,
			OSName:           c.OSName,
			OSVersion:        c.OSVersion,
			DeviceModel:      c.DeviceModel,
			Language:         c.Language,
			Timezone:         c.Timezone,
			ScreenResolution: c.ScreenResolution,
		}
		timeDelta := requestTimestamp - c.CreatedAt.UnixMilli()

		score := fingerprint.Score(reqAttrs, candAttrs, timeDelta, windowMs)
		if best == nil || score > bestScore {
			best = c
			bestScore = score
		}
	}

	return best, bestScore
}

func coalesce(primary, fallback *string) *string {
	if primary != nil && *primary != "" {
		return primary
	}
	return fallback
}
