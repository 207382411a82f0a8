package service

import (
	"DeepLink-Backend/internal/config"
	"DeepLink-Backend/internal/domain"
	"DeepLink-Backend/internal/repository"
	"DeepLink-Backend/internal/repository/memory"
	"DeepLink-Backend/pkg/useragent"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWindowMs = int64(86400000) // 24h

func setupTestService(t *testing.T) (*AttributionService, *memory.MemStorage) {
	t.Helper()

	parser, err := useragent.NewParser("", zap.NewNop())
	require.NoError(t, err)

	cfg := &config.DeepLink{
		MatchingWindowMs: testWindowMs,
		LinkExpiryMs:     2592000000,
		BaseURL:          "http://localhost:8080",
	}

	store := memory.New()
	return NewAttributionService(store, parser, cfg, zap.NewNop()), store
}

func str(s string) *string { return &s }

func seedLink(t *testing.T, store *memory.MemStorage, linkID string) *domain.Link {
	t.Helper()

	link := &domain.Link{
		LinkID:    linkID,
		TargetURL: "https://example.com/product/42",
		Active:    true,
	}
	require.NoError(t, store.SaveLink(context.Background(), link))
	return link
}

// seedFingerprint stores an unmatched click fingerprint with a controlled
// creation time and a full attribute set on the given IP.
func seedFingerprint(t *testing.T, store *memory.MemStorage, linkID, ip string, createdAt time.Time) *domain.DeviceFingerprint {
	t.Helper()

	fp := &domain.DeviceFingerprint{
		LinkID:           linkID,
		FingerprintHash:  "test-hash",
		IPAddress:        ip,
		UserAgent:        "Mozilla/5.0 (Linux; Android 14; Pixel 8)",
		DeviceModel:      str("Pixel 8"),
		OSName:           str("Android"),
		OSVersion:        str("14"),
		Language:         str("en-US"),
		Timezone:         str("Europe/Berlin"),
		ScreenResolution: str("1080x2400"),
		CreatedAt:        createdAt,
	}
	_, err := store.RecordClick(context.Background(), fp)
	require.NoError(t, err)
	return fp
}

// matchRequestFor mirrors the seeded fingerprint's attributes, as the same
// device reporting in from the installed app would.
func matchRequestFor(deviceID, ip string, timestamp int64) MatchRequest {
	return MatchRequest{
		DeviceID:         deviceID,
		IPAddress:        ip,
		UserAgent:        "app-sdk/1.0",
		DeviceModel:      str("Pixel 8"),
		OSName:           str("Android"),
		OSVersion:        str("14"),
		Language:         str("en-US"),
		Timezone:         str("Europe/Berlin"),
		ScreenResolution: str("1080x2400"),
		Timestamp:        timestamp,
	}
}

// --- CreateLink ---

func TestCreateLink(t *testing.T) {
	svc, store := setupTestService(t)

	expiryDays := 7
	result, err := svc.CreateLink(context.Background(), CreateLinkRequest{
		TargetURL:    "https://example.com/landing",
		CampaignName: str("summer"),
		CustomData:   map[string]interface{}{"promo": "SUMMER24"},
		ExpiryDays:   &expiryDays,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.LinkID)
	assert.Equal(t, "http://localhost:8080/d/"+result.LinkID, result.ShortURL)
	assert.Equal(t, "https://example.com/landing", result.TargetURL)
	require.NotNil(t, result.ExpiresAt)
	assert.WithinDuration(t, result.CreatedAt.Add(7*24*time.Hour), *result.ExpiresAt, time.Second)

	stored, err := store.GetLink(context.Background(), result.LinkID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
	require.NotNil(t, stored.CustomData)
	assert.JSONEq(t, `{"promo":"SUMMER24"}`, *stored.CustomData)
}

func TestCreateLink_DefaultExpiry(t *testing.T) {
	svc, _ := setupTestService(t)

	result, err := svc.CreateLink(context.Background(), CreateLinkRequest{TargetURL: "https://example.com"})
	require.NoError(t, err)

	require.NotNil(t, result.ExpiresAt)
	assert.WithinDuration(t, result.CreatedAt.Add(30*24*time.Hour), *result.ExpiresAt, time.Second)
}

// --- TrackClick ---

func TestTrackClick_RecordsFingerprint(t *testing.T) {
	svc, store := setupTestService(t)
	link := seedLink(t, store, "link-click")

	target, err := svc.TrackClick(context.Background(), link.LinkID, ClickInfo{
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36",
		Language:  str("en-US"),
	})
	require.NoError(t, err)
	assert.Equal(t, link.TargetURL, target)

	candidates, err := store.FindUnmatchedCandidates(context.Background(), "203.0.113.7", time.Time{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	fp := candidates[0]
	assert.Equal(t, link.LinkID, fp.LinkID)
	assert.NotEmpty(t, fp.FingerprintHash)
	assert.Equal(t, "203.0.113.7", fp.IPAddress)
	require.NotNil(t, fp.OSName)
	assert.Equal(t, "Android", *fp.OSName)
	assert.False(t, fp.Matched)

	refreshed, err := store.GetLink(context.Background(), link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), refreshed.ClickCount)
}

func TestTrackClick_ExpiredLink(t *testing.T) {
	svc, store := setupTestService(t)

	expired := time.Now().Add(-time.Hour)
	link := &domain.Link{
		LinkID:    "link-expired",
		TargetURL: "https://example.com",
		Active:    true,
		ExpiresAt: &expired,
	}
	require.NoError(t, store.SaveLink(context.Background(), link))

	_, err := svc.TrackClick(context.Background(), link.LinkID, ClickInfo{
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0",
	})
	require.ErrorIs(t, err, repository.ErrLinkExpired)

	// No fingerprint, no click count: nothing to attribute later.
	candidates, err := store.FindUnmatchedCandidates(context.Background(), "203.0.113.7", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, candidates)

	refreshed, err := store.GetLink(context.Background(), link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), refreshed.ClickCount)
}

func TestTrackClick_InactiveLink(t *testing.T) {
	svc, store := setupTestService(t)

	link := &domain.Link{LinkID: "link-inactive", TargetURL: "https://example.com", Active: false}
	require.NoError(t, store.SaveLink(context.Background(), link))

	_, err := svc.TrackClick(context.Background(), link.LinkID, ClickInfo{
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0",
	})
	require.ErrorIs(t, err, repository.ErrLinkNotFound)
}

// --- MatchDevice ---

func TestMatchDevice_PerfectCandidate(t *testing.T) {
	svc, store := setupTestService(t)
	link := seedLink(t, store, "link-perfect")

	now := time.Now().UnixMilli()
	fp := seedFingerprint(t, store, link.LinkID, "203.0.113.7", time.UnixMilli(now))

	outcome, err := svc.MatchDevice(context.Background(), matchRequestFor("device-1", "203.0.113.7", now))
	require.NoError(t, err)

	require.True(t, outcome.Matched)
	assert.Equal(t, link.LinkID, outcome.Link.LinkID)
	require.InDelta(t, 1.0, outcome.Score, 1e-9)

	// The winning fingerprint is consumed and the install counted.
	assert.True(t, fp.Matched)
	refreshed, err := store.GetLink(context.Background(), link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), refreshed.InstallCount)
}

func TestMatchDevice_Idempotent(t *testing.T) {
	svc, store := setupTestService(t)
	link := seedLink(t, store, "link-idem")

	now := time.Now().UnixMilli()
	seedFingerprint(t, store, link.LinkID, "203.0.113.7", time.UnixMilli(now))

	first, err := svc.MatchDevice(context.Background(), matchRequestFor("device-idem", "203.0.113.7", now))
	require.NoError(t, err)
	require.True(t, first.Matched)

	// The candidate is consumed, so a rescore would find nothing; the stored
	// decision must come back instead.
	second, err := svc.MatchDevice(context.Background(), matchRequestFor("device-idem", "203.0.113.7", now))
	require.NoError(t, err)
	require.True(t, second.Matched)
	assert.Equal(t, first.Link.LinkID, second.Link.LinkID)
	assert.InDelta(t, first.Score, second.Score, 1e-9)

	count, err := store.CountMatchesByLink(context.Background(), link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	refreshed, err := store.GetLink(context.Background(), link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), refreshed.InstallCount)
}

func TestMatchDevice_NoCandidates(t *testing.T) {
	svc, store := setupTestService(t)
	seedLink(t, store, "link-empty")

	outcome, err := svc.MatchDevice(context.Background(), matchRequestFor("device-none", "203.0.113.7", time.Now().UnixMilli()))
	require.NoError(t, err)
	assert.False(t, outcome.Matched)
}

func TestMatchDevice_CandidateOutsideWindow(t *testing.T) {
	svc, store := setupTestService(t)
	link := seedLink(t, store, "link-old")

	now := time.Now().UnixMilli()
	seedFingerprint(t, store, link.LinkID, "203.0.113.7", time.UnixMilli(now-testWindowMs-1))

	outcome, err := svc.MatchDevice(context.Background(), matchRequestFor("device-old", "203.0.113.7", now))
	require.NoError(t, err)
	assert.False(t, outcome.Matched)
}

func TestMatchDevice_BelowThreshold(t *testing.T) {
	svc, store := setupTestService(t)
	link := seedLink(t, store, "link-weak")

	now := time.Now().UnixMilli()
	fp := seedFingerprint(t, store, link.LinkID, "203.0.113.7", time.UnixMilli(now))

	// Same IP but a conflicting OS on both sides: 0.40/0.60 < 0.70.
	req := MatchRequest{
		DeviceID:  "device-weak",
		IPAddress: "203.0.113.7",
		UserAgent: "app-sdk/1.0",
		OSName:    str("iOS"),
		Timestamp: now,
	}

	outcome, err := svc.MatchDevice(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, outcome.Matched)
	assert.False(t, fp.Matched)
}

func TestMatchDevice_AcceptsExactlyAtThreshold(t *testing.T) {
	svc, store := setupTestService(t)
	link := seedLink(t, store, "link-boundary")

	// A perfect candidate aged the full window decays to exactly 0.70,
	// which still matches.
	now := time.Now().UnixMilli()
	seedFingerprint(t, store, link.LinkID, "203.0.113.7", time.UnixMilli(now-testWindowMs))

	outcome, err := svc.MatchDevice(context.Background(), matchRequestFor("device-boundary", "203.0.113.7", now))
	require.NoError(t, err)
	require.True(t, outcome.Matched)
	assert.InDelta(t, 0.70, outcome.Score, 1e-9)
}

func TestMatchDevice_HalfWindowDecay(t *testing.T) {
	svc, store := setupTestService(t)
	link := seedLink(t, store, "link-decay")

	now := time.Now().UnixMilli()
	seedFingerprint(t, store, link.LinkID, "203.0.113.7", time.UnixMilli(now-testWindowMs/2))

	outcome, err := svc.MatchDevice(context.Background(), matchRequestFor("device-decay", "203.0.113.7", now))
	require.NoError(t, err)
	require.True(t, outcome.Matched)
	assert.InDelta(t, 0.85, outcome.Score, 1e-9)
}

func TestMatchDevice_TieGoesToNewestFingerprint(t *testing.T) {
	svc, store := setupTestService(t)
	older := seedLink(t, store, "link-older")
	newer := seedLink(t, store, "link-newer")

	// Identical attributes and identical creation times score identically;
	// the newest-first retrieval order breaks the tie.
	now := time.Now().UnixMilli()
	seedFingerprint(t, store, older.LinkID, "203.0.113.7", time.UnixMilli(now))
	seedFingerprint(t, store, newer.LinkID, "203.0.113.7", time.UnixMilli(now))

	outcome, err := svc.MatchDevice(context.Background(), matchRequestFor("device-tie", "203.0.113.7", now))
	require.NoError(t, err)
	require.True(t, outcome.Matched)
	assert.Equal(t, newer.LinkID, outcome.Link.LinkID)
}

func TestMatchDevice_ConsumedCandidateFallsToNext(t *testing.T) {
	svc, store := setupTestService(t)
	first := seedLink(t, store, "link-first")
	second := seedLink(t, store, "link-second")

	now := time.Now().UnixMilli()
	seedFingerprint(t, store, second.LinkID, "203.0.113.7", time.UnixMilli(now-time.Hour.Milliseconds()))
	seedFingerprint(t, store, first.LinkID, "203.0.113.7", time.UnixMilli(now))

	outcomeA, err := svc.MatchDevice(context.Background(), matchRequestFor("device-a", "203.0.113.7", now))
	require.NoError(t, err)
	require.True(t, outcomeA.Matched)
	assert.Equal(t, first.LinkID, outcomeA.Link.LinkID)

	// The newest fingerprint is consumed; the second device falls through to
	// the older, still-eligible one.
	outcomeB, err := svc.MatchDevice(context.Background(), matchRequestFor("device-b", "203.0.113.7", now))
	require.NoError(t, err)
	require.True(t, outcomeB.Matched)
	assert.Equal(t, second.LinkID, outcomeB.Link.LinkID)
}

func TestMatchDevice_LinkGoneFailsClosed(t *testing.T) {
	svc, store := setupTestService(t)

	now := time.Now().UnixMilli()
	fp := seedFingerprint(t, store, "link-deleted", "203.0.113.7", time.UnixMilli(now))

	outcome, err := svc.MatchDevice(context.Background(), matchRequestFor("device-gone", "203.0.113.7", now))
	require.NoError(t, err)
	assert.False(t, outcome.Matched)
	assert.False(t, fp.Matched)
}

func TestMatchDevice_ConcurrentDevicesConsumeOneFingerprint(t *testing.T) {
	svc, store := setupTestService(t)
	link := seedLink(t, store, "link-race")

	now := time.Now().UnixMilli()
	seedFingerprint(t, store, link.LinkID, "203.0.113.7", time.UnixMilli(now))

	const workers = 8
	outcomes := make([]*MatchOutcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.MatchDevice(context.Background(),
				matchRequestFor(fmt.Sprintf("device-race-%d", i), "203.0.113.7", now))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
	}

	matched := 0
	for _, outcome := range outcomes {
		if outcome.Matched {
			matched++
		}
	}
	assert.Equal(t, 1, matched, "exactly one device may consume the fingerprint")

	refreshed, err := store.GetLink(context.Background(), link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), refreshed.InstallCount)
}

// --- GetStats ---

func TestGetStats(t *testing.T) {
	svc, store := setupTestService(t)
	link := seedLink(t, store, "link-stats")

	now := time.Now().UnixMilli()
	seedFingerprint(t, store, link.LinkID, "203.0.113.7", time.UnixMilli(now))
	seedFingerprint(t, store, link.LinkID, "198.51.100.9", time.UnixMilli(now))

	outcome, err := svc.MatchDevice(context.Background(), matchRequestFor("device-stats", "203.0.113.7", now))
	require.NoError(t, err)
	require.True(t, outcome.Matched)

	stats, err := svc.GetStats(context.Background(), link.LinkID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ClickCount)
	assert.Equal(t, int64(1), stats.InstallCount)
	assert.InDelta(t, 50.0, stats.ConversionRate, 1e-9)
}

func TestGetStats_UnknownLink(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.GetStats(context.Background(), "no-such-link")
	require.ErrorIs(t, err, repository.ErrLinkNotFound)
}
