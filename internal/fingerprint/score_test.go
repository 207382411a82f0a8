package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const windowMs = int64(86400000) // 24h

func str(s string) *string { return &s }

func fullAttributes(ip string) Attributes {
	return Attributes{
		IPAddress:        ip,
		OSName:           str("Android"),
		OSVersion:        str("14"),
		DeviceModel:      str("Pixel 8"),
		Language:         str("en-US"),
		Timezone:         str("Europe/Berlin"),
		ScreenResolution: str("1080x2400"),
	}
}

func TestScore_PerfectMatch(t *testing.T) {
	a := fullAttributes("203.0.113.7")
	b := fullAttributes("203.0.113.7")

	score := Score(a, b, 0, windowMs)
	require.InDelta(t, 1.0, score, 1e-9)
}

func TestScore_IPMatchOnly_OtherFieldsAbsent(t *testing.T) {
	// Only IP comparable: raw=0.40, possible=0.40, normalized=1.0.
	a := Attributes{IPAddress: "203.0.113.7"}
	b := fullAttributes("203.0.113.7")

	score := Score(a, b, 0, windowMs)
	require.InDelta(t, 1.0, score, 1e-9)
}

func TestScore_IPMismatch_OSNameAndVersionMatch(t *testing.T) {
	// raw = 0.20 + 0.05 = 0.25; possible = 0.40 + 0.20 + 0.05 = 0.65.
	a := Attributes{IPAddress: "203.0.113.7", OSName: str("iOS"), OSVersion: str("17.4")}
	b := Attributes{IPAddress: "198.51.100.9", OSName: str("iOS"), OSVersion: str("17.4")}

	score := Score(a, b, 0, windowMs)
	require.InDelta(t, 0.25/0.65, score, 1e-9)
	assert.Less(t, score, MatchThreshold)
}

func TestScore_OSVersionBonusRequiresNameMatch(t *testing.T) {
	// Versions equal but names differ: the 0.05 stays in the denominator
	// without being credited.
	a := Attributes{IPAddress: "203.0.113.7", OSName: str("iOS"), OSVersion: str("17")}
	b := Attributes{IPAddress: "203.0.113.7", OSName: str("Android"), OSVersion: str("17")}

	score := Score(a, b, 0, windowMs)
	require.InDelta(t, 0.40/0.65, score, 1e-9)
}

func TestScore_OSVersionAbsentOnOneSide(t *testing.T) {
	// The bonus weight drops out of the denominator when either version is
	// missing: raw = possible = 0.60.
	a := Attributes{IPAddress: "203.0.113.7", OSName: str("Android")}
	b := Attributes{IPAddress: "203.0.113.7", OSName: str("Android"), OSVersion: str("14")}

	score := Score(a, b, 0, windowMs)
	require.InDelta(t, 1.0, score, 1e-9)
}

func TestScore_TimeDecay(t *testing.T) {
	a := fullAttributes("203.0.113.7")
	b := fullAttributes("203.0.113.7")

	halfWindow := Score(a, b, windowMs/2, windowMs)
	require.InDelta(t, 0.85, halfWindow, 1e-9)
	assert.GreaterOrEqual(t, halfWindow, MatchThreshold)

	// Full window is the acceptance boundary: exactly 0.70 still matches.
	fullWindow := Score(a, b, windowMs, windowMs)
	require.InDelta(t, 0.70, fullWindow, 1e-9)
	assert.GreaterOrEqual(t, fullWindow, MatchThreshold)
}

func TestScore_NegativeDeltaClampedAtOne(t *testing.T) {
	// Clock skew: negative delta is a helpful penalty, bounded only by the
	// final clamp.
	a := fullAttributes("203.0.113.7")
	b := fullAttributes("203.0.113.7")

	score := Score(a, b, -windowMs/2, windowMs)
	require.InDelta(t, 1.0, score, 1e-9)
}

func TestScore_ClampedAtZero(t *testing.T) {
	a := Attributes{IPAddress: "203.0.113.7"}
	b := Attributes{IPAddress: "198.51.100.9"}

	score := Score(a, b, windowMs, windowMs)
	require.InDelta(t, 0.0, score, 1e-9)
}

func TestScore_EmptyStringCountsAsAbsent(t *testing.T) {
	a := Attributes{IPAddress: "203.0.113.7", OSName: str("")}
	b := Attributes{IPAddress: "203.0.113.7", OSName: str("Android")}

	score := Score(a, b, 0, windowMs)
	require.InDelta(t, 1.0, score, 1e-9)
}
