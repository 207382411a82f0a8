package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_Deterministic(t *testing.T) {
	first := Hash("203.0.113.7", str("Android"), str("14"), str("Pixel 8"), str("en-US"), str("Europe/Berlin"), str("1080x2400"))
	second := Hash("203.0.113.7", str("Android"), str("14"), str("Pixel 8"), str("en-US"), str("Europe/Berlin"), str("1080x2400"))

	require.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestHash_AbsentComponentsAreOmitted(t *testing.T) {
	// With every optional component absent the digest covers the IP alone.
	sum := sha256.Sum256([]byte("203.0.113.7"))
	expected := hex.EncodeToString(sum[:])

	assert.Equal(t, expected, Hash("203.0.113.7", nil, nil, nil, nil, nil, nil))

	// Empty strings behave like absent components.
	assert.Equal(t, expected, Hash("203.0.113.7", str(""), str(""), nil, nil, nil, str("")))
}

func TestHash_ComponentsChangeDigest(t *testing.T) {
	base := Hash("203.0.113.7", str("Android"), str("14"), nil, nil, nil, nil)

	assert.NotEqual(t, base, Hash("198.51.100.9", str("Android"), str("14"), nil, nil, nil, nil))
	assert.NotEqual(t, base, Hash("203.0.113.7", str("Android"), str("13"), nil, nil, nil, nil))
	assert.NotEqual(t, base, Hash("203.0.113.7", str("Android"), nil, nil, nil, nil, nil))
}
