package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()

	parser, err := NewParser("", zap.NewNop())
	require.NoError(t, err)
	return parser
}

func TestParse_Android(t *testing.T) {
	parser := newTestParser(t)

	parsed := parser.Parse("Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36")

	require.NotNil(t, parsed.OSName)
	assert.Equal(t, "Android", *parsed.OSName)
	require.NotNil(t, parsed.OSMajor)
	assert.Equal(t, "14", *parsed.OSMajor)
	require.NotNil(t, parsed.DeviceModel)
	assert.Contains(t, *parsed.DeviceModel, "Pixel")
}

func TestParse_IPhone(t *testing.T) {
	parser := newTestParser(t)

	parsed := parser.Parse("Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1")

	require.NotNil(t, parsed.OSName)
	assert.Equal(t, "iOS", *parsed.OSName)
	require.NotNil(t, parsed.OSVersion)
	assert.Equal(t, "17.4", *parsed.OSVersion)
	require.NotNil(t, parsed.OSMajor)
	assert.Equal(t, "17", *parsed.OSMajor)
}

func TestParse_EmptyInput(t *testing.T) {
	parser := newTestParser(t)

	parsed := parser.Parse("")

	assert.Nil(t, parsed.OSName)
	assert.Nil(t, parsed.OSVersion)
	assert.Nil(t, parsed.DeviceModel)
	assert.Nil(t, parsed.BrowserName)
}

func TestParse_UnrecognizedInput(t *testing.T) {
	parser := newTestParser(t)

	// uap reports unknown families as "Other"; those must read as absent.
	parsed := parser.Parse("definitely-not-a-browser/0.0")

	assert.Nil(t, parsed.OSName)
	assert.Nil(t, parsed.DeviceModel)
}

func TestNewParser_MissingFileFallsBack(t *testing.T) {
	parser, err := NewParser("/no/such/regexes.yaml", zap.NewNop())
	require.NoError(t, err)

	parsed := parser.Parse("Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36")
	require.NotNil(t, parsed.OSName)
	assert.Equal(t, "Android", *parsed.OSName)
}
