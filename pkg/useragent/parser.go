// Package useragent wraps the uap-go User-Agent parser behind the normalizer
// contract consumed by the attribution core: best-effort parsing where every
// output field is optional.
package useragent

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ua-parser/uap-go/uaparser"
	"go.uber.org/zap"
)

// Parser normalizes raw User-Agent strings into structured device fields.
// It is a constructed dependency: build it once in main and pass it by
// reference to whatever needs it.
type Parser struct {
	parser *uaparser.Parser
	log    *zap.Logger
}

// Parsed is the normalized output. Any field may be nil when the input gave
// no signal for it; "Other" families count as no signal.
type Parsed struct {
	OSName         *string
	OSVersion      *string
	OSMajor        *string
	BrowserName    *string
	BrowserVersion *string
	DeviceModel    *string
}

// NewParser creates a parser from a uap-core regexes file. When the path is
// empty or the file cannot be read, the regexes compiled into uap-go are used
// instead.
func NewParser(regexFilePath string, log *zap.Logger) (*Parser, error) {
	if regexFilePath == "" {
		return &Parser{parser: uaparser.NewFromSaved(), log: log}, nil
	}

	regexFile, err := os.Open(regexFilePath)
	if err != nil {
		log.Warn("failed to open User-Agent regexes file, using built-in definitions",
			zap.String("regexes_file", regexFilePath),
			zap.Error(err))
		return &Parser{parser: uaparser.NewFromSaved(), log: log}, nil
	}
	defer regexFile.Close()

	regexBytes, err := io.ReadAll(regexFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read regexes file: %w", err)
	}

	parser, err := uaparser.NewFromBytes(regexBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create User-Agent parser: %w", err)
	}

	log.Info("User-Agent parser initialized", zap.String("regexes_file", regexFilePath))

	return &Parser{parser: parser, log: log}, nil
}

// Parse normalizes a raw User-Agent string. Unparseable input yields a Parsed
// with all fields absent, never an error.
func (p *Parser) Parse(userAgent string) *Parsed {
	if userAgent == "" {
		return &Parsed{}
	}

	client := p.parser.Parse(userAgent)

	parsed := &Parsed{
		OSName:         optional(client.Os.Family),
		OSMajor:        optional(client.Os.Major),
		OSVersion:      joinVersion(client.Os.Major, client.Os.Minor, client.Os.Patch),
		BrowserName:    optional(client.UserAgent.Family),
		BrowserVersion: joinVersion(client.UserAgent.Major, client.UserAgent.Minor),
		DeviceModel:    optional(client.Device.Family),
	}

	p.log.Debug("parsed User-Agent",
		zap.String("user_agent", userAgent),
		zap.Stringp("os_name", parsed.OSName),
		zap.Stringp("os_version", parsed.OSVersion),
		zap.Stringp("device_model", parsed.DeviceModel))

	return parsed
}

// optional maps empty and "Other" families to absent.
func optional(s string) *string {
	if s == "" || s == "Other" {
		return nil
	}
	return &s
}

// joinVersion joins the non-empty version segments with dots.
func joinVersion(segments ...string) *string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, ".")
	return &joined
}
