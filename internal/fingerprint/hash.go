// Package fingerprint implements the device-signature hash and the weighted
// similarity scoring used by the attribution matching engine.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const hashDelimiter = "|"

// Hash derives the storage key for a device signature: a SHA-256 hex digest
// over the present components joined in a fixed order. The hash is an opaque
// lookup key only; partial-credit comparison is the scorer's job.
func Hash(ipAddress string, osFamily, osMajor, deviceFamily, language, timezone, screenResolution *string) string {
	components := []string{ipAddress}
	for _, c := range []*string{osFamily, osMajor, deviceFamily, language, timezone, screenResolution} {
		if c != nil && *c != "" {
			components = append(components, *c)
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(components, hashDelimiter)))
	return hex.EncodeToString(sum[:])
}
