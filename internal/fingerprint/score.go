package fingerprint

// MatchThreshold is the minimum final score the matching engine accepts.
const MatchThreshold = 0.70

// Signal weights. They sum to 1.0 of possible weight; a field missing on
// either side drops out of the denominator instead of penalizing the score.
const (
	weightIP         = 0.40
	weightOSName     = 0.20
	weightOSVersion  = 0.05 // bonus on top of an OS name match
	weightDevice     = 0.15
	weightLanguage   = 0.10
	weightTimezone   = 0.10
	weightResolution = 0.05

	timeDecayWeight = 0.30
)

// Attributes is the comparable slice of a device signature. IPAddress is
// always present; everything else is optional.
type Attributes struct {
	IPAddress        string
	OSName           *string
	OSVersion        *string
	DeviceModel      *string
	Language         *string
	Timezone         *string
	ScreenResolution *string
}

// Score computes the weighted partial-credit similarity of two signatures,
// normalized over the weight of fields present on both sides, minus a linear
// time-decay penalty over the matching window. The result is clamped to
// [0.0, 1.0].
//
// The OS-version bonus weight enters the denominator only when both versions
// are present, mirroring the credit rule; the IP weight is always counted.
// A negative timeDeltaMs (clock skew) yields a helpful negative penalty and
// is bounded only by the final clamp.
func Score(a, b Attributes, timeDeltaMs, windowMs int64) float64 {
	raw := 0.0
	possible := weightIP

	if a.IPAddress == b.IPAddress {
		raw += weightIP
	}

	if bothSet(a.OSName, b.OSName) {
		possible += weightOSName
		osMatch := *a.OSName == *b.OSName
		if osMatch {
			raw += weightOSName
		}
		if bothSet(a.OSVersion, b.OSVersion) {
			possible += weightOSVersion
			if osMatch && *a.OSVersion == *b.OSVersion {
				raw += weightOSVersion
			}
		}
	}

	if bothSet(a.DeviceModel, b.DeviceModel) {
		possible += weightDevice
		if *a.DeviceModel == *b.DeviceModel {
			raw += weightDevice
		}
	}

	if bothSet(a.Language, b.Language) {
		possible += weightLanguage
		if *a.Language == *b.Language {
			raw += weightLanguage
		}
	}

	if bothSet(a.Timezone, b.Timezone) {
		possible += weightTimezone
		if *a.Timezone == *b.Timezone {
			raw += weightTimezone
		}
	}

	if bothSet(a.ScreenResolution, b.ScreenResolution) {
		possible += weightResolution
		if *a.ScreenResolution == *b.ScreenResolution {
			raw += weightResolution
		}
	}

	normalized := raw / possible
	penalty := float64(timeDeltaMs) / float64(windowMs) * timeDecayWeight

	return clamp(normalized-penalty, 0.0, 1.0)
}

func bothSet(a, b *string) bool {
	return a != nil && *a != "" && b != nil && *b != ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
