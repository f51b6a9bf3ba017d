package preprocess

import (
	"strings"

	"github.com/driftline/argopipe/internal/domain/model"
)

// Sentinel defaults substituted when an identification field cannot be
// decoded. Documented contract: downstream consumers match on these exact
// values.
const (
	SentinelPlatform = "PLATFORM_UNKNOWN"
	SentinelMode     = model.ModeRealtime
)

// Decoded carries either a decoded value or a fallback plus the reason it
// fired. Callers must check FellBack before treating Value as genuine.
type Decoded struct {
	Value    string
	FellBack bool
	Reason   string
}

// DecodePlatform decodes a fixed-width platform identifier field. Padding
// spaces and NULs are trimmed; an empty or non-printable result falls back
// to SentinelPlatform.
func DecodePlatform(raw string) Decoded {
	cleaned := strings.TrimFunc(raw, func(r rune) bool {
		return r == ' ' || r == 0
	})
	if cleaned == "" {
		return Decoded{Value: SentinelPlatform, FellBack: true, Reason: "empty after trimming padding"}
	}
	for _, r := range cleaned {
		if r < 0x20 || r > 0x7e {
			return Decoded{Value: SentinelPlatform, FellBack: true, Reason: "non-printable character in field"}
		}
	}
	return Decoded{Value: cleaned}
}

// DecodeMode decodes a one-character data-mode indicator. Anything other
// than R, A, or D falls back to real-time, the conservative default.
func DecodeMode(raw string) (model.DataMode, Decoded) {
	cleaned := strings.TrimFunc(raw, func(r rune) bool {
		return r == ' ' || r == 0
	})
	if len(cleaned) != 1 {
		return SentinelMode, Decoded{Value: SentinelMode.String(), FellBack: true, Reason: "mode field is not a single character"}
	}
	mode := model.DataMode(cleaned[0])
	if !mode.Valid() {
		return SentinelMode, Decoded{Value: SentinelMode.String(), FellBack: true, Reason: "unrecognized mode " + cleaned}
	}
	return mode, Decoded{Value: cleaned}
}
