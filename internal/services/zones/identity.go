package zones

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"

	"TriggerDesk/internal/domain/models"
)

// StableKey returns the zone id, or a content hash over tf, kind and the
// bounds rounded to cents when no id was supplied.
func StableKey(z models.Zone) string {
	if id := strings.TrimSpace(z.ID); id != "" {
		return id
	}
	return ContentHash(z)
}

func ContentHash(z models.Zone) string {
	parts := []string{
		canonicalTF(z.Timeframe),
		strings.ToUpper(string(z.Kind)),
		round2(z.Hi),
		round2(z.Lo),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "z_" + hex.EncodeToString(sum[:8])
}

func round2(v float64) string {
	return decimal.NewFromFloat(v).Round(2).StringFixed(2)
}

// canonicalTF maps timeframe aliases to one spelling; unknown labels are lowercased.
func canonicalTF(s string) string {
	if tf, ok := models.ParseTimeframe(s); ok {
		return string(tf)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// RequestTimeframe maps the requested timeframe to the zone library timeframe.
// Daily requests read the 4h library.
func RequestTimeframe(s string) string {
	tf := canonicalTF(s)
	if tf == string(models.TF1d) {
		return string(models.TF4h)
	}
	return tf
}
