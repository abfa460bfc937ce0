package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// normalizeKey lowercases and trims a payload key for alias resolution.
func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeValue canonicalizes a submission value for fingerprinting:
// trimmed, lowercased, empty for missing.
func NormalizeValue(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Fingerprint derives a stable duplicate-detection key from the identifying
// submission fields. Two submissions differing only in whitespace or case
// produce the same fingerprint.
func Fingerprint(in ReportIn) string {
	dt := ""
	if in.EventDatetime != nil {
		dt = in.EventDatetime.UTC().Format("2006-01-02T15:04:05Z")
	}
	parts := []string{
		NormalizeValue(in.HospitalID),
		dt,
		NormalizeValue(in.DeviceName),
		NormalizeValue(in.Model),
		NormalizeValue(in.LotSN),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
