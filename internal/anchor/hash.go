// Package anchor fingerprints confirmed violations and submits the hash to a
// ledger for tamper-evident timestamping.
package anchor

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/terralens/audit-cli/internal/model"
)

// CanonicalPayload renders the evidence fields in the fixed order the hash is
// computed over: lat,lng|timestamp|law_section|confidence. Coordinates and
// confidence use the shortest round-trip decimal form, so the payload is
// byte-stable for a given input.
func CanonicalPayload(lat, lng float64, timestampMs int64, lawSection string, confidence float64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(lat, 'f', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(lng, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(timestampMs, 10))
	b.WriteByte('|')
	b.WriteString(lawSection)
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(confidence, 'f', -1, 64))
	return b.String()
}

// Fingerprint builds the evidence record for a confirmed violation. The hash
// is sha256 over the canonical payload, 0x-prefixed lowercase hex.
func Fingerprint(lat, lng float64, timestampMs int64, verdict model.LegalVerdict, confidence float64) model.EvidenceRecord {
	payload := CanonicalPayload(lat, lng, timestampMs, verdict.Section, confidence)
	sum := sha256.Sum256([]byte(payload))
	return model.EvidenceRecord{
		Hash:        "0x" + hex.EncodeToString(sum[:]),
		TimestampMs: timestampMs,
		Metadata:    payload,
	}
}
