package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// DestinationSystem is the fixed destination recorded for every event.
const DestinationSystem = "system"

// canonical field order is fixed by the struct layout.
type canonicalFields struct {
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	SourceIP      string `json:"sourceIP"`
	DestinationIP string `json:"destinationIP"`
	Timestamp     string `json:"timestamp"`
}

func canonicalOf(e Event) canonicalFields {
	return canonicalFields{
		Type:          string(e.Action),
		Severity:      string(SeverityOf(e.Action, e.Status)),
		SourceIP:      e.SourceIP,
		DestinationIP: DestinationSystem,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// CanonicalHash returns the hex SHA-256 of the event's hash-relevant fields. Details,
// actor, user agent and platform do not contribute.
func CanonicalHash(e Event) string {
	raw, _ := json.Marshal(canonicalOf(e))
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// snapshot is the details payload stored alongside the anchor.
func snapshot(e Event) string {
	raw, _ := json.Marshal(canonicalOf(e))
	return string(raw)
}
