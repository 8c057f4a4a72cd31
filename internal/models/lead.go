package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Event is a scored business-opening signal derived from a normalized
// record. Evidence holds the records that support it; the score stage
// creates events with exactly one evidence entry.
type Event struct {
	EventID           string             `json:"event_id"`
	City              string             `json:"city"`
	Address           string             `json:"address,omitempty"`
	Name              string             `json:"name,omitempty"`
	PredictedOpenWeek string             `json:"predicted_open_week"`
	SignalStrength    int                `json:"signal_strength"`
	Evidence          []NormalizedRecord `json:"evidence"`
	CreatedAt         time.Time          `json:"created_at"`
}

// Lead is the sellable output of the pipeline: one prospective customer
// with a score and opaque enrichment from the intelligence collaborator.
type Lead struct {
	LeadID       string          `json:"lead_id"`
	City         string          `json:"city"`
	Name         string          `json:"name,omitempty"`
	Address      string          `json:"address,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Email        string          `json:"email,omitempty"`
	Score        int             `json:"score"`
	Intelligence json.RawMessage `json:"intelligence,omitempty"`
	Evidence     []Event         `json:"evidence"`
	CreatedAt    time.Time       `json:"created_at"`
}

// EventID derives the stable event identifier for a raw record
// backreference. Identifiers are fixed before the first persistence
// attempt so retried attempts cannot mint duplicates.
func EventID(rawID string) string {
	return "evt_" + ShortHash(rawID)
}

// LeadID derives the stable lead identifier for a raw record backreference.
func LeadID(rawID string) string {
	return "lead_" + ShortHash(rawID)
}

// ShortHash returns the first 16 hex characters of the SHA-256 of s.
func ShortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
