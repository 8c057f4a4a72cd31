package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Queue envelopes wrap a payload with retry bookkeeping. RetryCount starts
// at 0 and is incremented exactly once per failed delivery attempt; only
// the consuming stage stamps the counter and LastError before re-enqueue.

// RawEnvelope travels on the raw queue and is consumed by the ingest stage.
type RawEnvelope struct {
	Record     *RawRecord `json:"record"`
	RetryCount int        `json:"retryCount"`
	LastError  string     `json:"lastError,omitempty"`
}

// NormalizeEnvelope is the hand-off from ingest to the external
// normalization collaborator.
type NormalizeEnvelope struct {
	Raw        *RawRecord `json:"raw"`
	RetryCount int        `json:"retryCount"`
	LastError  string     `json:"lastError,omitempty"`
}

// ScoreEnvelope travels on the score queue and is consumed by the score
// stage.
type ScoreEnvelope struct {
	Normalized *NormalizedRecord `json:"normalized"`
	RetryCount int               `json:"retryCount"`
	LastError  string            `json:"lastError,omitempty"`
}

// FuseEnvelope travels on both the fuse and export queues.
type FuseEnvelope struct {
	Event      *Event `json:"event"`
	Lead       *Lead  `json:"lead"`
	RetryCount int    `json:"retryCount"`
	LastError  string `json:"lastError,omitempty"`
}

// Stamp records a failed delivery attempt and returns the new retry count.
func (e *RawEnvelope) Stamp(lastError string) int {
	e.RetryCount++
	e.LastError = lastError
	return e.RetryCount
}

// Stamp records a failed delivery attempt and returns the new retry count.
func (e *ScoreEnvelope) Stamp(lastError string) int {
	e.RetryCount++
	e.LastError = lastError
	return e.RetryCount
}

// Stamp records a failed delivery attempt and returns the new retry count.
func (e *FuseEnvelope) Stamp(lastError string) int {
	e.RetryCount++
	e.LastError = lastError
	return e.RetryCount
}

// ErrNotRawRecord reports a raw-queue message that is neither a wrapped
// envelope nor a bare record.
var ErrNotRawRecord = errors.New("message is neither an envelope nor a raw record")

// DecodeRawEnvelope decodes a raw-queue message. Producers historically
// pushed bare RawRecord objects; newer producers wrap them in an envelope.
// Both forms are accepted here, once, at the ingress boundary: a bare
// record is normalized to an envelope with RetryCount 0.
func DecodeRawEnvelope(data []byte) (*RawEnvelope, error) {
	var env RawEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Record != nil {
		return &env, nil
	}

	var rec RawRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode raw message: %w", err)
	}
	if rec.ID == "" && rec.City == "" && rec.Dataset == "" {
		return nil, ErrNotRawRecord
	}
	return &RawEnvelope{Record: &rec}, nil
}
