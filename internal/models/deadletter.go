package models

import (
	"encoding/json"
	"time"
)

// Dead-letter reasons. invalid_record and invalid_normalized mark
// structurally bad input that is never retried; retries_exhausted marks
// envelopes that used up their retry budget.
const (
	ReasonInvalidRecord     = "invalid_record"
	ReasonInvalidNormalized = "invalid_normalized"
	ReasonInvalidEnvelope   = "invalid_envelope"
	ReasonRetriesExhausted  = "retries_exhausted"
)

// DeadLetter is the terminal wrapper pushed onto a stage's DLQ. It is
// never consumed by the pipeline again; operators inspect and drain DLQs
// by hand. Envelope carries the original message when it was valid JSON,
// Raw carries it verbatim otherwise.
type DeadLetter struct {
	Envelope   json.RawMessage `json:"envelope,omitempty"`
	Raw        string          `json:"raw,omitempty"`
	Stage      string          `json:"stage"`
	Reason     string          `json:"reason"`
	Error      string          `json:"error,omitempty"`
	RetryCount int             `json:"retryCount,omitempty"`
	At         time.Time       `json:"at"`
}

// NewDeadLetter builds a DLQ entry from the original message bytes.
func NewDeadLetter(stage, reason, errMsg string, msg []byte) *DeadLetter {
	dl := &DeadLetter{
		Stage:  stage,
		Reason: reason,
		Error:  errMsg,
		At:     time.Now().UTC(),
	}
	if json.Valid(msg) {
		dl.Envelope = json.RawMessage(msg)
	} else {
		dl.Raw = string(msg)
	}
	return dl
}
