// Package models defines the data shapes carried through the pipeline:
// raw civic records, their normalized form, the derived events and leads,
// and the queue envelope protocol that transports them.
package models

import "encoding/json"

// RawRecord is one record as produced by the extraction collaborator,
// before normalization. ID is the stable natural key within a
// (city, dataset) pair; Payload is the source row, kept opaque.
type RawRecord struct {
	ID        string          `json:"id"`
	City      string          `json:"city"`
	Dataset   string          `json:"dataset"`
	Watermark string          `json:"watermark,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NormalizedRecord is the canonical shape emitted by the normalization
// collaborator. The pipeline reads it but never mutates it. RawID points
// back at the RawRecord the normalizer consumed.
type NormalizedRecord struct {
	RawID        string  `json:"raw_id"`
	City         string  `json:"city"`
	Dataset      string  `json:"dataset"`
	BusinessName string  `json:"business_name,omitempty"`
	Address      string  `json:"address,omitempty"`
	Lat          float64 `json:"lat,omitempty"`
	Lon          float64 `json:"lon,omitempty"`
	Status       string  `json:"status,omitempty"`
	EventDate    string  `json:"event_date,omitempty"`
	Type         string  `json:"type,omitempty"`
	Description  string  `json:"description,omitempty"`
	SourceLink   string  `json:"source_link,omitempty"`
}
