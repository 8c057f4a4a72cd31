// Package storage persists raw records, events and leads. Every write is
// idempotent: the pipeline retries whole processing sequences and may
// deliver the same message more than once, so repeating a call with the
// same key must never produce a duplicate row.
package storage

import (
	"context"
	"errors"

	"github.com/civicsignal/civicsignal/internal/models"
)

// ErrNotFound is returned by lookups for keys that were never stored.
var ErrNotFound = errors.New("storage: not found")

// Store is the persistence interface consumed by the ingest and score
// stages.
type Store interface {
	// UpsertRaw inserts a raw record or, when the natural key already
	// exists, refreshes its watermark and payload.
	UpsertRaw(ctx context.Context, rec *models.RawRecord) error
	// InsertEvent stores an event; a repeated event_id is a no-op.
	InsertEvent(ctx context.Context, ev *models.Event) error
	// InsertLead stores a lead; a repeated lead_id is a no-op.
	InsertLead(ctx context.Context, lead *models.Lead) error
	// Close releases the underlying resources.
	Close()
}
