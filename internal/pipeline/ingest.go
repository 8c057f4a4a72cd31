package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/civicsignal/civicsignal/internal/logging"
	"github.com/civicsignal/civicsignal/internal/metrics"
	"github.com/civicsignal/civicsignal/internal/models"
	"github.com/civicsignal/civicsignal/internal/storage"
)

var errMissingNaturalKey = errors.New("raw record has no id")

// Ingest consumes raw-record envelopes, persists each record idempotently
// and hands it to the normalization collaborator. It is the only stage
// that accepts two wire shapes: wrapped envelopes and the bare records
// older extractors still push.
type Ingest struct {
	*runner
	store storage.Store
	out   string
}

// NewIngest builds the ingest stage. normalizeQueue is where accepted
// records are forwarded.
func NewIngest(opts Options, store storage.Store, normalizeQueue string) *Ingest {
	return &Ingest{
		runner: newRunner(StageIngest, opts),
		store:  store,
		out:    normalizeQueue,
	}
}

// Run consumes the raw queue until ctx is cancelled.
func (s *Ingest) Run(ctx context.Context) error {
	return s.run(ctx, s.processOne)
}

func (s *Ingest) processOne(ctx context.Context, msg []byte) error {
	env, err := models.DecodeRawEnvelope(msg)
	if err != nil {
		s.deadLetterBytes(ctx, msg, models.ReasonInvalidRecord, err.Error())
		return err
	}

	rec := env.Record
	if rec.ID == "" {
		s.deadLetterBytes(ctx, msg, models.ReasonInvalidRecord, errMissingNaturalKey.Error())
		return errMissingNaturalKey
	}

	if err := s.store.UpsertRaw(ctx, rec); err != nil {
		return s.retry(ctx, env, err)
	}
	if err := s.queue.PushJSON(ctx, s.out, &models.NormalizeEnvelope{Raw: rec}); err != nil {
		return s.retry(ctx, env, err)
	}

	metrics.Processed.WithLabelValues(s.stage, metrics.ResultOK).Inc()
	s.log.Debug("record ingested",
		slog.String(logging.FieldRecordID, rec.ID),
		slog.String(logging.FieldCity, rec.City),
		slog.String("dataset", rec.Dataset),
	)
	return nil
}
