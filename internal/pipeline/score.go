package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/civicsignal/civicsignal/internal/intel"
	"github.com/civicsignal/civicsignal/internal/logging"
	"github.com/civicsignal/civicsignal/internal/metrics"
	"github.com/civicsignal/civicsignal/internal/models"
	"github.com/civicsignal/civicsignal/internal/scoring"
	"github.com/civicsignal/civicsignal/internal/storage"
)

var errMissingRawID = errors.New("normalized record has no raw_id backreference")

// Score consumes normalized records, derives a scored event and an
// enriched lead from each, persists both and forwards them to fusion.
type Score struct {
	*runner
	store     storage.Store
	intel     intel.Provider
	out       string
	leadWeeks int
}

// NewScore builds the score stage. fuseQueue is where event/lead pairs
// are forwarded; leadWeeks is the opening-week projection horizon.
func NewScore(opts Options, store storage.Store, provider intel.Provider, fuseQueue string, leadWeeks int) *Score {
	return &Score{
		runner:    newRunner(StageScore, opts),
		store:     store,
		intel:     provider,
		out:       fuseQueue,
		leadWeeks: leadWeeks,
	}
}

// Run consumes the score queue until ctx is cancelled.
func (s *Score) Run(ctx context.Context) error {
	return s.run(ctx, s.processOne)
}

func (s *Score) processOne(ctx context.Context, msg []byte) error {
	var env models.ScoreEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.deadLetterBytes(ctx, msg, models.ReasonInvalidNormalized, err.Error())
		return err
	}
	rec := env.Normalized
	if rec == nil || rec.RawID == "" {
		s.deadLetterBytes(ctx, msg, models.ReasonInvalidNormalized, errMissingRawID.Error())
		return errMissingRawID
	}

	ev, lead, err := s.build(ctx, rec)
	if err != nil {
		return s.retry(ctx, &env, err)
	}
	if err := s.queue.PushJSON(ctx, s.out, &models.FuseEnvelope{Event: ev, Lead: lead}); err != nil {
		return s.retry(ctx, &env, err)
	}

	metrics.Processed.WithLabelValues(s.stage, metrics.ResultOK).Inc()
	s.log.Debug("record scored",
		slog.String(logging.FieldEventID, ev.EventID),
		slog.String(logging.FieldLeadID, lead.LeadID),
		slog.Int("signal_strength", ev.SignalStrength),
	)
	return nil
}

// build runs the score-persist-enrich sequence as one retryable unit.
// Identifiers derive from the raw backreference before the first write,
// so a retried sequence reuses them and the insert-or-ignore storage
// keeps a single row per record.
func (s *Score) build(ctx context.Context, rec *models.NormalizedRecord) (*models.Event, *models.Lead, error) {
	now := time.Now().UTC()

	ev := &models.Event{
		EventID:           models.EventID(rec.RawID),
		City:              rec.City,
		Address:           rec.Address,
		Name:              rec.BusinessName,
		PredictedOpenWeek: scoring.PredictedOpenWeek(rec, s.leadWeeks),
		SignalStrength:    scoring.SignalStrength(rec),
		Evidence:          []models.NormalizedRecord{*rec},
		CreatedAt:         now,
	}
	if err := s.store.InsertEvent(ctx, ev); err != nil {
		return nil, nil, err
	}

	lead := &models.Lead{
		LeadID:    models.LeadID(rec.RawID),
		City:      rec.City,
		Name:      rec.BusinessName,
		Address:   rec.Address,
		Score:     ev.SignalStrength,
		Evidence:  []models.Event{*ev},
		CreatedAt: now,
	}

	var intelligence json.RawMessage
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		intelligence, err = s.intel.Enrich(ctx, lead)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to enrich lead %s: %w", lead.LeadID, err)
	}
	lead.Intelligence = intelligence

	if err := s.store.InsertLead(ctx, lead); err != nil {
		return nil, nil, err
	}
	return ev, lead, nil
}
