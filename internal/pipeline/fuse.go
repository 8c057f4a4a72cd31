package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/civicsignal/civicsignal/internal/fusion"
	"github.com/civicsignal/civicsignal/internal/logging"
	"github.com/civicsignal/civicsignal/internal/metrics"
	"github.com/civicsignal/civicsignal/internal/models"
)

var errIncompleteFusePair = errors.New("envelope is missing its event or lead")

// Fuse consumes scored event/lead pairs and deduplicates them on the
// fusion key before export. The first pair to claim a key is forwarded;
// later pairs with the same key are dropped silently for the TTL window.
type Fuse struct {
	*runner
	dedup *fusion.Deduper
	out   string
}

// NewFuse builds the fuse stage. exportQueue is where first-seen pairs
// are forwarded.
func NewFuse(opts Options, dedup *fusion.Deduper, exportQueue string) *Fuse {
	return &Fuse{
		runner: newRunner(StageFuse, opts),
		dedup:  dedup,
		out:    exportQueue,
	}
}

// Run consumes the fuse queue until ctx is cancelled.
func (s *Fuse) Run(ctx context.Context) error {
	return s.run(ctx, s.processOne)
}

func (s *Fuse) processOne(ctx context.Context, msg []byte) error {
	var env models.FuseEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.deadLetterBytes(ctx, msg, models.ReasonInvalidEnvelope, err.Error())
		return err
	}
	if env.Event == nil || env.Lead == nil {
		s.deadLetterBytes(ctx, msg, models.ReasonInvalidEnvelope, errIncompleteFusePair.Error())
		return errIncompleteFusePair
	}

	key := fusion.Key(env.Event)
	first, err := s.dedup.Claim(ctx, key, env.Event.EventID)
	if err != nil {
		return s.retry(ctx, &env, err)
	}
	if !first {
		// A key held by our own event id means an earlier attempt claimed
		// it and then failed to forward; only a foreign owner is a
		// genuine duplicate.
		owner, err := s.dedup.Owner(ctx, key)
		if err != nil {
			return s.retry(ctx, &env, err)
		}
		if owner != env.Event.EventID {
			metrics.Processed.WithLabelValues(s.stage, metrics.ResultDuplicate).Inc()
			s.addStat(func(st *Stats) { st.Duplicates++ })
			s.log.Debug("duplicate event dropped",
				slog.String("fusion_key", key),
				slog.String(logging.FieldEventID, env.Event.EventID),
			)
			return nil
		}
	}

	if err := s.queue.PushJSON(ctx, s.out, &models.FuseEnvelope{Event: env.Event, Lead: env.Lead}); err != nil {
		return s.retry(ctx, &env, err)
	}

	metrics.Processed.WithLabelValues(s.stage, metrics.ResultOK).Inc()
	s.log.Debug("event forwarded to export",
		slog.String("fusion_key", key),
		slog.String(logging.FieldEventID, env.Event.EventID),
	)
	return nil
}
