package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/civicsignal/civicsignal/internal/exporter"
	"github.com/civicsignal/civicsignal/internal/logging"
	"github.com/civicsignal/civicsignal/internal/metrics"
	"github.com/civicsignal/civicsignal/internal/models"
)

// Export consumes fused event/lead pairs and appends each as one NDJSON
// line to the city/day partition file.
type Export struct {
	*runner
	writer *exporter.Writer
}

// NewExport builds the export stage writing through w.
func NewExport(opts Options, w *exporter.Writer) *Export {
	return &Export{
		runner: newRunner(StageExport, opts),
		writer: w,
	}
}

// Run consumes the export queue until ctx is cancelled.
func (s *Export) Run(ctx context.Context) error {
	return s.run(ctx, s.processOne)
}

func (s *Export) processOne(ctx context.Context, msg []byte) error {
	var env models.FuseEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.deadLetterBytes(ctx, msg, models.ReasonInvalidEnvelope, err.Error())
		return err
	}
	if env.Event == nil || env.Lead == nil {
		s.deadLetterBytes(ctx, msg, models.ReasonInvalidEnvelope, errIncompleteFusePair.Error())
		return errIncompleteFusePair
	}

	path, err := s.writer.Append(env.Event.City, time.Now().UTC(), exporter.Line{
		Event: env.Event,
		Lead:  env.Lead,
	})
	if err != nil {
		return s.retry(ctx, &env, err)
	}

	metrics.ExportedLines.WithLabelValues(exporter.Slugify(env.Event.City)).Inc()
	metrics.Processed.WithLabelValues(s.stage, metrics.ResultOK).Inc()
	s.log.Debug("lead exported",
		slog.String(logging.FieldLeadID, env.Lead.LeadID),
		slog.String("path", path),
	)
	return nil
}
