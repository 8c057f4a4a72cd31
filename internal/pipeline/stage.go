// Package pipeline implements the four queue-consuming stages: ingest,
// score, fuse and export.
//
// Every stage follows the same discipline: blocking-pop one envelope from
// its queue (bounded by the poll timeout so shutdown stays responsive),
// drain up to batch-size-1 more without blocking, then process the batch
// strictly in order. Malformed input dead-letters immediately with the
// retry counter untouched; transient failures stamp the envelope, sleep
// and re-push it to the tail of the same queue; an envelope that exceeds
// its retry budget dead-letters with the accumulated count and last error.
//
// A stage runs as one single-threaded loop per process. Scaling out means
// running more processes competing on the same queue. An envelope popped
// but not fully processed when the process dies is lost; the transport
// does not track deliveries.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicsignal/civicsignal/internal/backoff"
	"github.com/civicsignal/civicsignal/internal/logging"
	"github.com/civicsignal/civicsignal/internal/metrics"
	"github.com/civicsignal/civicsignal/internal/models"
	"github.com/civicsignal/civicsignal/internal/notifier"
	"github.com/civicsignal/civicsignal/internal/queue"
)

// Stage names used in queue keys, logs, metrics and alert subjects.
const (
	StageIngest = "ingest"
	StageScore  = "score"
	StageFuse   = "fuse"
	StageExport = "export"
)

// Defaults applied when Options fields are zero.
const (
	DefaultBatchSize   = 10
	DefaultPollTimeout = 5 * time.Second
)

// Options configure one stage runner.
type Options struct {
	Queue       *queue.Queue
	In          string
	DLQ         string
	BatchSize   int
	PollTimeout time.Duration
	Policy      backoff.Policy
	Logger      *logging.Logger
	Notifier    *notifier.Notifier
}

// Stats is a snapshot of one runner's counters. Counters live on the
// runner, not in package state, so tests get a fresh zero set with every
// stage they construct.
type Stats struct {
	Processed    uint64
	Succeeded    uint64
	Retried      uint64
	DeadLettered uint64
	Duplicates   uint64
}

// envelope is the retry bookkeeping surface shared by the queue envelope
// types.
type envelope interface {
	Stamp(lastError string) int
}

// runner carries the loop mechanics shared by the four stages.
type runner struct {
	stage  string
	queue  *queue.Queue
	in     string
	dlq    string
	batch  int
	poll   time.Duration
	policy backoff.Policy
	log    *logging.Logger
	notify *notifier.Notifier
	worker string

	mu    sync.Mutex
	stats Stats
}

func newRunner(stage string, opts Options) *runner {
	worker := uuid.NewString()[:8]

	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	poll := opts.PollTimeout
	if poll <= 0 {
		poll = DefaultPollTimeout
	}

	return &runner{
		stage:  stage,
		queue:  opts.Queue,
		in:     opts.In,
		dlq:    opts.DLQ,
		batch:  batch,
		poll:   poll,
		policy: opts.Policy,
		log:    log.With(logging.Stage(stage), logging.Worker(worker)),
		notify: opts.Notifier,
		worker: worker,
	}
}

// run drives the stage loop until ctx is cancelled. processOne returns
// nil when a message reached a terminal success, including a silent
// duplicate drop.
func (r *runner) run(ctx context.Context, processOne func(context.Context, []byte) error) error {
	r.log.Info("stage started",
		logging.Queue(r.in),
		slog.Int(logging.FieldBatchSize, r.batch),
		slog.Duration("poll_timeout", r.poll),
	)

	for {
		if err := ctx.Err(); err != nil {
			r.log.Info("stage stopped")
			return err
		}

		batch, err := r.fetchBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.log.Error("failed to fetch batch", logging.Error(err))
			backoff.Sleep(ctx, r.poll)
			continue
		}
		if len(batch) == 0 {
			continue
		}

		succeeded := 0
		for _, msg := range batch {
			start := time.Now()
			err := processOne(ctx, msg)
			metrics.ProcessDuration.WithLabelValues(r.stage).Observe(time.Since(start).Seconds())

			r.addStat(func(s *Stats) {
				s.Processed++
				if err == nil {
					s.Succeeded++
				}
			})
			if err == nil {
				succeeded++
			}
			if ctx.Err() != nil {
				break
			}
		}

		metrics.BatchSize.WithLabelValues(r.stage).Observe(float64(len(batch)))
		r.log.Info("batch processed",
			slog.Int(logging.FieldBatchSize, len(batch)),
			slog.Int(logging.FieldSucceeded, succeeded),
		)
	}
}

// fetchBatch blocks for one message, then drains the queue non-blocking
// until the batch is full or the queue is empty.
func (r *runner) fetchBatch(ctx context.Context) ([][]byte, error) {
	msg, err := r.queue.BlockingPop(ctx, r.in, r.poll)
	if errors.Is(err, queue.ErrEmpty) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	batch := [][]byte{msg}
	for len(batch) < r.batch {
		m, err := r.queue.Pop(ctx, r.in)
		if errors.Is(err, queue.ErrEmpty) {
			break
		}
		if err != nil {
			// Process what we already hold rather than dropping it.
			r.log.Warn("failed to drain batch", logging.Error(err))
			break
		}
		batch = append(batch, m)
	}
	return batch, nil
}

// retry handles a transient failure: stamp the envelope, and either
// dead-letter it when the budget is spent or sleep the backoff delay and
// re-push it to the tail of the stage's own queue. The sleep blocks only
// this loop; other consumers of the queue keep running.
func (r *runner) retry(ctx context.Context, env envelope, cause error) error {
	count := env.Stamp(cause.Error())
	if count > r.policy.MaxRetries {
		r.deadLetterEnvelope(ctx, env, count, models.ReasonRetriesExhausted, cause.Error())
		return cause
	}

	metrics.Processed.WithLabelValues(r.stage, metrics.ResultRetried).Inc()
	r.addStat(func(s *Stats) { s.Retried++ })
	r.log.Warn("retrying envelope", logging.RetryCount(count), logging.Error(cause))

	if err := backoff.Sleep(ctx, r.policy.Delay(count)); err != nil {
		// Shutdown hit mid-sleep. The envelope is not requeued and is
		// lost, the documented at-least-once gap under abrupt stop.
		r.log.Warn("shutdown during retry sleep, envelope dropped", logging.RetryCount(count))
		return err
	}
	if err := r.queue.PushJSON(ctx, r.in, env); err != nil {
		r.log.Error("failed to requeue envelope", logging.Error(err))
		return err
	}
	return cause
}

// deadLetterBytes dead-letters a message that never decoded into an
// envelope. The retry counter, if any, stays untouched.
func (r *runner) deadLetterBytes(ctx context.Context, msg []byte, reason, errMsg string) {
	r.pushDeadLetter(ctx, models.NewDeadLetter(r.stage, reason, errMsg, msg))
}

// deadLetterEnvelope dead-letters a decoded envelope, typically after its
// retry budget ran out.
func (r *runner) deadLetterEnvelope(ctx context.Context, env any, retryCount int, reason, errMsg string) {
	data, err := json.Marshal(env)
	if err != nil {
		r.log.Error("failed to marshal envelope for dlq", logging.Error(err))
		data = nil
	}
	dl := models.NewDeadLetter(r.stage, reason, errMsg, data)
	dl.RetryCount = retryCount
	r.pushDeadLetter(ctx, dl)
}

func (r *runner) pushDeadLetter(ctx context.Context, dl *models.DeadLetter) {
	if err := r.queue.PushJSON(ctx, r.dlq, dl); err != nil {
		r.log.Error("failed to push dead letter",
			logging.Queue(r.dlq), logging.Reason(dl.Reason), logging.Error(err))
		return
	}

	metrics.DeadLettered.WithLabelValues(r.stage, dl.Reason).Inc()
	r.addStat(func(s *Stats) { s.DeadLettered++ })
	r.log.Warn("envelope dead-lettered",
		logging.Queue(r.dlq),
		logging.Reason(dl.Reason),
		logging.RetryCount(dl.RetryCount),
		slog.String(logging.FieldError, dl.Error),
	)

	if err := r.notify.DeadLettered(notifier.Alert{
		Worker:     r.worker,
		Stage:      r.stage,
		Queue:      r.dlq,
		Reason:     dl.Reason,
		Error:      dl.Error,
		RetryCount: dl.RetryCount,
		At:         dl.At,
	}); err != nil {
		r.log.Warn("failed to publish dlq alert", logging.Error(err))
	}
}

func (r *runner) addStat(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// Stats returns a snapshot of the runner's counters.
func (r *runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
