package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/civicsignal/civicsignal/internal/config"
	"github.com/civicsignal/civicsignal/internal/exporter"
	"github.com/civicsignal/civicsignal/internal/fusion"
	"github.com/civicsignal/civicsignal/internal/intel"
	"github.com/civicsignal/civicsignal/internal/logging"
	"github.com/civicsignal/civicsignal/internal/notifier"
	"github.com/civicsignal/civicsignal/internal/pipeline"
	"github.com/civicsignal/civicsignal/internal/queue"
	"github.com/civicsignal/civicsignal/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run [stage]",
	Short: "Run one pipeline stage",
	Long: `Run a single pipeline stage as a long-lived process.

Stages:
  ingest   consume raw records, persist them, hand off to normalization
  score    turn normalized records into scored events and enriched leads
  fuse     deduplicate events before export
  export   append fused leads to per-city NDJSON files

Examples:
  civicsignal run ingest
  civicsignal run score --config civicsignal.yaml
  CIVICSIGNAL_REDIS_URL=redis://redis:6379/0 civicsignal run export`,
	Args: cobra.ExactArgs(1),
	RunE: runStage,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runStage(cmd *cobra.Command, args []string) error {
	stage := args[0]
	switch stage {
	case pipeline.StageIngest, pipeline.StageScore, pipeline.StageFuse, pipeline.StageExport:
	default:
		return fmt.Errorf("unknown stage %q (expected ingest, score, fuse or export)", stage)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	logging.SetDefault(logger)

	slog.Info("starting stage process",
		logging.Stage(stage),
		slog.String("namespace", cfg.Namespace),
		slog.String("log_level", cfg.Log.Level),
		slog.String("log_format", cfg.Log.Format),
	)

	// Metrics and health listener.
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})

		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			slog.Info("metrics listener started", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics listener failed", logging.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	ctx := context.Background()

	// The queue is the backbone; failing to reach it is fatal.
	q, err := queue.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer q.Close()
	keys := cfg.QueueKeys()

	// Storage backs ingest and score only.
	var store storage.Store
	if stage == pipeline.StageIngest || stage == pipeline.StageScore {
		store, err = openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	// DLQ alerting is optional; a dead NATS must not block the pipeline.
	var notify *notifier.Notifier
	if cfg.NATS.URL != "" {
		notify, err = notifier.Connect(notifier.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       cfg.NATS.Timeout,
		})
		if err != nil {
			slog.Warn("dlq alerts disabled", logging.Error(err))
		} else {
			defer notify.Close()
			slog.Info("dlq alerts enabled", slog.String("nats_url", cfg.NATS.URL))
		}
	}

	pc := cfg.StagePipeline(stage)
	opts := func(in, dlq string) pipeline.Options {
		return pipeline.Options{
			Queue:       q,
			In:          in,
			DLQ:         dlq,
			BatchSize:   pc.BatchSize,
			PollTimeout: pc.PollTimeout,
			Policy:      pc.Policy(),
			Logger:      logger,
			Notifier:    notify,
		}
	}

	var run func(context.Context) error
	switch stage {
	case pipeline.StageIngest:
		run = pipeline.NewIngest(opts(keys.Raw, keys.RawDLQ), store, keys.Normalize).Run
	case pipeline.StageScore:
		run = pipeline.NewScore(opts(keys.Score, keys.ScoreDLQ), store, intelProvider(cfg), keys.Fuse, cfg.Scoring.LeadWeeks).Run
	case pipeline.StageFuse:
		dedup := fusion.NewDeduper(q.Client(), cfg.Namespace, cfg.Fusion.DedupTTL)
		run = pipeline.NewFuse(opts(keys.Fuse, keys.FuseDLQ), dedup, keys.Export).Run
	case pipeline.StageExport:
		run = pipeline.NewExport(opts(keys.Export, keys.ExportDLQ), exporter.NewWriter(cfg.Export.Dir)).Run
	}

	// Graceful shutdown: cancel the stage context on SIGINT/SIGTERM and
	// let the loop finish its current envelope.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		slog.Info("shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("stage process stopped", logging.Stage(stage))
	return nil
}

// openStore selects the storage backend: Postgres when a DSN is
// configured, running migrations first, or the in-memory store for
// storage-less development runs.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Postgres.DSN == "" {
		slog.Warn("no postgres dsn configured, using in-memory storage")
		return storage.NewMemory(), nil
	}

	if err := storage.Migrate(cfg.Postgres.MigrationsURL, cfg.Postgres.DSN); err != nil {
		return nil, err
	}
	return storage.NewPostgres(ctx, cfg.Postgres.DSN)
}

// intelProvider selects the enrichment collaborator: the HTTP service
// when an endpoint is configured, the local heuristic otherwise.
func intelProvider(cfg *config.Config) intel.Provider {
	if cfg.Intel.Endpoint == "" {
		return intel.Heuristic{}
	}
	slog.Info("using http enrichment", slog.String("endpoint", cfg.Intel.Endpoint))
	return intel.NewHTTP(cfg.Intel.Endpoint, cfg.Intel.Timeout)
}
