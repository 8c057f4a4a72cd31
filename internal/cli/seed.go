package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/civicsignal/civicsignal/internal/config"
	"github.com/civicsignal/civicsignal/internal/logging"
	"github.com/civicsignal/civicsignal/internal/queue"
	"github.com/civicsignal/civicsignal/internal/seeder"
)

var (
	seedCount    int
	seedCity     string
	seedDatasets string
	seedSpread   string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Push synthetic raw records onto the raw queue",
	Long: `Generate fake open-data records and push them onto the raw queue,
standing in for the extractors during development and load testing.

Examples:
  civicsignal seed --count 500
  civicsignal seed --datasets building_permits,food_inspections
  civicsignal seed --count 10000 --spread 7d`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVarP(&seedCount, "count", "c", seeder.DefaultCount, "number of records to generate")
	seedCmd.Flags().StringVar(&seedCity, "city", "chicago", "city stamped on generated records")
	seedCmd.Flags().StringVar(&seedDatasets, "datasets", "", "comma-separated datasets (default: all)")
	seedCmd.Flags().StringVarP(&seedSpread, "spread", "s", "", "spread watermarks over a window (e.g. 24h, 7d)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, q, err := connectQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	opts := seeder.Options{
		City:  seedCity,
		Count: seedCount,
	}
	if seedDatasets != "" {
		for _, d := range strings.Split(seedDatasets, ",") {
			opts.Datasets = append(opts.Datasets, strings.TrimSpace(d))
		}
	}
	if seedSpread != "" {
		spread, err := parseSpread(seedSpread)
		if err != nil {
			return fmt.Errorf("invalid spread: %w", err)
		}
		opts.Spread = spread
	}

	rawKey := cfg.QueueKeys().Raw
	runner := seeder.NewRunner(q, rawKey, logging.Default())

	pushed, err := runner.Run(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("seeding stopped after %d records: %w", pushed, err)
	}

	color.New(color.FgGreen, color.Bold).Printf("✓ pushed %d records to %s\n", pushed, rawKey)
	return nil
}

// parseSpread parses durations like "90m", "24h" or "7d".
func parseSpread(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(strings.TrimSuffix(s, "d"), "%d", &days); err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// connectQueue loads configuration and opens the Redis connection shared
// by the operator commands.
func connectQueue() (*config.Config, *queue.Queue, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	q, err := queue.Connect(context.Background(), cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	return cfg, q, nil
}
