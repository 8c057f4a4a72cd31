package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/civicsignal/civicsignal/internal/models"
	"github.com/civicsignal/civicsignal/internal/pipeline"
	"github.com/civicsignal/civicsignal/internal/queue"
)

// stageOrder fixes the display order for DLQ tooling.
var stageOrder = []string{
	pipeline.StageIngest,
	pipeline.StageScore,
	pipeline.StageFuse,
	pipeline.StageExport,
}

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and drain dead-letter queues",
	Long: `Operator tooling for the per-stage dead-letter queues. Nothing in
the pipeline consumes a DLQ; entries stay until inspected and drained here.`,
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the depth of every dead-letter queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, q, err := connectQueue()
		if err != nil {
			return err
		}
		defer q.Close()

		keys := cfg.QueueKeys()
		ctx := context.Background()

		color.New(color.Bold).Printf("%-8s  %-28s  %s\n", "STAGE", "QUEUE", "DEPTH")
		var total int64
		for _, stage := range stageOrder {
			key := keys.DLQs()[stage]
			n, err := q.Len(ctx, key)
			if err != nil {
				return err
			}
			line := fmt.Sprintf("%-8s  %-28s  %d\n", stage, key, n)
			if n > 0 {
				color.New(color.FgRed).Print(line)
			} else {
				fmt.Print(line)
			}
			total += n
		}

		fmt.Println()
		if total == 0 {
			color.New(color.FgGreen).Println("all dead-letter queues are empty")
		} else {
			color.New(color.FgYellow).Printf("%d entries waiting for inspection\n", total)
		}
		return nil
	},
}

var dlqListLimit int

var dlqListCmd = &cobra.Command{
	Use:   "list [stage]",
	Short: "Peek at the entries on a stage's dead-letter queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, q, err := connectQueue()
		if err != nil {
			return err
		}
		defer q.Close()

		key, ok := cfg.QueueKeys().DLQs()[args[0]]
		if !ok {
			return fmt.Errorf("unknown stage %q (expected ingest, score, fuse or export)", args[0])
		}

		ctx := context.Background()
		msgs, err := q.Peek(ctx, key, int64(dlqListLimit))
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Printf("%s is empty\n", key)
			return nil
		}

		for i, msg := range msgs {
			var dl models.DeadLetter
			if err := json.Unmarshal(msg, &dl); err != nil {
				fmt.Printf("%3d. (unparseable) %s\n", i+1, truncate(string(msg), 120))
				continue
			}

			color.New(color.FgYellow, color.Bold).Printf("%3d. %s", i+1, dl.Reason)
			fmt.Printf("  retry_count=%d  at=%s\n", dl.RetryCount, dl.At.Format(time.RFC3339))
			if dl.Error != "" {
				fmt.Printf("     error: %s\n", dl.Error)
			}
			payload := string(dl.Envelope)
			if payload == "" {
				payload = dl.Raw
			}
			fmt.Printf("     payload: %s\n", truncate(payload, 160))
		}
		return nil
	},
}

var dlqDrainLimit int

var dlqDrainCmd = &cobra.Command{
	Use:   "drain [stage]",
	Short: "Remove entries from a stage's dead-letter queue",
	Long: `Pop entries from a stage's dead-letter queue and print them to stdout
as NDJSON, one entry per line, so they can be captured for later replay:

  civicsignal dlq drain score > score-dlq.ndjson

Without --limit the queue is drained completely. Drained entries are
removed from Redis; redirect stdout if you want to keep them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, q, err := connectQueue()
		if err != nil {
			return err
		}
		defer q.Close()

		key, ok := cfg.QueueKeys().DLQs()[args[0]]
		if !ok {
			return fmt.Errorf("unknown stage %q (expected ingest, score, fuse or export)", args[0])
		}

		ctx := context.Background()
		drained := 0
		for dlqDrainLimit <= 0 || drained < dlqDrainLimit {
			msg, err := q.Pop(ctx, key)
			if err != nil {
				if errors.Is(err, queue.ErrEmpty) {
					break
				}
				return err
			}
			fmt.Println(string(msg))
			drained++
		}

		color.New(color.FgGreen, color.Bold).Fprintf(os.Stderr, "✓ drained %d entries from %s\n", drained, key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqStatsCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqDrainCmd)

	dlqListCmd.Flags().IntVarP(&dlqListLimit, "limit", "n", 10, "maximum entries to show")
	dlqDrainCmd.Flags().IntVarP(&dlqDrainLimit, "limit", "n", 0, "maximum entries to drain (0 = all)")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
