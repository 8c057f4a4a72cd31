// Package cli wires the civicsignal binary: stage processes, the seeder,
// schema migrations and the operator tooling for dead-letter queues.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags.
var Version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "civicsignal",
	Short: "CivicSignal lead pipeline",
	Long: `civicsignal runs the stages of the CivicSignal pipeline: civic
open-data records in, scored and deduplicated business-opening leads out.

Each stage (ingest, score, fuse, export) runs as its own process and
communicates with the others through Redis queues, so stages can be
deployed, scaled and restarted independently.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment and built-in defaults)")
}
