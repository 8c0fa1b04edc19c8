// Command defects files, refreshes and closes tracker defects from test
// outcomes, and exposes the fingerprint codec and data-set merger for
// inspection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/defects/internal/config"
	"github.com/steveyegge/defects/internal/logging"
	"github.com/steveyegge/defects/internal/telemetry"
)

var (
	configFile  string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "defects",
	Short: "defects - fingerprint-matched defect lifecycle for automated tests",
	Long: `Files a defect when a test fails, refreshes it when the same failure recurs,
closes duplicates, and closes the defect once the test passes again.

A failure is recognized by its fingerprint: driver, capabilities, options,
data-source row and iteration, rendered into the defect description.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Initialize(configFile); err != nil {
			return err
		}
		if cmd.Flags().Changed("json") {
			config.Set(config.KeyJSON, jsonOutput)
		}
		jsonOutput = config.GetBool(config.KeyJSON)

		logging.SetQuiet(quietFlag)
		logging.Init(logging.Level(verboseFlag, quietFlag), config.GetString(config.KeyLogFormat))

		if err := telemetry.Init(cmd.Context(), "defects", Version); err != nil {
			logging.New("cli").Warn("telemetry disabled", "error", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		telemetry.Shutdown(context.WithoutCancel(cmd.Context()))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: nearest .defects/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.AddGroup(&cobra.Group{ID: "lifecycle", Title: "Defect Lifecycle:"})
	rootCmd.AddGroup(&cobra.Group{ID: "inspect", Title: "Fingerprints & Data:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if jsonOutput {
			outputJSONError(os.Stderr, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
