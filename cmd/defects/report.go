package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/steveyegge/defects/internal/config"
	"github.com/steveyegge/defects/internal/jira"
	"github.com/steveyegge/defects/internal/lifecycle"
	"github.com/steveyegge/defects/internal/logging"
	"github.com/steveyegge/defects/internal/tracker"
	"github.com/steveyegge/defects/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:     "report <outcomes-file>",
	GroupID: "lifecycle",
	Short:   "File, refresh and close defects for a batch of test outcomes",
	Long: `Process the test outcomes in a YAML or JSON file:

  failed, no open defect matches   file a new defect linked to the test
  failed, an open defect matches   refresh its description and evidence
  passed, an open defect matches   close it as fixed

Matching open defects beyond the first are closed as duplicates. Test cases
are processed concurrently, bucket-size at a time.

Examples:
  defects report outcomes.yaml
  defects report outcomes.yaml --json`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

var closeCmd = &cobra.Command{
	Use:     "close <test-key> <fingerprint-file>",
	GroupID: "lifecycle",
	Short:   "Close the open defect a passing test no longer reproduces",
	Long: `Report a single passing outcome: the open defect whose fingerprint matches
is closed with the fixed resolution, and matching duplicates are closed too.

Examples:
  defects close QA-42 fp.yaml
  defects close QA-42 fp.yaml --data users.csv --iteration 1 --resolution "Cannot Reproduce"`,
	Args: cobra.ExactArgs(2),
	RunE: runClose,
}

func init() {
	reportCmd.Flags().Int("bucket-size", 0, "Test cases processed at once (default from config)")
	closeCmd.Flags().String("resolution", "", "Resolution to close with (default from config)")
	closeCmd.Flags().String("data", "", "Data file supplying the data-source row")
	closeCmd.Flags().Int("iteration", 0, "Data row of the passing run (with --data)")
	rootCmd.AddCommand(reportCmd, closeCmd)
}

// resultOutput is the JSON form of a lifecycle.Result.
type resultOutput struct {
	lifecycle.Result
	Error string `json:"error,omitempty"`
}

func runReport(cmd *cobra.Command, args []string) error {
	outcomes, err := lifecycle.LoadOutcomes(args[0])
	if err != nil {
		return err
	}
	for i := range outcomes {
		outcomes[i].TestKey = normalizeTestKey(outcomes[i].TestKey)
	}
	if n, _ := cmd.Flags().GetInt("bucket-size"); n > 0 {
		config.Set(config.KeyBucketSize, n)
	}
	return processOutcomes(cmd, outcomes)
}

func runClose(cmd *cobra.Command, args []string) error {
	fp, err := loadFingerprint(cmd, args[1])
	if err != nil {
		return err
	}
	resolution, _ := cmd.Flags().GetString("resolution")
	return processOutcomes(cmd, []lifecycle.Outcome{{
		TestKey:     normalizeTestKey(args[0]),
		Passed:      true,
		Fingerprint: fp,
		Resolution:  resolution,
	}})
}

func processOutcomes(cmd *cobra.Command, outcomes []lifecycle.Outcome) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	results := runManager(ctx, cmd, b, outcomes)
	stats := lifecycle.Summarize(results)

	out := cmd.OutOrStdout()
	if jsonOutput {
		rows := make([]resultOutput, len(results))
		for i, r := range results {
			rows[i] = resultOutput{Result: r}
			if r.Err != nil {
				rows[i].Error = r.Err.Error()
			}
		}
		if err := outputJSON(out, map[string]interface{}{"results": rows, "stats": stats}); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			fmt.Fprintln(out, ui.RenderResult(r))
		}
		if !logging.IsQuiet() {
			fmt.Fprintln(out, ui.RenderSeparator())
			fmt.Fprintln(out, ui.RenderStats(stats))
		}
	}

	if stats.Errors > 0 {
		return fmt.Errorf("%d of %d outcomes had errors", stats.Errors, len(results))
	}
	return nil
}

func runManager(ctx context.Context, cmd *cobra.Command, b tracker.Backend, outcomes []lifecycle.Outcome) []lifecycle.Result {
	m := lifecycle.New(b, b, config.Lifecycle(), logging.New("lifecycle"))
	if !jsonOutput && !logging.IsQuiet() {
		var mu sync.Mutex
		errOut := cmd.ErrOrStderr()
		say := func(line string) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(errOut, line)
		}
		m.OnMessage = func(msg string) { say(ui.RenderMuted(msg)) }
		m.OnWarning = func(msg string) { say(ui.RenderWarn(ui.IconWarn + " " + msg)) }
	}
	return m.ProcessAll(ctx, outcomes)
}

// normalizeTestKey accepts a key or a /browse/ URL; anything else is left
// for the backend to reject.
func normalizeTestKey(ref string) string {
	if key, ok := jira.IssueKey(ref); ok {
		return key
	}
	return ref
}
