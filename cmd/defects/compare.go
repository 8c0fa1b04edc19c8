package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/defects/internal/config"
	"github.com/steveyegge/defects/internal/fingerprint"
	"github.com/steveyegge/defects/internal/jira"
	"github.com/steveyegge/defects/internal/ui"
)

// errMismatch is returned by compare --check when the fingerprints differ.
var errMismatch = errors.New("fingerprints do not match")

var compareCmd = &cobra.Command{
	Use:     "compare <fingerprint-file> [issue-key|issue-url]",
	GroupID: "inspect",
	Short:   "Compare a fingerprint with the one stored in a defect",
	Long: `Compare a live fingerprint with the document stored in a defect
description, field by field.

The stored side is read from the configured backend by issue key (or a
/browse/ URL), or from a file with --stored.

Strict mode (the default) also requires the iteration to match; --loose
ignores it. The data source is compared when match.include-data-source is
set or --data-source is given.

Examples:
  defects compare fp.yaml QA-123
  defects compare fp.yaml https://example.atlassian.net/browse/QA-123 --loose
  defects compare fp.yaml --stored description.txt --check`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().String("stored", "", "Read the stored document from a file instead of the tracker")
	compareCmd.Flags().Bool("loose", false, "Ignore the iteration")
	compareCmd.Flags().Bool("data-source", false, "Also require the data source to match")
	compareCmd.Flags().Bool("check", false, "Exit non-zero when the fingerprints differ")
	compareCmd.Flags().String("data", "", "Data file supplying the live data-source row")
	compareCmd.Flags().Int("iteration", 0, "Data row of the live fingerprint (with --data)")
	rootCmd.AddCommand(compareCmd)
}

type compareOutput struct {
	Mode       string              `json:"mode"`
	Verdict    fingerprint.Verdict `json:"verdict"`
	Mismatches []fingerprint.Field `json:"mismatches,omitempty"`
	Problems   map[string]string   `json:"problems,omitempty"`
}

func runCompare(cmd *cobra.Command, args []string) error {
	live, err := loadFingerprint(cmd, args[0])
	if err != nil {
		return err
	}
	stored, err := storedDocument(cmd, args[1:])
	if err != nil {
		return err
	}

	mode := fingerprint.Strict
	if loose, _ := cmd.Flags().GetBool("loose"); loose {
		mode = fingerprint.Loose
	}
	withDS, _ := cmd.Flags().GetBool("data-source")
	mode = mode.WithDataSource(withDS || config.GetBool(config.KeyIncludeDataSource))

	v := fingerprint.Compare(live, stored, mode)
	if jsonOutput {
		out := compareOutput{Mode: mode.String(), Verdict: v, Mismatches: v.Mismatches()}
		for f, perr := range v.Problems {
			if out.Problems == nil {
				out.Problems = make(map[string]string)
			}
			out.Problems[string(f)] = perr.Error()
		}
		if err := outputJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderVerdict(v))
	}

	if check, _ := cmd.Flags().GetBool("check"); check && !v.Overall {
		return errMismatch
	}
	return nil
}

// storedDocument returns the stored side of a comparison: --stored, or the
// description of the issue named by ref.
func storedDocument(cmd *cobra.Command, ref []string) (string, error) {
	if path, _ := cmd.Flags().GetString("stored"); path != "" {
		if len(ref) > 0 {
			return "", errors.New("give either an issue or --stored, not both")
		}
		// #nosec G304 - path is supplied by the operator on the command line
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading stored document: %w", err)
		}
		return string(data), nil
	}
	if len(ref) == 0 {
		return "", errors.New("an issue key or --stored is required")
	}
	key, ok := jira.IssueKey(ref[0])
	if !ok {
		return "", fmt.Errorf("not an issue key or URL: %q", ref[0])
	}

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()
	b, err := openBackend(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = b.Close() }()

	issue, err := b.GetIssue(ctx, key)
	if err != nil {
		return "", err
	}
	return issue.Body, nil
}
