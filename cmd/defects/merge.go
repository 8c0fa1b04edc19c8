package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/defects/internal/config"
	"github.com/steveyegge/defects/internal/dataset"
	"github.com/steveyegge/defects/internal/jira"
	"github.com/steveyegge/defects/internal/logging"
	"github.com/steveyegge/defects/internal/table"
)

var mergeCmd = &cobra.Command{
	Use:     "merge <primary-file> [other-file...]",
	GroupID: "inspect",
	Short:   "Merge data tables the way a data-driven test sees them",
	Long: `Merge a test's own data table with further tables.

Tables with the primary's row count are aligned by position; the others are
applied combinatorially (first row broadcast as defaults, further rows
multiplying the rows).

With --test, the tables found in the issues linked to the test case through
the precondition link type are merged as well.

Examples:
  defects merge users.csv locales.yaml
  defects merge users.csv --test QA-42`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().String("test", "", "Test case whose precondition issues supply more tables")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	tables := make([]table.Table, 0, len(args))
	for _, path := range args {
		t, err := dataset.LoadFile(path)
		if err != nil {
			return err
		}
		tables = append(tables, t)
	}
	merged := dataset.Merge(tables[0], tables[1:]...)

	if ref, _ := cmd.Flags().GetString("test"); ref != "" {
		key, ok := jira.IssueKey(ref)
		if !ok {
			return fmt.Errorf("not an issue key or URL: %q", ref)
		}
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = b.Close() }()

		r := &dataset.Resolver{
			Store:    b,
			LinkType: config.GetString(config.KeyPreconditionLinkType),
			Logger:   logging.New("dataset"),
		}
		if merged, err = r.Resolve(ctx, key, merged); err != nil {
			return err
		}
	}

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), merged)
	}
	fmt.Fprintln(cmd.OutOrStdout(), table.EncodeTable(merged, config.Codec()))
	return nil
}
