package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/defects/internal/config"
	"github.com/steveyegge/defects/internal/dataset"
	"github.com/steveyegge/defects/internal/fingerprint"
)

var renderCmd = &cobra.Command{
	Use:     "render <fingerprint-file>",
	GroupID: "inspect",
	Short:   "Render a fingerprint as defect description text",
	Long: `Render a fingerprint file (YAML or JSON) into the wiki-markup document
stored in defect descriptions.

With --data, the fingerprint's data source becomes the row of the data file
at --iteration, the way a data-driven test run is fingerprinted.

Examples:
  defects render fp.yaml
  defects render fp.yaml --data users.csv --iteration 2`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().String("data", "", "Data file (json, yaml, toml or csv) supplying the data-source row")
	renderCmd.Flags().Int("iteration", 0, "Data row to render (with --data)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	fp, err := loadFingerprint(cmd, args[0])
	if err != nil {
		return err
	}
	text := fingerprint.Render(fp, config.Codec())
	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), map[string]string{"description": text})
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// loadFingerprint reads path and applies the --data/--iteration flags.
func loadFingerprint(cmd *cobra.Command, path string) (fingerprint.Fingerprint, error) {
	fp, err := fingerprint.LoadFile(path)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	dataPath, _ := cmd.Flags().GetString("data")
	if dataPath == "" {
		return fp, nil
	}
	ds, err := dataset.LoadFile(dataPath)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	iteration, _ := cmd.Flags().GetInt("iteration")
	if iteration < 0 || iteration >= ds.Len() {
		return fingerprint.Fingerprint{}, fmt.Errorf("iteration %d out of range: %s has %d rows", iteration, dataPath, ds.Len())
	}
	return fp.WithDataRow(ds, iteration), nil
}
