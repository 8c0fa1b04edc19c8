package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/defects/internal/config"
	"github.com/steveyegge/defects/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage configuration settings",
	Long: `Manage configuration settings.

Settings are read from the nearest .defects/config.yaml, then
~/.config/defects/config.yaml, and can be overridden with DEFECTS_* environment
variables (DEFECTS_BUCKET_SIZE, DEFECTS_JIRA_URL, ...).

Backend settings:
  jira.url, jira.project, jira.username, jira.api_token (or JIRA_* env vars)
  sql.dsn, sql.prefix (or SQL_* env vars)

Examples:
  defects config set backend jira
  defects config set jira.url "https://company.atlassian.net"
  defects config set stale-statuses "Stale,Obsolete"
  defects config get bucket-size
  defects config list`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in .defects/config.yaml",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.SetYamlConfig(args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]string{"key": args[0], "value": args[1], "file": path})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Set %s = %s (in %s)\n", ui.RenderPass(ui.IconPass), args[0], displayValue(args[0], args[1]), path)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := config.GetString(args[0])
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]string{"key": args[0], "value": value})
		}
		if value == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (not set)\n", args[0])
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), displayValue(args[0], value))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all resolved configuration values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flat := make(map[string]string)
		flatten("", config.AllSettings(), flat)
		for k, v := range flat {
			flat[k] = displayValue(k, v)
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), flat)
		}

		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := cmd.OutOrStdout()
		if used := config.ConfigFileUsed(); used != "" {
			fmt.Fprintln(out, ui.RenderMuted("# "+used))
		}
		for _, k := range keys {
			fmt.Fprintf(out, "%s = %s\n", ui.RenderAccent(k), flat[k])
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}

// flatten turns viper's nested settings into dotted keys.
func flatten(prefix string, settings map[string]interface{}, out map[string]string) {
	for k, v := range settings {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case []string:
			out[key] = strings.Join(val, ",")
		case []interface{}:
			parts := make([]string, len(val))
			for i, p := range val {
				parts[i] = fmt.Sprint(p)
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// displayValue masks secrets.
func displayValue(key, value string) string {
	lower := strings.ToLower(key)
	if value != "" && (strings.Contains(lower, "token") || strings.Contains(lower, "password")) {
		return "********"
	}
	if strings.HasSuffix(lower, "dsn") {
		if at := strings.LastIndex(value, "@"); at > 0 {
			return "********" + value[at:]
		}
	}
	return value
}
