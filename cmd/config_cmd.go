package cmd

import (
	"fmt"

	"gemtrail/internal/cli"
	"gemtrail/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()

	source := config.Path()
	if !config.Exists() {
		source = "built-in defaults (run `gemtrail setup` to create a config)"
	}

	fmt.Println(cli.RenderTitle("gemtrail · config"))
	fmt.Println(cli.RenderTable(cli.Table{
		Headers: []string{"Key", "Value"},
		Rows: [][]string{
			{"log_file", cfg.General.LogFile},
			{"output_dir", cfg.General.OutputDir},
			{"retain_log", fmt.Sprintf("%v", cfg.General.RetainLog)},
			{"decode_json_fields", fmt.Sprintf("%v", cfg.General.DecodeJSONFields)},
			{"lock_timeout_secs", fmt.Sprintf("%d", cfg.General.LockTimeoutSecs)},
			{"viewer.addr", cfg.Viewer.Addr},
		},
	}))
	fmt.Printf("  Source: %s\n", source)
	return nil
}
