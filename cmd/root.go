package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gemtrail/internal/cli"
	"gemtrail/internal/config"
	"gemtrail/internal/lockfile"
	"gemtrail/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	flagLog         string
	flagOutputDir   string
	flagRetain      bool
	flagRaw         bool
	flagLockTimeout time.Duration
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "gemtrail",
	Short: "Gemini CLI telemetry log processor",
	Long:  "Fold the Gemini CLI telemetry log into per-session request/response artifacts.",
	RunE:  runProcess,

	SilenceUsage: true,
}

// Execute is the main entry point called from main.go.
// Lock contention exits 2 so callers can tell it apart from real failures.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, lockfile.ErrContention) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagLog, "log", "l", "", "Telemetry log file (default from config)")
	rootCmd.PersistentFlags().StringVarP(&flagOutputDir, "output-dir", "o", "", "Session artifact directory (default from config)")
	rootCmd.PersistentFlags().DurationVar(&flagLockTimeout, "lock-timeout", 0, "How long to wait for the log lock (default from config)")
	rootCmd.Flags().BoolVar(&flagRetain, "retain", false, "Keep the log file after processing")
	rootCmd.Flags().BoolVar(&flagRaw, "raw", false, "Keep embedded JSON fields as raw strings")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Print per-record diagnostics to stderr")
}

// loadConfig loads the config file, falling back to defaults with a warning.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.Warn(fmt.Sprintf("config unreadable, using defaults: %v", err)))
		return config.DefaultConfig()
	}
	return cfg
}

// resolveOptions merges config defaults with command-line overrides.
func resolveOptions(cmd *cobra.Command, cfg config.Config) pipeline.Options {
	opts := pipeline.Options{
		LogPath:     cfg.General.LogFile,
		OutputDir:   cfg.General.OutputDir,
		Retain:      cfg.General.RetainLog,
		DecodeJSON:  cfg.General.DecodeJSONFields,
		LockTimeout: time.Duration(cfg.General.LockTimeoutSecs) * time.Second,
		Diag:        io.Discard,
	}
	if flagLog != "" {
		opts.LogPath = flagLog
	}
	if flagOutputDir != "" {
		opts.OutputDir = flagOutputDir
	}
	if cmd.Flags().Changed("lock-timeout") {
		opts.LockTimeout = flagLockTimeout
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = lockfile.DefaultTimeout
	}
	if flagRetain {
		opts.Retain = true
	}
	if flagRaw {
		opts.DecodeJSON = false
	}
	if flagVerbose {
		opts.Diag = os.Stderr
	}
	return opts
}

func runProcess(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	opts := resolveOptions(cmd, cfg)

	res, err := pipeline.Run(opts)
	if err != nil {
		return err
	}

	if res.NothingToDo {
		fmt.Println(res.Reason)
		return nil
	}

	printSummary(res)
	return nil
}

func printSummary(res *pipeline.Result) {
	fmt.Println(cli.RenderTitle("gemtrail · log processed"))

	st := res.Stats
	fmt.Println(cli.RenderTable(cli.Table{
		Headers: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Records read", cli.FormatNumber(int64(st.TotalRecords))},
			{"Requests", cli.FormatNumber(int64(st.Requests))},
			{"Responses", cli.FormatNumber(int64(st.Responses))},
			{"Errors", cli.FormatNumber(int64(st.Errors))},
			{"Unknown events", cli.FormatNumber(int64(st.Unknown))},
			{"Skipped records", cli.FormatNumber(int64(st.Skipped))},
			{"Sessions written", cli.FormatNumber(int64(st.SessionsProcessed))},
			{"  created", cli.FormatNumber(int64(st.SessionsCreated))},
			{"  updated", cli.FormatNumber(int64(st.SessionsUpdated))},
		},
	}))

	for _, f := range res.Files {
		fmt.Printf("  wrote %s\n", f)
	}
	if res.Truncated {
		fmt.Println("  log cleared")
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(os.Stderr, cli.Warn(w))
	}
}
