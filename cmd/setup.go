package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gemtrail/internal/config"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	reader := bufio.NewReader(os.Stdin)

	// Load existing config or defaults
	cfg, _ := config.Load()

	fmt.Println()
	fmt.Println("  Welcome to gemtrail!")
	fmt.Println()

	// 1. Log file
	fmt.Println("  1. Telemetry log file")
	fmt.Printf("     Current: %s\n", cfg.General.LogFile)
	fmt.Print("     > ")
	logPath, _ := reader.ReadString('\n')
	logPath = strings.TrimSpace(logPath)
	if logPath != "" {
		cfg.General.LogFile = logPath
	}
	fmt.Println()

	// 2. Output directory
	fmt.Println("  2. Session artifact directory")
	fmt.Printf("     Current: %s\n", cfg.General.OutputDir)
	fmt.Print("     > ")
	outDir, _ := reader.ReadString('\n')
	outDir = strings.TrimSpace(outDir)
	if outDir != "" {
		cfg.General.OutputDir = outDir
	}
	fmt.Println()

	// 3. Log retention
	fmt.Println("  3. Clear the log after each successful run?")
	fmt.Println("     (1) Clear it [default]")
	fmt.Println("     (2) Keep it")
	fmt.Print("     > ")
	choice, _ := reader.ReadString('\n')
	cfg.General.RetainLog = strings.TrimSpace(choice) == "2"

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.Path())
	fmt.Println("  Run `gemtrail setup` anytime to reconfigure.")
	fmt.Println()

	return nil
}
