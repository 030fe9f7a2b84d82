package cmd

import (
	"fmt"
	"os"
	"strconv"

	"gemtrail/internal/cli"
	"gemtrail/internal/store"

	"github.com/spf13/cobra"
)

var flagLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored session artifacts",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&flagLimit, "limit", 0, "Show at most N sessions (0 = all)")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()
	dir := cfg.General.OutputDir
	if flagOutputDir != "" {
		dir = flagOutputDir
	}

	st, err := store.Open(dir)
	if err != nil {
		return err
	}
	defer st.Close()

	artifacts, err := st.List()
	if err != nil {
		return err
	}

	if len(artifacts) == 0 {
		fmt.Printf("No session artifacts in %s\n", dir)
		return nil
	}

	total := len(artifacts)
	if flagLimit > 0 && flagLimit < len(artifacts) {
		artifacts = artifacts[:flagLimit]
	}

	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		title := a.Title
		if title == "" {
			title = "-"
		}
		rows = append(rows, []string{
			a.Timestamp.Format("2006-01-02 15:04:05"),
			cli.Truncate(title, 40),
			strconv.Itoa(len(st.Prior(a.SessionID))),
			cli.FormatBytes(a.Size),
		})
	}

	fmt.Println(cli.RenderTitle(fmt.Sprintf("gemtrail · %d sessions", total)))
	fmt.Println(cli.RenderTable(cli.Table{
		Headers: []string{"Started", "Title", "Prompts", "Size"},
		Rows:    rows,
	}))

	for _, w := range st.Warnings() {
		fmt.Fprintln(os.Stderr, cli.Warn(w))
	}
	return nil
}
