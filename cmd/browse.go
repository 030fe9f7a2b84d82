package cmd

import (
	"fmt"

	"gemtrail/internal/store"
	"gemtrail/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse session artifacts interactively",
	RunE:  runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(_ *cobra.Command, _ []string) error {
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

	// Force TrueColor profile so all styling produces ANSI codes
	lipgloss.SetColorProfile(termenv.TrueColor)

	p := tea.NewProgram(tui.NewApp(st), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("browse ui: %w", err)
	}
	return nil
}
