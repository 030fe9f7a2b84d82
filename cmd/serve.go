package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"gemtrail/internal/viewer"

	"github.com/spf13/cobra"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session viewer HTTP API",
	Long:  "Serve session artifacts over HTTP: listing, rename, delete, and static files.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()

	addr := cfg.Viewer.Addr
	if flagAddr != "" {
		addr = flagAddr
	}
	dir := cfg.General.OutputDir
	if flagOutputDir != "" {
		dir = flagOutputDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := viewer.New(viewer.Config{Addr: addr, Dir: dir})
	if err != nil {
		return err
	}
	defer svc.Close()
	return svc.Run(ctx)
}
