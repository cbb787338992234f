package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"llamarag/loader"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest files dropped into the loader inbox",
	Long: `Watches the inbox directory. A file is picked up once it has not changed
for the settle period, moved to archive/<date>/ and ingested from there.
Files that fail go to bad/<date>/. PDFs are converted to text first.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := loader.New(loaderConfig(app.Config), app.Agent, app.Logger)
	if err != nil {
		return err
	}
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
