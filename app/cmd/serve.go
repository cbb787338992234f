package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"llamarag/app/server"
	"llamarag/config"
	"llamarag/loader"
	"llamarag/types"
)

var serveInbox bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveInbox, "inbox", false, "also ingest files dropped into the loader inbox")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	cfg := app.Config

	if configPath != "" {
		err := config.Watch(configPath, app.Logger, func(next *config.Config) {
			app.Agent.SetSettings(types.Settings{TopK: next.Retrieval.TopK, MaxTokens: next.Llama.MaxTokens})
		})
		if err != nil {
			app.Logger.Warn("config hot reload disabled", zap.Error(err))
		}
	}

	s := server.NewServer(server.Config{
		Addr:         cfg.Server.Addr,
		StaticDir:    cfg.Server.StaticDir,
		UploadDir:    cfg.Server.UploadDir,
		MaxUploadMB:  cfg.Server.MaxUploadMB,
		QueryTimeout: cfg.Llama.Timeout,
	}, app.Agent, app.Logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(s.Run)
	g.Go(func() error {
		<-ctx.Done()
		app.Logger.Info("received shutdown signal, shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	})
	if serveInbox {
		svc, err := loader.New(loaderConfig(cfg), app.Agent, app.Logger)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return svc.Run(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loaderConfig(cfg *config.Config) loader.Config {
	return loader.Config{
		InboxDir:   cfg.Loader.InboxDir,
		ArchiveDir: cfg.Loader.ArchiveDir,
		BadDir:     cfg.Loader.BadDir,
		Settle:     cfg.Loader.Settle,
		Interval:   cfg.Loader.Interval,
	}
}
