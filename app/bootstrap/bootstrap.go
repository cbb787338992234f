// Package bootstrap wires configuration into a ready-to-use agent.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"llamarag/app/agent"
	"llamarag/config"
	"llamarag/logger"
	"llamarag/model"
	"llamarag/store"
)

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Llama      *model.LlamaClient
	Collection store.Collection
	Agent      *agent.Agent

	closers []func() error
}

// New builds the logger, inference client, store and agent described by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: log}
	app.closers = append(app.closers, func() error {
		_ = log.Sync()
		return nil
	})

	app.Llama = model.NewLlamaClient(model.Config{
		ServerURL: cfg.Llama.URL,
		MaxTokens: cfg.Llama.MaxTokens,
		Timeout:   cfg.Llama.Timeout,
	}, log)

	app.Collection, err = app.openCollection(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Agent = agent.New(app.Collection, app.Llama, agent.Config{
		ChunkSize: cfg.Chunker.Size,
		TopK:      cfg.Retrieval.TopK,
		MaxTokens: cfg.Llama.MaxTokens,
	}, log)

	log.Info("bootstrap complete",
		zap.String("backend", cfg.Store.Backend),
		zap.String("collection", cfg.Store.Collection),
		zap.String("llama", cfg.Llama.URL))
	return app, nil
}

func (a *App) openCollection(ctx context.Context) (store.Collection, error) {
	opts := store.Options{Workers: a.Config.Store.Workers, AllowReset: a.Config.Store.AllowReset}

	switch a.Config.Store.Backend {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, a.Config.Postgres.DSN(), a.Llama, opts, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("error to connect to Postgres database: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Init(ctx); err != nil {
			return nil, fmt.Errorf("error to create tables: %w", err)
		}
		return pg.GetOrCreateCollection(ctx, a.Config.Store.Collection)
	default:
		mem := store.NewMemoryClient(a.Llama, opts, a.Logger)
		return mem.GetOrCreateCollection(a.Config.Store.Collection), nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
