package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"llamarag/types"
)

// Ingester stores one text document and reports how many chunks it produced.
type Ingester interface {
	ProcessAndStore(ctx context.Context, filePath string) (int, error)
}

// Service moves settled inbox files into the archive and ingests them from there,
// so chunk sources point at a stable path. Failures land in the bad dir.
type Service struct {
	cfg      Config
	watcher  *Watcher
	ingester Ingester
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg Config, ingester Ingester, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := NewWatcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:      cfg,
		watcher:  w,
		ingester: ingester,
		logger:   logger.Named("loader"),
		now:      time.Now,
	}, nil
}

// Run blocks until ctx is cancelled or the watcher fails.
func (s *Service) Run(ctx context.Context) error {
	fileChan := make(chan string, 10)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(fileChan)
		return s.watcher.Watch(ctx, fileChan)
	})
	g.Go(func() error {
		s.consume(ctx, fileChan)
		return nil
	})

	err := g.Wait()
	s.logger.Info("loader service stopped")
	return err
}

// consume handles paths until files is closed. Once ctx is done the remaining
// paths are drained untouched, so they stay in the inbox for the next run.
func (s *Service) consume(ctx context.Context, files <-chan string) {
	for path := range files {
		if ctx.Err() == nil {
			if err := s.Handle(ctx, path); err != nil {
				s.logger.Error("file not ingested", zap.String("file", path), zap.Error(err))
			}
		}
		s.watcher.Done(path)
	}
}

// Handle processes one inbox file.
func (s *Service) Handle(ctx context.Context, path string) error {
	start := s.now()

	if !IsSupported(path) {
		s.quarantine(path)
		return fmt.Errorf("%w: %s", types.ErrUnsupportedFile, filepath.Base(path))
	}

	archived, err := moveToDated(path, s.cfg.ArchiveDir, start)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	textPath := archived
	if isPDF(archived) {
		var pages int
		if textPath, pages, err = PDFToText(archived); err != nil {
			s.quarantine(archived)
			return err
		}
		s.logger.Debug("pdf converted", zap.String("file", archived), zap.Int("pages", pages))
	}

	n, err := s.ingester.ProcessAndStore(ctx, textPath)
	if errors.Is(err, context.Canceled) {
		s.requeue(archived, path)
		if textPath != archived {
			_ = os.Remove(textPath)
		}
		return err
	}
	if err != nil {
		s.quarantine(archived)
		if textPath != archived {
			s.quarantine(textPath)
		}
		return err
	}

	s.logger.Info("file ingested",
		zap.String("file", archived),
		zap.Int("chunks", n),
		zap.Duration("took", time.Since(start)))
	return nil
}

// requeue puts an archived file back at its inbox path after an interrupted ingest.
func (s *Service) requeue(archived, inboxPath string) {
	if _, err := os.Stat(inboxPath); err == nil {
		s.logger.Warn("inbox path taken, interrupted file stays archived", zap.String("file", archived))
		return
	}
	if err := moveFile(archived, inboxPath); err != nil {
		s.logger.Error("return file to inbox", zap.String("file", archived), zap.Error(err))
		return
	}
	s.logger.Info("ingest interrupted, file left in inbox", zap.String("file", inboxPath))
}

func (s *Service) quarantine(path string) {
	dest, err := moveToDated(path, s.cfg.BadDir, s.now())
	if err != nil {
		s.logger.Error("move to bad dir", zap.String("file", path), zap.Error(err))
		return
	}
	s.logger.Warn("file moved to bad dir", zap.String("file", dest))
}
