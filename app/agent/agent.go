package agent

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"llamarag/chunker"
	"llamarag/model"
	"llamarag/store"
	"llamarag/types"
)

const DefaultTopK = 5

type Config struct {
	ChunkSize int
	TopK      int
	MaxTokens int
}

// Agent ingests documents into a collection and answers questions from it.
type Agent struct {
	collection store.Collection
	generator  model.Generator
	logger     *zap.Logger
	chunkSize  int

	settingsMu sync.RWMutex
	settings   types.Settings

	// mirror holds every chunk text ingested by this process. Debug only.
	mirrorMu sync.Mutex
	mirror   []string

	sources keyedMutex
}

// Reply is a generated answer plus what it was grounded on.
type Reply struct {
	Answer  string
	Chunks  []string
	Sources []string
}

func New(collection store.Collection, generator model.Generator, cfg Config, logger *zap.Logger) *Agent {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = model.DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		collection: collection,
		generator:  generator,
		logger:     logger.Named("agent"),
		chunkSize:  cfg.ChunkSize,
		settings:   types.Settings{TopK: cfg.TopK, MaxTokens: cfg.MaxTokens},
	}
}

func (a *Agent) Collection() store.Collection {
	return a.collection
}

// ProcessAndStore reads filePath, chunks it and replaces whatever chunks the
// collection held for that path. Returns the number of chunks stored.
func (a *Agent) ProcessAndStore(ctx context.Context, filePath string) (int, error) {
	start := time.Now()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("read document: %w", err)
	}

	chunks := chunker.Chunks(filePath, string(data), a.chunkSize)
	texts := make([]string, len(chunks))
	metadatas := make([]types.Metadata, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		metadatas[i] = types.Metadata{types.MetaSource: filePath}
		ids[i] = c.ID
	}

	unlock := a.sources.Lock(filePath)
	defer unlock()

	// Chunk ids are stable per source, so the upsert overwrites the old chunks
	// in place and a failed Add leaves the previous version untouched.
	if err := a.collection.Add(ctx, texts, metadatas, ids); err != nil {
		return 0, fmt.Errorf("store chunks of %s: %w", filePath, err)
	}
	if err := a.dropStale(ctx, filePath, ids); err != nil {
		return 0, err
	}

	a.mirrorMu.Lock()
	a.mirror = append(a.mirror, texts...)
	a.mirrorMu.Unlock()

	a.logger.Info("document stored",
		zap.String("source", filePath),
		zap.Int("chunks", len(chunks)),
		zap.Duration("took", time.Since(start)))
	return len(chunks), nil
}

// dropStale removes chunks of source left over from a longer previous version.
func (a *Agent) dropStale(ctx context.Context, source string, keep []string) error {
	stored, err := a.collection.IDs(ctx, types.Metadata{types.MetaSource: source})
	if err != nil {
		return fmt.Errorf("list chunks of %s: %w", source, err)
	}
	current := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		current[id] = struct{}{}
	}
	var stale []string
	for _, id := range stored {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := a.collection.Delete(ctx, stale, nil); err != nil {
		return fmt.Errorf("drop stale chunks of %s: %w", source, err)
	}
	a.logger.Debug("dropped stale chunks", zap.String("source", source), zap.Int("count", len(stale)))
	return nil
}

// Search returns the texts of the k nearest chunks. k <= 0 uses the configured default.
func (a *Agent) Search(ctx context.Context, query string, k int) ([]string, error) {
	res, err := a.retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return res.Documents[0], nil
}

func (a *Agent) retrieve(ctx context.Context, query string, k int) (*types.QueryResult, error) {
	if k <= 0 {
		k = a.Settings().TopK
	}
	res, err := a.collection.Query(ctx, []string{query}, k, nil)
	if err != nil {
		return nil, fmt.Errorf("search relevant chunks: %w", err)
	}
	a.logger.Debug("retrieved chunks",
		zap.String("query", query),
		zap.Strings("ids", res.IDs[0]),
		zap.Float64s("distances", res.Distances[0]))
	return res, nil
}

// Generate asks the model to answer query from chunks. Errors from the model
// are returned as is; there is no retry.
func (a *Agent) Generate(ctx context.Context, query string, chunks []string) (string, error) {
	start := time.Now()
	prompt := BuildPrompt(query, chunks)

	if ce := a.logger.Check(zap.DebugLevel, "prompt built"); ce != nil {
		fields := []zap.Field{zap.Int("chunks", len(chunks)), zap.Int("chars", len(prompt))}
		if n, err := CountTokens(prompt); err == nil {
			fields = append(fields, zap.Int("tokens", n))
		}
		ce.Write(fields...)
	}

	answer, err := a.generator.Complete(ctx, prompt, a.Settings().MaxTokens)
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}
	a.logger.Debug("answer generated", zap.Duration("took", time.Since(start)))
	return answer, nil
}

// Answer runs Search and Generate for one question.
func (a *Agent) Answer(ctx context.Context, query string, k int) (Reply, error) {
	res, err := a.retrieve(ctx, query, k)
	if err != nil {
		return Reply{}, err
	}
	chunks := res.Documents[0]

	answer, err := a.Generate(ctx, query, chunks)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Answer: answer, Chunks: chunks, Sources: sourcesOf(res.Metadatas[0])}, nil
}

// sourcesOf lists distinct metadata sources in rank order.
func sourcesOf(mds []types.Metadata) []string {
	seen := make(map[string]struct{}, len(mds))
	out := make([]string, 0, len(mds))
	for _, md := range mds {
		src, ok := md[types.MetaSource]
		if !ok {
			continue
		}
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

// Mirror returns a copy of every chunk text ingested by this process.
func (a *Agent) Mirror() []string {
	a.mirrorMu.Lock()
	defer a.mirrorMu.Unlock()
	out := make([]string, len(a.mirror))
	copy(out, a.mirror)
	return out
}

func (a *Agent) Settings() types.Settings {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return a.settings
}

// SetSettings applies the non-zero fields of s and returns the result.
func (a *Agent) SetSettings(s types.Settings) types.Settings {
	a.settingsMu.Lock()
	defer a.settingsMu.Unlock()
	if s.TopK > 0 {
		a.settings.TopK = s.TopK
	}
	if s.MaxTokens > 0 {
		a.settings.MaxTokens = s.MaxTokens
	}
	a.logger.Info("settings updated", zap.Int("k", a.settings.TopK), zap.Int("max_tokens", a.settings.MaxTokens))
	return a.settings
}
