package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"llamarag/types"
)

type memoryRecord struct {
	id       string
	document string
	metadata types.Metadata
	vector   []float32
	seq      uint64
}

// MemoryClient keeps collections in process memory. Useful for tests and
// the single-binary CLI path.
type MemoryClient struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memoryRecord
	seq         uint64

	embedder Embedder
	opts     Options
	logger   *zap.Logger
}

func NewMemoryClient(embedder Embedder, opts Options, logger *zap.Logger) *MemoryClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryClient{
		collections: make(map[string]map[string]*memoryRecord),
		embedder:    embedder,
		opts:        opts,
		logger:      logger.Named("memstore"),
	}
}

// GetOrCreateCollection returns a handle to name, creating it on first use.
func (m *MemoryClient) GetOrCreateCollection(name string) *MemoryCollection {
	m.mu.Lock()
	m.ensure(name)
	m.mu.Unlock()
	return &MemoryCollection{name: name, client: m}
}

// Reset drops every collection.
func (m *MemoryClient) Reset() error {
	if !m.opts.AllowReset {
		return types.ErrResetDisabled
	}
	m.mu.Lock()
	m.collections = make(map[string]map[string]*memoryRecord)
	m.mu.Unlock()
	m.logger.Info("memory store reset")
	return nil
}

// ensure must be called with mu held for writing.
func (m *MemoryClient) ensure(name string) map[string]*memoryRecord {
	records, ok := m.collections[name]
	if !ok {
		records = make(map[string]*memoryRecord)
		m.collections[name] = records
	}
	return records
}

// MemoryCollection is a Collection backed by a MemoryClient.
type MemoryCollection struct {
	name   string
	client *MemoryClient
}

var _ Collection = (*MemoryCollection)(nil)

func (c *MemoryCollection) Name() string { return c.name }

func (c *MemoryCollection) Add(ctx context.Context, documents []string, metadatas []types.Metadata, ids []string) error {
	metadatas, ids, err := normalizeAdd(documents, metadatas, ids)
	if err != nil {
		return err
	}
	if len(documents) == 0 {
		return nil
	}

	vectors, err := embedAll(ctx, c.client.embedder, documents, c.client.opts.workers())
	if err != nil {
		return err
	}

	m := c.client
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.ensure(c.name)
	for i, id := range ids {
		rec, ok := records[id]
		if !ok {
			m.seq++
			rec = &memoryRecord{id: id, seq: m.seq}
			records[id] = rec
		}
		rec.document = documents[i]
		rec.metadata = metadatas[i].Clone()
		rec.vector = vectors[i]
	}
	m.logger.Debug("added documents", zap.String("collection", c.name), zap.Int("count", len(ids)))
	return nil
}

func (c *MemoryCollection) Query(ctx context.Context, queryTexts []string, nResults int, where types.Metadata) (*types.QueryResult, error) {
	if nResults <= 0 {
		return nil, fmt.Errorf("%w: n_results must be positive, got %d", types.ErrInvalidInput, nResults)
	}
	result := types.NewQueryResult(len(queryTexts))
	if len(queryTexts) == 0 {
		return result, nil
	}

	m := c.client
	m.mu.RLock()
	empty := len(m.collections[c.name]) == 0
	m.mu.RUnlock()
	if empty {
		return result, nil
	}

	vectors, err := embedAll(ctx, m.embedder, queryTexts, m.opts.workers())
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec      *memoryRecord
		distance float64
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.collections[c.name]
	for qi, qv := range vectors {
		candidates := make([]scored, 0, len(records))
		for _, rec := range records {
			if !rec.metadata.Matches(where) {
				continue
			}
			candidates = append(candidates, scored{rec: rec, distance: cosineDistance(qv, rec.vector)})
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].distance != candidates[j].distance {
				return candidates[i].distance < candidates[j].distance
			}
			return candidates[i].rec.seq < candidates[j].rec.seq
		})
		if len(candidates) > nResults {
			candidates = candidates[:nResults]
		}
		for _, s := range candidates {
			result.Append(qi, s.rec.id, s.rec.document, s.rec.metadata.Clone(), s.distance)
		}
	}
	return result, nil
}

func (c *MemoryCollection) Delete(_ context.Context, ids []string, where types.Metadata) error {
	if len(ids) == 0 && len(where) == 0 {
		return nil
	}

	m := c.client
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.ensure(c.name)

	var wanted map[string]struct{}
	if len(ids) > 0 {
		wanted = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			wanted[id] = struct{}{}
		}
	}

	removed := 0
	for id, rec := range records {
		if wanted != nil {
			if _, ok := wanted[id]; !ok {
				continue
			}
		}
		if !rec.metadata.Matches(where) {
			continue
		}
		delete(records, id)
		removed++
	}
	m.logger.Debug("deleted documents", zap.String("collection", c.name), zap.Int("count", removed))
	return nil
}

func (c *MemoryCollection) Update(ctx context.Context, ids []string, documents []string, metadatas []types.Metadata) error {
	if err := normalizeUpdate(ids, documents, metadatas); err != nil {
		return err
	}
	m := c.client

	m.mu.RLock()
	err := c.checkExist(ids)
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	var vectors [][]float32
	if documents != nil {
		if vectors, err = embedAll(ctx, m.embedder, documents, m.opts.workers()); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// A concurrent Delete may have won while embedding.
	if err := c.checkExist(ids); err != nil {
		return err
	}
	records := m.collections[c.name]
	for i, id := range ids {
		rec := records[id]
		if documents != nil {
			rec.document = documents[i]
			rec.vector = vectors[i]
		}
		if metadatas != nil {
			md := metadatas[i]
			if md == nil {
				md = types.Metadata{}
			}
			rec.metadata = md.Clone()
		}
	}
	return nil
}

// checkExist must be called with mu held.
func (c *MemoryCollection) checkExist(ids []string) error {
	records := c.client.collections[c.name]
	for _, id := range ids {
		if _, ok := records[id]; !ok {
			return fmt.Errorf("update id %q: %w", id, types.ErrNotFound)
		}
	}
	return nil
}

func (c *MemoryCollection) IDs(_ context.Context, where types.Metadata) ([]string, error) {
	m := c.client
	m.mu.RLock()
	var matched []*memoryRecord
	for _, rec := range m.collections[c.name] {
		if rec.metadata.Matches(where) {
			matched = append(matched, rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	ids := make([]string, len(matched))
	for i, rec := range matched {
		ids[i] = rec.id
	}
	return ids, nil
}

func (c *MemoryCollection) Info(_ context.Context) (types.CollectionInfo, error) {
	m := c.client
	m.mu.RLock()
	defer m.mu.RUnlock()
	return types.CollectionInfo{Name: c.name, Count: len(m.collections[c.name])}, nil
}

// Reset clears the whole client and re-creates this collection.
func (c *MemoryCollection) Reset(_ context.Context) error {
	if err := c.client.Reset(); err != nil {
		return err
	}
	c.client.mu.Lock()
	c.client.ensure(c.name)
	c.client.mu.Unlock()
	return nil
}
