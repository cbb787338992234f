package store

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"llamarag/types"
)

// Collection is the CRUD + similarity contract over a named set of chunks.
// Embeddings are computed by the store; callers only deal with text.
type Collection interface {
	Name() string
	// Add upserts documents by id. nil metadatas default to empty maps and nil ids
	// default to doc_<i> scoped to this call.
	Add(ctx context.Context, documents []string, metadatas []types.Metadata, ids []string) error
	// Query returns up to nResults matches per query text, nearest first.
	Query(ctx context.Context, queryTexts []string, nResults int, where types.Metadata) (*types.QueryResult, error)
	// Delete removes chunks matching ids (when given) and where (when given).
	Delete(ctx context.Context, ids []string, where types.Metadata) error
	// Update replaces content of existing ids. Unknown ids fail with types.ErrNotFound.
	Update(ctx context.Context, ids []string, documents []string, metadatas []types.Metadata) error
	// IDs lists the ids whose metadata matches where, oldest first. nil where lists all.
	IDs(ctx context.Context, where types.Metadata) ([]string, error)
	Info(ctx context.Context) (types.CollectionInfo, error)
	// Reset clears every collection of the underlying store.
	Reset(ctx context.Context) error
}

// Embedder is what a store needs to vectorize text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const DefaultWorkers = 4

// Options tune a store backend.
type Options struct {
	// Workers bounds concurrent embedding calls for one batch.
	Workers int
	// AllowReset enables the destructive Reset.
	AllowReset bool
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return DefaultWorkers
	}
	return o.Workers
}

// defaultID is the call-scoped id used when Add gets no ids.
func defaultID(i int) string {
	return fmt.Sprintf("doc_%d", i)
}

// normalizeAdd fills omitted metadatas/ids and rejects mismatched or duplicate input.
func normalizeAdd(documents []string, metadatas []types.Metadata, ids []string) ([]types.Metadata, []string, error) {
	n := len(documents)

	if metadatas == nil {
		metadatas = make([]types.Metadata, n)
	} else if len(metadatas) != n {
		return nil, nil, fmt.Errorf("%w: %d metadatas for %d documents", types.ErrInvalidInput, len(metadatas), n)
	}
	for i := range metadatas {
		if metadatas[i] == nil {
			metadatas[i] = types.Metadata{}
		}
	}

	if ids == nil {
		ids = make([]string, n)
		for i := range ids {
			ids[i] = defaultID(i)
		}
	} else if len(ids) != n {
		return nil, nil, fmt.Errorf("%w: %d ids for %d documents", types.ErrInvalidInput, len(ids), n)
	}
	if err := checkIDs(ids); err != nil {
		return nil, nil, err
	}
	return metadatas, ids, nil
}

// normalizeUpdate validates optional update columns against ids.
func normalizeUpdate(ids []string, documents []string, metadatas []types.Metadata) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no ids to update", types.ErrInvalidInput)
	}
	if documents != nil && len(documents) != len(ids) {
		return fmt.Errorf("%w: %d documents for %d ids", types.ErrInvalidInput, len(documents), len(ids))
	}
	if metadatas != nil && len(metadatas) != len(ids) {
		return fmt.Errorf("%w: %d metadatas for %d ids", types.ErrInvalidInput, len(metadatas), len(ids))
	}
	return checkIDs(ids)
}

func checkIDs(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty id", types.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", types.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// embedAll embeds texts concurrently, at most workers in flight. Output order matches input.
func embedAll(ctx context.Context, e Embedder, texts []string, workers int) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embed document %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// cosineDistance is 1 - cosine similarity; 1 when either vector is zero or lengths differ.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
