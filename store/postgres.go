package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"llamarag/types"
)

// PostgresStore keeps collections in Postgres with the pgvector extension.
type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder Embedder
	opts     Options
	logger   *zap.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, embedder Embedder, opts Options, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		pool:     pool,
		embedder: embedder,
		opts:     opts,
		logger:   logger.Named("pgstore"),
	}, nil
}

func (p *PostgresStore) createRagTables(ctx context.Context) error {
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS rag_collections (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS rag_chunks (
		collection TEXT NOT NULL REFERENCES rag_collections(name) ON DELETE CASCADE,
		id TEXT NOT NULL,
		seq BIGSERIAL,
		document TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		embedding vector NOT NULL,
		PRIMARY KEY (collection, id)
	);

	-- where filters use metadata @> '{...}'
	CREATE INDEX IF NOT EXISTS idx_rag_chunks_metadata ON rag_chunks USING GIN (metadata);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

// Init creates the schema when missing.
func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createRagTables(ctx)
}

// GetOrCreateCollection registers name if needed. Safe to race.
func (p *PostgresStore) GetOrCreateCollection(ctx context.Context, name string) (*PostgresCollection, error) {
	if err := p.ensureCollection(ctx, name); err != nil {
		return nil, err
	}
	return &PostgresCollection{name: name, store: p}, nil
}

func (p *PostgresStore) ensureCollection(ctx context.Context, name string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO rag_collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return fmt.Errorf("ensure collection %q: %w", name, err)
	}
	return nil
}

// Reset truncates every collection.
func (p *PostgresStore) Reset(ctx context.Context) error {
	if !p.opts.AllowReset {
		return types.ErrResetDisabled
	}
	if _, err := p.pool.Exec(ctx, `TRUNCATE rag_chunks, rag_collections`); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	p.logger.Info("postgres store reset")
	return nil
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool is closed")
	}
	return nil
}

// PostgresCollection is a Collection stored in rag_chunks.
type PostgresCollection struct {
	name  string
	store *PostgresStore
}

var _ Collection = (*PostgresCollection)(nil)

func (c *PostgresCollection) Name() string { return c.name }

const upsertChunkSQL = `
	INSERT INTO rag_chunks (collection, id, document, metadata, embedding)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (collection, id) DO UPDATE SET
		document = EXCLUDED.document,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding
	`

func (c *PostgresCollection) Add(ctx context.Context, documents []string, metadatas []types.Metadata, ids []string) error {
	metadatas, ids, err := normalizeAdd(documents, metadatas, ids)
	if err != nil {
		return err
	}
	if len(documents) == 0 {
		return nil
	}

	vectors, err := embedAll(ctx, c.store.embedder, documents, c.store.opts.workers())
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i := range documents {
		md, err := json.Marshal(metadatas[i])
		if err != nil {
			return fmt.Errorf("marshal metadata %d: %w", i, err)
		}
		batch.Queue(upsertChunkSQL, c.name, ids[i], documents[i], string(md), pgvector.NewVector(vectors[i]))
	}

	err = pgx.BeginFunc(ctx, c.store.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("add to %q: %w", c.name, err)
	}
	c.store.logger.Debug("added documents", zap.String("collection", c.name), zap.Int("count", len(ids)))
	return nil
}

func (c *PostgresCollection) Query(ctx context.Context, queryTexts []string, nResults int, where types.Metadata) (*types.QueryResult, error) {
	if nResults <= 0 {
		return nil, fmt.Errorf("%w: n_results must be positive, got %d", types.ErrInvalidInput, nResults)
	}
	result := types.NewQueryResult(len(queryTexts))
	if len(queryTexts) == 0 {
		return result, nil
	}

	info, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}
	if info.Count == 0 {
		return result, nil
	}

	vectors, err := embedAll(ctx, c.store.embedder, queryTexts, c.store.opts.workers())
	if err != nil {
		return nil, err
	}
	whereArg, err := jsonFilter(where)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, document, metadata, embedding <=> $2 AS distance
		FROM rag_chunks
		WHERE collection = $1 AND ($3::jsonb IS NULL OR metadata @> $3::jsonb)
		ORDER BY distance, seq
		LIMIT $4
	`
	for qi, vec := range vectors {
		rows, err := c.store.pool.Query(ctx, query, c.name, pgvector.NewVector(vec), whereArg, nResults)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", c.name, err)
		}
		for rows.Next() {
			var (
				id, doc  string
				rawMD    []byte
				distance float64
			)
			if err := rows.Scan(&id, &doc, &rawMD, &distance); err != nil {
				rows.Close()
				return nil, err
			}
			md := types.Metadata{}
			if err := json.Unmarshal(rawMD, &md); err != nil {
				rows.Close()
				return nil, fmt.Errorf("decode metadata of %q: %w", id, err)
			}
			result.Append(qi, id, doc, md, distance)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (c *PostgresCollection) Delete(ctx context.Context, ids []string, where types.Metadata) error {
	if len(ids) == 0 && len(where) == 0 {
		return nil
	}
	whereArg, err := jsonFilter(where)
	if err != nil {
		return err
	}
	var idsArg any
	if len(ids) > 0 {
		idsArg = ids
	}

	tag, err := c.store.pool.Exec(ctx, `
		DELETE FROM rag_chunks
		WHERE collection = $1
			AND ($2::text[] IS NULL OR id = ANY($2::text[]))
			AND ($3::jsonb IS NULL OR metadata @> $3::jsonb)
	`, c.name, idsArg, whereArg)
	if err != nil {
		return fmt.Errorf("delete from %q: %w", c.name, err)
	}
	c.store.logger.Debug("deleted documents", zap.String("collection", c.name), zap.Int64("count", tag.RowsAffected()))
	return nil
}

func (c *PostgresCollection) Update(ctx context.Context, ids []string, documents []string, metadatas []types.Metadata) error {
	if err := normalizeUpdate(ids, documents, metadatas); err != nil {
		return err
	}
	// Fail before spending embedding calls on unknown ids.
	if err := c.checkExist(ctx, c.store.pool, ids); err != nil {
		return err
	}

	var vectors [][]float32
	if documents != nil {
		var err error
		if vectors, err = embedAll(ctx, c.store.embedder, documents, c.store.opts.workers()); err != nil {
			return err
		}
	}

	return pgx.BeginFunc(ctx, c.store.pool, func(tx pgx.Tx) error {
		if err := c.checkExist(ctx, tx, ids); err != nil {
			return err
		}
		for i, id := range ids {
			var doc, md, vec any
			if documents != nil {
				doc = documents[i]
				vec = pgvector.NewVector(vectors[i])
			}
			if metadatas != nil {
				m := metadatas[i]
				if m == nil {
					m = types.Metadata{}
				}
				raw, err := json.Marshal(m)
				if err != nil {
					return fmt.Errorf("marshal metadata %d: %w", i, err)
				}
				md = string(raw)
			}
			_, err := tx.Exec(ctx, `
				UPDATE rag_chunks SET
					document = COALESCE($3::text, document),
					metadata = COALESCE($4::jsonb, metadata),
					embedding = COALESCE($5::vector, embedding)
				WHERE collection = $1 AND id = $2
			`, c.name, id, doc, md, vec)
			if err != nil {
				return fmt.Errorf("update %q: %w", id, err)
			}
		}
		return nil
	})
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (c *PostgresCollection) checkExist(ctx context.Context, q querier, ids []string) error {
	rows, err := q.Query(ctx,
		`SELECT id FROM rag_chunks WHERE collection = $1 AND id = ANY($2::text[])`, c.name, ids)
	if err != nil {
		return err
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(found))
	for _, id := range found {
		have[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			return fmt.Errorf("update id %q: %w", id, types.ErrNotFound)
		}
	}
	return nil
}

func (c *PostgresCollection) IDs(ctx context.Context, where types.Metadata) ([]string, error) {
	whereArg, err := jsonFilter(where)
	if err != nil {
		return nil, err
	}
	rows, err := c.store.pool.Query(ctx, `
		SELECT id FROM rag_chunks
		WHERE collection = $1 AND ($2::jsonb IS NULL OR metadata @> $2::jsonb)
		ORDER BY seq
	`, c.name, whereArg)
	if err != nil {
		return nil, fmt.Errorf("list ids of %q: %w", c.name, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list ids of %q: %w", c.name, err)
	}
	return ids, nil
}

func (c *PostgresCollection) Info(ctx context.Context) (types.CollectionInfo, error) {
	var count int64
	err := c.store.pool.QueryRow(ctx,
		`SELECT count(*) FROM rag_chunks WHERE collection = $1`, c.name).Scan(&count)
	if err != nil {
		return types.CollectionInfo{}, fmt.Errorf("count %q: %w", c.name, err)
	}
	return types.CollectionInfo{Name: c.name, Count: int(count)}, nil
}

// Reset truncates the whole store and re-registers this collection.
func (c *PostgresCollection) Reset(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return err
	}
	return c.store.ensureCollection(ctx, c.name)
}

// jsonFilter encodes a where filter for metadata @> $n; nil means no filter.
func jsonFilter(where types.Metadata) (any, error) {
	if len(where) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(where)
	if err != nil {
		return nil, fmt.Errorf("%w: where: %v", types.ErrInvalidInput, err)
	}
	return string(raw), nil
}
