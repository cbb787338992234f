package model

import (
	"context"
	"fmt"

	"llamarag/types"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type embeddingRequest struct {
	Content string `json:"content"`
}

// llama.cpp answers /embedding with a list; each item holds one vector per pooled sequence.
type embeddingItem struct {
	Index     int         `json:"index"`
	Embedding [][]float32 `json:"embedding"`
}

// Embed returns body[0].embedding[0] from POST /embedding.
func (c *LlamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var items []embeddingItem
	if err := c.postJSON(ctx, embeddingPath, embeddingRequest{Content: text}, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 || len(items[0].Embedding) == 0 || len(items[0].Embedding[0]) == 0 {
		return nil, fmt.Errorf("llama.cpp %s: %w", embeddingPath, types.ErrEmptyEmbedding)
	}
	return items[0].Embedding[0], nil
}
