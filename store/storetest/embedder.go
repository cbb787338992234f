// Package storetest provides a deterministic Embedder for tests that need a
// collection without a running inference server.
package storetest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

const DefaultDim = 256

// ErrEmbed is returned for texts containing WordEmbedder.FailOn.
var ErrEmbed = errors.New("storetest: embedding failed")

// WordEmbedder maps each distinct lowercase word to its own dimension, so texts
// sharing words are close and texts sharing none are orthogonal.
type WordEmbedder struct {
	// FailOn makes Embed fail for any text containing it.
	FailOn string
	Dim    int

	mu    sync.Mutex
	vocab map[string]int
	calls atomic.Int64
}

func NewWordEmbedder() *WordEmbedder {
	return &WordEmbedder{Dim: DefaultDim}
}

func (e *WordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.calls.Add(1)
	if e.FailOn != "" && strings.Contains(text, e.FailOn) {
		return nil, ErrEmbed
	}

	dim := e.Dim
	if dim <= 0 {
		dim = DefaultDim
	}
	vec := make([]float32, dim)
	for _, w := range Words(text) {
		vec[e.index(w)%dim]++
	}
	return vec, nil
}

// Calls reports how many times Embed ran.
func (e *WordEmbedder) Calls() int64 {
	return e.calls.Load()
}

func (e *WordEmbedder) index(word string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vocab == nil {
		e.vocab = make(map[string]int)
	}
	i, ok := e.vocab[word]
	if !ok {
		i = len(e.vocab)
		e.vocab[word] = i
	}
	return i
}

// Words lowercases text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
