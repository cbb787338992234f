package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamarag/store/storetest"
	"llamarag/types"
)

// newCollectionFunc builds an empty collection for one test.
type newCollectionFunc func(t *testing.T, emb Embedder, opts Options) Collection

// testCollectionContract runs the behaviour every backend must share.
func testCollectionContract(t *testing.T, newCollection newCollectionFunc) {
	ctx := context.Background()

	fresh := func(t *testing.T) (Collection, *storetest.WordEmbedder) {
		emb := storetest.NewWordEmbedder()
		return newCollection(t, emb, Options{Workers: 2}), emb
	}

	t.Run("add and query round trip", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx,
			[]string{"the quick brown fox", "lorem ipsum dolor"},
			[]types.Metadata{{"source": "a.txt"}, {"source": "b.txt"}},
			[]string{"fox", "lorem"}))

		res, err := c.Query(ctx, []string{"quick brown fox"}, 1, nil)
		require.NoError(t, err)
		require.Len(t, res.IDs, 1)
		require.Len(t, res.IDs[0], 1)
		assert.Equal(t, "fox", res.IDs[0][0])
		assert.Equal(t, "the quick brown fox", res.Documents[0][0])
		assert.Equal(t, types.Metadata{"source": "a.txt"}, res.Metadatas[0][0])
		assert.Less(t, res.Distances[0][0], 0.2)
	})

	t.Run("cats and dogs", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx, []string{"Cats are great pets", "Dogs are loyal companions"}, nil, nil))

		res, err := c.Query(ctx, []string{"Tell me about cats"}, 1, nil)
		require.NoError(t, err)
		require.Len(t, res.Documents[0], 1)
		assert.Equal(t, "Cats are great pets", res.Documents[0][0])
	})

	t.Run("default ids and metadatas", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx, []string{"one", "two"}, nil, nil))

		res, err := c.Query(ctx, []string{"two"}, 2, nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"doc_0", "doc_1"}, res.IDs[0])
		assert.Equal(t, "doc_1", res.IDs[0][0])
		for _, md := range res.Metadatas[0] {
			assert.Empty(t, md)
		}
	})

	t.Run("results ordered by distance", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx,
			[]string{"red green blue", "red green", "red"},
			nil, []string{"three", "two", "one"}))

		res, err := c.Query(ctx, []string{"red green blue"}, 3, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"three", "two", "one"}, res.IDs[0])
		assert.IsNonDecreasing(t, res.Distances[0])
	})

	t.Run("one result list per query text", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx, []string{"apples", "oranges"}, nil, []string{"a", "o"}))

		res, err := c.Query(ctx, []string{"apples", "oranges"}, 1, nil)
		require.NoError(t, err)
		require.Len(t, res.IDs, 2)
		assert.Equal(t, "a", res.IDs[0][0])
		assert.Equal(t, "o", res.IDs[1][0])
	})

	t.Run("mismatched lengths fail without writing", func(t *testing.T) {
		c, _ := fresh(t)
		err := c.Add(ctx, []string{"a", "b"}, []types.Metadata{{}}, nil)
		assert.ErrorIs(t, err, types.ErrInvalidInput)

		err = c.Add(ctx, []string{"a", "b"}, nil, []string{"only-one"})
		assert.ErrorIs(t, err, types.ErrInvalidInput)

		err = c.Add(ctx, []string{"a", "b"}, nil, []string{"same", "same"})
		assert.ErrorIs(t, err, types.ErrInvalidInput)

		info, err := c.Info(ctx)
		require.NoError(t, err)
		assert.Zero(t, info.Count)
	})

	t.Run("embedding failure writes nothing", func(t *testing.T) {
		emb := storetest.NewWordEmbedder()
		emb.FailOn = "poison"
		c := newCollection(t, emb, Options{})

		err := c.Add(ctx, []string{"fine", "poison pill", "also fine"}, nil, nil)
		assert.ErrorIs(t, err, storetest.ErrEmbed)

		info, err := c.Info(ctx)
		require.NoError(t, err)
		assert.Zero(t, info.Count)
	})

	t.Run("add upserts by id", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx, []string{"first"}, nil, []string{"x"}))
		require.NoError(t, c.Add(ctx, []string{"second"}, []types.Metadata{{"v": "2"}}, []string{"x"}))

		info, err := c.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, info.Count)

		res, err := c.Query(ctx, []string{"second"}, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, "second", res.Documents[0][0])
		assert.Equal(t, types.Metadata{"v": "2"}, res.Metadatas[0][0])
	})

	t.Run("empty collection query", func(t *testing.T) {
		c, emb := fresh(t)
		res, err := c.Query(ctx, []string{"anything"}, 5, nil)
		require.NoError(t, err)
		require.Len(t, res.IDs, 1)
		assert.Empty(t, res.IDs[0])
		assert.Empty(t, res.Documents[0])
		assert.Zero(t, emb.Calls())
	})

	t.Run("query rejects non-positive n", func(t *testing.T) {
		c, _ := fresh(t)
		_, err := c.Query(ctx, []string{"x"}, 0, nil)
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("where filter", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx,
			[]string{"shared words here", "shared words there"},
			[]types.Metadata{{"source": "a.txt"}, {"source": "b.txt"}},
			[]string{"a", "b"}))

		res, err := c.Query(ctx, []string{"shared words"}, 10, types.Metadata{"source": "b.txt"})
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, res.IDs[0])

		res, err = c.Query(ctx, []string{"shared words"}, 10, types.Metadata{"source": "nope"})
		require.NoError(t, err)
		assert.Empty(t, res.IDs[0])
	})

	t.Run("delete decrements count", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx,
			[]string{"a", "b", "c"},
			[]types.Metadata{{"source": "1"}, {"source": "2"}, {"source": "2"}},
			[]string{"a", "b", "c"}))

		require.NoError(t, c.Delete(ctx, []string{"a"}, nil))
		info, err := c.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, info.Count)

		require.NoError(t, c.Delete(ctx, nil, types.Metadata{"source": "2"}))
		info, err = c.Info(ctx)
		require.NoError(t, err)
		assert.Zero(t, info.Count)
	})

	t.Run("delete combines ids and where", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx,
			[]string{"a", "b"},
			[]types.Metadata{{"source": "1"}, {"source": "2"}},
			[]string{"a", "b"}))

		require.NoError(t, c.Delete(ctx, []string{"a", "b"}, types.Metadata{"source": "2"}))
		info, err := c.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, info.Count)
	})

	t.Run("delete without selectors is a no-op", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx, []string{"keep me"}, nil, nil))
		require.NoError(t, c.Delete(ctx, nil, nil))
		require.NoError(t, c.Delete(ctx, []string{"missing"}, nil))

		info, err := c.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, info.Count)
	})

	t.Run("update replaces content", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx, []string{"old text"}, []types.Metadata{{"k": "v"}}, []string{"u"}))
		require.NoError(t, c.Update(ctx, []string{"u"}, []string{"brand new text"}, nil))

		res, err := c.Query(ctx, []string{"brand new text"}, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, "brand new text", res.Documents[0][0])
		assert.Equal(t, types.Metadata{"k": "v"}, res.Metadatas[0][0])
		assert.Less(t, res.Distances[0][0], 0.2)

		require.NoError(t, c.Update(ctx, []string{"u"}, nil, []types.Metadata{{"k": "w"}}))
		res, err = c.Query(ctx, []string{"brand new text"}, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, "brand new text", res.Documents[0][0])
		assert.Equal(t, types.Metadata{"k": "w"}, res.Metadatas[0][0])
	})

	t.Run("update unknown id changes nothing", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx, []string{"original"}, nil, []string{"u"}))

		err := c.Update(ctx, []string{"u", "ghost"}, []string{"changed", "changed"}, nil)
		assert.ErrorIs(t, err, types.ErrNotFound)

		res, err := c.Query(ctx, []string{"original"}, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, "original", res.Documents[0][0])
	})

	t.Run("update validates lengths", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx, []string{"x"}, nil, []string{"u"}))
		err := c.Update(ctx, []string{"u"}, []string{"a", "b"}, nil)
		assert.ErrorIs(t, err, types.ErrInvalidInput)
		err = c.Update(ctx, nil, nil, nil)
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("ids filtered by metadata", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx,
			[]string{"alpha", "beta", "gamma"},
			[]types.Metadata{{"source": "a.txt"}, {"source": "b.txt"}, {"source": "a.txt"}},
			[]string{"a1", "b1", "a2"}))

		ids, err := c.IDs(ctx, types.Metadata{"source": "a.txt"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a1", "a2"}, ids)

		ids, err = c.IDs(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a1", "b1", "a2"}, ids)

		ids, err = c.IDs(ctx, types.Metadata{"source": "missing.txt"})
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("reset is refused by default", func(t *testing.T) {
		c, _ := fresh(t)
		require.NoError(t, c.Add(ctx, []string{"x"}, nil, nil))
		assert.ErrorIs(t, c.Reset(ctx), types.ErrResetDisabled)

		info, err := c.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, info.Count)
	})

	t.Run("concurrent adds", func(t *testing.T) {
		c, _ := fresh(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := string(rune('a' + i))
				assert.NoError(t, c.Add(ctx, []string{"text " + id}, nil, []string{id}))
			}()
		}
		wg.Wait()

		info, err := c.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8, info.Count)
	})
}
