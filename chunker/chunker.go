// Package chunker splits raw text into bounded-size retrievable segments.
//
// Segmentation is three-level: paragraphs on a literal "\n\n", sentences on a
// literal ". ", then a greedy pack of whitespace-delimited words. Words are
// never split, so a single word longer than the chunk size becomes its own
// oversized chunk.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"llamarag/types"
)

// DefaultChunkSize is the chunk size in characters used when none is given.
const DefaultChunkSize = 500

const (
	paragraphSep = "\n\n"
	sentenceSep  = ". "
)

// chunkNamespace scopes chunk ids so they never collide with other SHA1 uuids.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("llamarag/chunk"))

// Split returns the ordered chunks of text. chunkSize <= 0 means DefaultChunkSize.
func Split(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var chunks []string
	for _, paragraph := range strings.Split(text, paragraphSep) {
		for _, sentence := range strings.Split(paragraph, sentenceSep) {
			chunks = packWords(chunks, strings.Fields(sentence), chunkSize)
		}
	}
	return chunks
}

// packWords greedily appends words to a buffer, flushing to out whenever the
// next word plus one separator would exceed size.
func packWords(out []string, words []string, size int) []string {
	var (
		buf    []string
		length int
	)
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if length+n+1 > size && len(buf) > 0 {
			out = append(out, strings.Join(buf, " "))
			buf = buf[:0]
			length = 0
		}
		buf = append(buf, word)
		length += n + 1
	}
	if len(buf) > 0 {
		out = append(out, strings.Join(buf, " "))
	}
	return out
}

// ChunkID derives a stable id from the source identifier and sequence index.
// Re-ingesting the same document yields the same ids.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", source, index))).String()
}

// Chunks splits text and wraps each piece as a typed chunk of source.
func Chunks(source, text string, chunkSize int) []types.Chunk {
	parts := Split(text, chunkSize)
	chunks := make([]types.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = types.Chunk{
			ID:     ChunkID(source, i),
			Text:   p,
			Source: source,
			Index:  i,
		}
	}
	return chunks
}
