package types

// Metadata is the per-chunk key/value set stored next to the text.
// Filters (`where`) match it by exact key/value equality.
type Metadata map[string]string

// MetaSource is the metadata key holding the originating document path.
const MetaSource = "source"

// Matches reports whether every key in where is present in m with the same value.
// An empty filter matches everything.
func (m Metadata) Matches(where Metadata) bool {
	for k, v := range where {
		got, ok := m[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

// Clone returns a copy that never aliases m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Chunk is one contiguous span of a source document.
type Chunk struct {
	ID     string // unique within the collection
	Text   string
	Source string // originating document path
	Index  int    // position within source
}

// QueryResult mirrors a collection query: one inner slice per query text,
// nearest first.
type QueryResult struct {
	IDs       [][]string   `json:"ids"`
	Documents [][]string   `json:"documents"`
	Metadatas [][]Metadata `json:"metadatas"`
	Distances [][]float64  `json:"distances"`
}

// NewQueryResult allocates an empty result for n query texts.
func NewQueryResult(n int) *QueryResult {
	r := &QueryResult{
		IDs:       make([][]string, n),
		Documents: make([][]string, n),
		Metadatas: make([][]Metadata, n),
		Distances: make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		r.IDs[i] = []string{}
		r.Documents[i] = []string{}
		r.Metadatas[i] = []Metadata{}
		r.Distances[i] = []float64{}
	}
	return r
}

// Append adds one match to the list of query qi.
func (r *QueryResult) Append(qi int, id, doc string, md Metadata, distance float64) {
	r.IDs[qi] = append(r.IDs[qi], id)
	r.Documents[qi] = append(r.Documents[qi], doc)
	r.Metadatas[qi] = append(r.Metadatas[qi], md)
	r.Distances[qi] = append(r.Distances[qi], distance)
}

type CollectionInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Settings are the generation knobs adjustable at runtime.
type Settings struct {
	TopK      int `json:"k"`
	MaxTokens int `json:"max_tokens"`
}
