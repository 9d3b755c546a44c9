// Package vectorstore is the vector similarity collaborator behind the
// knowledge router and the knowledge-base uploader.
//
// Supabase (pgvector behind a match_documents RPC) is the hosted datastore;
// Qdrant is offered for self-hosted deployments. Noop disables search.
package vectorstore

import (
	"context"
	"strings"
)

// DefaultThreshold is the minimum similarity a match must reach.
const DefaultThreshold float32 = 0.3

// DefaultTopK is the number of neighbours requested per query.
const DefaultTopK = 5

// Metadata describes where a chunk of knowledge came from.
type Metadata struct {
	Source     string   `json:"source,omitempty"`
	Title      string   `json:"title,omitempty"`
	URL        string   `json:"url,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Intent     string   `json:"intent,omitempty"`
	Path       string   `json:"path,omitempty"`
	ItemIndex  int      `json:"itemIndex"`
	ChunkIndex int      `json:"chunkIndex"`
}

// Match is one ranked search result.
type Match struct {
	Content    string   `json:"content"`
	Similarity float32  `json:"similarity"`
	Metadata   Metadata `json:"metadata"`
}

// Document is a chunk to be indexed.
type Document struct {
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// Searcher returns the topK nearest neighbours at or above threshold,
// ranked by descending similarity.
type Searcher interface {
	Search(ctx context.Context, vector []float32, threshold float32, topK int) ([]Match, error)
}

// Writer indexes documents.
type Writer interface {
	Insert(ctx context.Context, docs []Document) error
}

// Store is implemented by every backend in this package.
type Store interface {
	Searcher
	Writer
	Close() error
}

// Noop returns no matches and discards writes.
type Noop struct{}

var _ Store = Noop{}

// Search implements Searcher.
func (Noop) Search(context.Context, []float32, float32, int) ([]Match, error) { return nil, nil }

// Insert implements Writer.
func (Noop) Insert(context.Context, []Document) error { return nil }

// Close implements Store.
func (Noop) Close() error { return nil }

// keywordsFrom accepts the shapes keywords take in stored metadata: a JSON
// array or a single comma-separated string.
func keywordsFrom(v any) []string {
	switch kw := v.(type) {
	case []string:
		return kw
	case []any:
		out := make([]string, 0, len(kw))
		for _, k := range kw {
			if s, ok := k.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
		return out
	}
	return nil
}

// metadataFrom converts a loosely typed metadata object.
func metadataFrom(m map[string]any) Metadata {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	num := func(k string) int {
		switch n := m[k].(type) {
		case float64:
			return int(n)
		case int64:
			return int(n)
		case int:
			return n
		}
		return 0
	}
	return Metadata{
		Source:     str("source"),
		Title:      str("title"),
		URL:        str("url"),
		Summary:    str("summary"),
		Keywords:   keywordsFrom(m["keywords"]),
		Intent:     str("intent"),
		Path:       str("path"),
		ItemIndex:  num("itemIndex"),
		ChunkIndex: num("chunkIndex"),
	}
}
