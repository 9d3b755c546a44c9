package knowledge

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bdobrica/OrthoBot/internal/orthobot/embedding"
	"github.com/bdobrica/OrthoBot/internal/orthobot/vectorstore"
)

// Kind tags which path produced a Lookup.
type Kind string

const (
	KindCurated Kind = "curated"
	KindVector  Kind = "vector"
	KindNone    Kind = "none"
	// KindDegraded means a collaborator failed and the lookup fell back to
	// an empty context.
	KindDegraded Kind = "degraded"
)

// Lookup is the router's answer for one query.
type Lookup struct {
	// Context is the text injected into the prompt. Empty when nothing
	// relevant was found.
	Context string
	// Matches holds the ranked vector results, nil otherwise.
	Matches []vectorstore.Match
	// Entry is set when the curated catalogue answered.
	Entry *Entry
	Kind  Kind
}

// HasContent reports whether the lookup produced prompt context.
func (l Lookup) HasContent() bool { return l.Context != "" }

// Router picks between the curated catalogue and vector search.
//
// Lookup strategy:
//  1. Curated catalogue when the query names the practice's identity.
//  2. Otherwise embed the query and search the vector store.
//  3. A nil embedding (Noop embedder) skips search entirely.
//
// Failures in step 2 are logged and degrade to an empty context; a lookup
// never fails the conversation.
type Router struct {
	Catalogue *Catalogue
	Embedder  embedding.Embedder
	Searcher  vectorstore.Searcher
	// Threshold is the minimum similarity (default 0.3).
	Threshold float32
	// TopK is the number of neighbours requested (default 5).
	TopK int
	// EmbedTimeout bounds the embed and search calls together (default 10s).
	EmbedTimeout time.Duration
}

// DefaultEmbedTimeout bounds the vector path of a lookup.
const DefaultEmbedTimeout = 10 * time.Second

// Lookup resolves query to prompt context.
func (r *Router) Lookup(ctx context.Context, query string) Lookup {
	if r.Catalogue != nil {
		if e := r.Catalogue.Match(query); e != nil {
			return Lookup{
				Context: e.Title + "\n" + e.Content,
				Entry:   e,
				Kind:    KindCurated,
			}
		}
	}
	if r.Embedder == nil || r.Searcher == nil {
		return Lookup{Kind: KindNone}
	}
	return r.vectorLookup(ctx, query)
}

func (r *Router) vectorLookup(ctx context.Context, query string) Lookup {
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = vectorstore.DefaultThreshold
	}
	topK := r.TopK
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	timeout := r.EmbedTimeout
	if timeout <= 0 {
		timeout = DefaultEmbedTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vec, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("knowledge: embed query failed", "err", err)
		return Lookup{Kind: KindDegraded}
	}
	if vec == nil {
		return Lookup{Kind: KindNone}
	}

	matches, err := r.Searcher.Search(ctx, vec, threshold, topK)
	if err != nil {
		slog.Warn("knowledge: vector search failed", "err", err)
		return Lookup{Kind: KindDegraded}
	}

	kept := make([]vectorstore.Match, 0, len(matches))
	for _, m := range matches {
		if m.Similarity >= threshold {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return Lookup{Kind: KindNone}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Similarity > kept[j].Similarity })
	if len(kept) > topK {
		kept = kept[:topK]
	}

	contents := make([]string, len(kept))
	for i, m := range kept {
		contents[i] = m.Content
	}
	return Lookup{
		Context: strings.Join(contents, "\n"),
		Matches: kept,
		Kind:    KindVector,
	}
}
