// Package embedding turns text into vectors for the knowledge router and the
// knowledge-base uploader.
//
// Providers: Cohere (the production default), any OpenAI-compatible
// embeddings endpoint, and Noop, which disables vector search entirely.
package embedding

import "context"

// Embedder produces a vector for a search query.
type Embedder interface {
	// Embed returns the query embedding. A nil vector with a nil error means
	// embedding is not available and vector search should be skipped.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DocumentEmbedder produces vectors for documents being indexed. Providers
// that distinguish query and document embeddings use the document mode here.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider is implemented by every concrete embedder in this package.
type Provider interface {
	Embedder
	DocumentEmbedder
}

// Noop disables embedding. Embed returns (nil, nil).
type Noop struct{}

var _ Provider = Noop{}

// Embed implements Embedder.
func (Noop) Embed(context.Context, string) ([]float32, error) { return nil, nil }

// EmbedDocuments implements DocumentEmbedder.
func (Noop) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}
