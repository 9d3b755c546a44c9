package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
)

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	// URL is the Qdrant gRPC address (e.g. "https://example.qdrant.io:6334").
	URL string
	// Collection defaults to kb_vectors.
	Collection string
	// APIKey is optional.
	APIKey string
}

// Qdrant implements Store over a Qdrant collection with cosine distance.
type Qdrant struct {
	client     *qdrant.Client
	collection string
}

var _ Store = (*Qdrant)(nil)

// NewQdrant creates a Qdrant-backed store.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("vectorstore: qdrant url is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "kb_vectors"
	}

	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create qdrant client: %w", err)
	}
	return &Qdrant{client: client, collection: cfg.Collection}, nil
}

// parseQdrantURL extracts host, port and scheme. A bare host is treated as
// https on the default gRPC port 6334.
func parseQdrantURL(raw string) (string, int, bool, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("vectorstore: parse qdrant url: %w", err)
	}
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return "", 0, false, fmt.Errorf("vectorstore: invalid qdrant port: %w", err)
		}
		port = p
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}

// EnsureCollection creates the collection with the given vector size when it
// does not exist yet.
func (q *Qdrant) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fault.Provider("qdrant", "collection exists", 0, err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fault.Provider("qdrant", "create collection", 0, err)
	}
	return nil
}

// Search implements Searcher.
func (q *Qdrant) Search(ctx context.Context, vector []float32, threshold float32, topK int) ([]Match, error) {
	limit := uint64(topK)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fault.Provider("qdrant", "search", 0, err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		if p.Score < threshold {
			continue
		}
		m := Match{Similarity: p.Score}
		fields := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			switch k {
			case "content":
				m.Content = v.GetStringValue()
			case "itemIndex", "chunkIndex":
				fields[k] = v.GetIntegerValue()
			default:
				fields[k] = v.GetStringValue()
			}
		}
		m.Metadata = metadataFrom(fields)
		matches = append(matches, m)
	}
	return matches, nil
}

// Insert implements Writer. Points get random UUIDs; re-uploading a
// knowledge base appends rather than replaces.
func (q *Qdrant) Insert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(d.Embedding...),
			Payload: qdrant.NewValueMap(qdrantPayload(d)),
		}
	}
	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fault.Provider("qdrant", "upsert", 0, err)
	}
	return nil
}

// qdrantPayload flattens a document into scalar payload fields.
func qdrantPayload(d Document) map[string]any {
	return map[string]any{
		"content":    d.Content,
		"source":     d.Metadata.Source,
		"title":      d.Metadata.Title,
		"url":        d.Metadata.URL,
		"summary":    d.Metadata.Summary,
		"keywords":   strings.Join(d.Metadata.Keywords, ", "),
		"intent":     d.Metadata.Intent,
		"path":       d.Metadata.Path,
		"itemIndex":  int64(d.Metadata.ItemIndex),
		"chunkIndex": int64(d.Metadata.ChunkIndex),
	}
}

// Close implements Store.
func (q *Qdrant) Close() error { return q.client.Close() }
