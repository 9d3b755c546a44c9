package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/supabase-community/supabase-go"

	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
)

// SupabaseConfig holds Supabase connection configuration.
type SupabaseConfig struct {
	URL    string
	APIKey string
	// MatchFunction is the similarity RPC. Default: match_documents.
	MatchFunction string
	// Table receives uploaded chunks. Default: kb_vectors.
	Table string
}

// Supabase implements Store over a pgvector table exposed through PostgREST.
type Supabase struct {
	client        *supabase.Client
	matchFunction string
	table         string
}

var _ Store = (*Supabase)(nil)

// NewSupabase creates a Supabase-backed store.
func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("vectorstore: supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vectorstore: supabase API key is required")
	}
	if cfg.MatchFunction == "" {
		cfg.MatchFunction = "match_documents"
	}
	if cfg.Table == "" {
		cfg.Table = "kb_vectors"
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create supabase client: %w", err)
	}
	return &Supabase{client: client, matchFunction: cfg.MatchFunction, table: cfg.Table}, nil
}

type matchParams struct {
	QueryEmbedding []float32 `json:"query_embedding"`
	MatchThreshold float32   `json:"match_threshold"`
	MatchCount     int       `json:"match_count"`
}

type matchRow struct {
	ID         any            `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float32        `json:"similarity"`
}

type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Search implements Searcher by calling the match RPC.
func (s *Supabase) Search(ctx context.Context, vector []float32, threshold float32, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Provider("supabase", "search", 0, err)
	}
	raw := s.client.Rpc(s.matchFunction, "", matchParams{
		QueryEmbedding: vector,
		MatchThreshold: threshold,
		MatchCount:     topK,
	})
	matches, err := decodeMatches(raw, threshold)
	if err != nil {
		return nil, fault.Provider("supabase", "search", 0, err)
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// decodeMatches parses an RPC body. The client reports transport failures
// as an empty body and database failures as an error object.
func decodeMatches(raw string, threshold float32) ([]Match, error) {
	if raw == "" {
		return nil, errors.New("empty rpc response")
	}
	var rows []matchRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		var pgErr postgrestError
		if json.Unmarshal([]byte(raw), &pgErr) == nil && pgErr.Message != "" {
			return nil, fmt.Errorf("rpc error %s: %s", pgErr.Code, pgErr.Message)
		}
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		if r.Similarity < threshold {
			continue
		}
		matches = append(matches, Match{
			Content:    r.Content,
			Similarity: r.Similarity,
			Metadata:   metadataFrom(r.Metadata),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	return matches, nil
}

type vectorRow struct {
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
}

// Insert implements Writer.
func (s *Supabase) Insert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fault.Provider("supabase", "insert", 0, err)
	}
	rows := make([]vectorRow, len(docs))
	for i, d := range docs {
		rows[i] = vectorRow{Content: d.Content, Embedding: d.Embedding, Metadata: d.Metadata}
	}
	if _, _, err := s.client.From(s.table).Insert(rows, false, "", "minimal", "").Execute(); err != nil {
		return fault.Provider("supabase", "insert", 0, err)
	}
	return nil
}

// Close implements Store.
func (s *Supabase) Close() error { return nil }
