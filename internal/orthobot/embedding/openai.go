package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bdobrica/OrthoBot/common/redact"
	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
)

const (
	defaultOpenAIBase    = "https://api.openai.com/v1"
	defaultOpenAIModel   = "text-embedding-3-small"
	defaultOpenAITimeout = 30 * time.Second
)

// OpenAIConfig configures the OpenAI-compatible embedding provider.
type OpenAIConfig struct {
	// APIKey is the bearer token for authentication.
	APIKey string

	// BaseURL overrides the API endpoint. Defaults to https://api.openai.com/v1
	// when empty.
	BaseURL string

	// Model is the embedding model to use. Defaults to text-embedding-3-small.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration
}

// OpenAI implements Provider using the OpenAI Embeddings API. Queries and
// documents share one embedding space, so both calls hit the same endpoint.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates an embedder backed by the OpenAI (or compatible)
// embeddings API. The returned embedder is safe for concurrent use.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOpenAITimeout
	}
	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI embeddings wire types ---

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Data  []openAIData `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type openAIData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// Embed implements Embedder.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments implements DocumentEmbedder.
func (e *OpenAI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	data, err := json.Marshal(openAIRequest{Input: texts, Model: e.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("embedding openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.cfg.BaseURL+"/embeddings",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding openai: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fault.Provider("openai", "embed", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Provider("openai", "embed", resp.StatusCode, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode >= 400 {
		return nil, fault.Provider("openai", "embed", resp.StatusCode,
			errors.New(redact.String(string(respBody), e.cfg.APIKey)))
	}

	var embResp openAIResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fault.Provider("openai", "embed", resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if embResp.Error != nil {
		return nil, fault.Provider("openai", "embed", resp.StatusCode,
			fmt.Errorf("API error (%s): %s", embResp.Error.Type, embResp.Error.Message))
	}
	if len(embResp.Data) != len(texts) {
		return nil, fault.Provider("openai", "embed", resp.StatusCode,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embResp.Data)))
	}

	sort.Slice(embResp.Data, func(i, j int) bool { return embResp.Data[i].Index < embResp.Data[j].Index })
	out := make([][]float32, len(embResp.Data))
	for i, d := range embResp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
