package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bdobrica/OrthoBot/common/redact"
	"github.com/bdobrica/OrthoBot/common/version"
	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
)

const (
	defaultCohereBase    = "https://api.cohere.ai/v1"
	defaultCohereModel   = "embed-english-v3.0"
	defaultCohereTimeout = 30 * time.Second

	inputTypeQuery    = "search_query"
	inputTypeDocument = "search_document"
)

// CohereConfig configures the Cohere embed client.
type CohereConfig struct {
	APIKey string
	// BaseURL defaults to https://api.cohere.ai/v1.
	BaseURL string
	// Model defaults to embed-english-v3.0 (1024 dimensions).
	Model   string
	Timeout time.Duration
}

// Cohere implements Provider using the Cohere /embed API.
type Cohere struct {
	client *resty.Client
	model  string
	apiKey string
}

var _ Provider = (*Cohere)(nil)

// NewCohere creates a Cohere embedder. It is safe for concurrent use.
func NewCohere(cfg CohereConfig) *Cohere {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCohereBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultCohereModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultCohereTimeout
	}

	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", version.UserAgent()).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout)

	return &Cohere{client: c, model: cfg.Model, apiKey: cfg.APIKey}
}

type cohereRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type cohereResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Message    string      `json:"message,omitempty"`
}

// Embed implements Embedder.
func (c *Cohere) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	vecs, err := c.embed(ctx, []string{text}, inputTypeQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments implements DocumentEmbedder.
func (c *Cohere) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embed(ctx, texts, inputTypeDocument)
}

func (c *Cohere) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	reqBody := cohereRequest{Model: c.model, Texts: texts, InputType: inputType}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/embed")
	if err != nil {
		return nil, fault.Provider("cohere", "embed", 0, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fault.Provider("cohere", "embed", resp.StatusCode(),
			errors.New(redact.String(resp.String(), c.apiKey)))
	}

	var cr cohereResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return nil, fault.Provider("cohere", "embed", resp.StatusCode(), fmt.Errorf("decode response: %w", err))
	}
	if len(cr.Embeddings) != len(texts) {
		return nil, fault.Provider("cohere", "embed", resp.StatusCode(),
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(cr.Embeddings)))
	}
	return cr.Embeddings, nil
}
