package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/OrthoBot/common/redact"
	"github.com/bdobrica/OrthoBot/common/version"
	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is the chat model used when none is configured.
	DefaultModel   = "llama-3.3-70b-versatile"
	defaultTimeout = 30 * time.Second
	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 512
)

// Config configures the OpenAI-compatible completion client.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Any OpenAI-compatible server works
	// (Groq, OpenAI, Ollama). Defaults to DefaultBaseURL.
	BaseURL string

	// Model is the chat model to use. Defaults to DefaultModel.
	Model string

	// Provider names the upstream in errors and logs. Defaults to "groq".
	Provider string

	// Timeout is the HTTP client timeout. Per-call deadlines come from ctx.
	Timeout time.Duration
}

// Client implements Completer over the /chat/completions API.
// It is safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
}

var _ Completer = (*Client)(nil)

// New returns a Client with defaults applied.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Provider == "" {
		cfg.Provider = "groq"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// Complete sends the prompt and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]oaiMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, oaiMessage{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, oaiMessage{Role: m.Role, Content: m.Content})
	}

	data, err := json.Marshal(oaiRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return "", fmt.Errorf("llm: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", c.fail(0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.fail(resp.StatusCode, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.fail(resp.StatusCode, errors.New(truncate(redact.String(string(respBody), c.cfg.APIKey), maxErrorBody)))
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return "", c.fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if oaiResp.Error != nil {
		return "", c.fail(resp.StatusCode, fmt.Errorf("API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message))
	}
	if len(oaiResp.Choices) == 0 {
		return "", c.fail(resp.StatusCode, errors.New("no choices returned"))
	}
	return strings.TrimSpace(oaiResp.Choices[0].Message.Content), nil
}

func (c *Client) fail(status int, err error) error {
	return fault.Provider(c.cfg.Provider, "complete", status, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
