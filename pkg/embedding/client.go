// Package embedding provides a client for OpenAI-compatible embedding APIs.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalyst-cli/internal/resilience"
)

// Client embeds text.
type Client interface {
	Embed(ctx context.Context, inputs []string) (*Response, error)
}

// Response holds one vector per input, in input order.
type Response struct {
	Vectors [][]float32
	Tokens  int
}

// Option configures the embedding client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing or a compatible provider).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithDimensions asks the provider to truncate vectors to n dimensions.
// The corpus embeddings must have been produced with the same setting.
func WithDimensions(n int) Option {
	return func(c *httpClient) {
		c.dimensions = n
	}
}

type httpClient struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	http       *http.Client
}

// NewClient creates an embedding client for model.
func NewClient(apiKey, model string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.openai.com/v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *httpClient) Embed(ctx context.Context, inputs []string) (*Response, error) {
	if len(inputs) == 0 {
		return nil, eris.New("embedding: no inputs")
	}

	payload, err := json.Marshal(embedRequest{Model: c.model, Input: inputs, Dimensions: c.dimensions})
	if err != nil {
		return nil, eris.Wrap(err, "embedding: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "embedding: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "embedding: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "embedding: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := eris.Errorf("embedding: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 300))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "embedding: decode response")
	}
	if len(parsed.Data) != len(inputs) {
		return nil, eris.Errorf("embedding: got %d vectors for %d inputs", len(parsed.Data), len(inputs))
	}

	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	out := &Response{Vectors: make([][]float32, len(parsed.Data)), Tokens: parsed.Usage.TotalTokens}
	if out.Tokens == 0 {
		out.Tokens = parsed.Usage.PromptTokens
	}
	for i, d := range parsed.Data {
		if len(d.Embedding) == 0 {
			return nil, eris.Errorf("embedding: empty vector at index %d", d.Index)
		}
		out.Vectors[i] = d.Embedding
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
