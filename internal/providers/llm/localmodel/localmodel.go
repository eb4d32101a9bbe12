// Package localmodel implements the two local-model LLM tiers (§4.6 "local
// model A, local model B") as plain net/http+encoding/json clients against
// an Ollama-compatible /api/generate endpoint. Grounded on the pack's
// Ollama embeddings provider, which is built the same way for the same
// reason: no SDK exists for this, and none is needed.
package localmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aircast/coordinator/internal/providers"
)

// Provider is one instance of the Ollama-compatible client; two configured
// instances (different BaseURL/Model) make up local-model tiers A and B.
type Provider struct {
	name       string
	baseURL    string
	model      string
	httpClient *http.Client
	timeout    time.Duration
}

// New constructs a local-model tier. name distinguishes tier A from tier B
// in logs and health counters (e.g. "local_a", "local_b").
func New(name, baseURL, model string, timeout time.Duration) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("localmodel: model must not be empty")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &Provider{
		name:       name,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}, nil
}

func (p *Provider) Name() string           { return p.name }
func (p *Provider) Timeout() time.Duration { return p.timeout }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Call issues a single non-streaming /api/generate request.
func (p *Provider) Call(ctx context.Context, req providers.LLMRequest) (providers.LLMResponse, error) {
	prompt := fmt.Sprintf(
		"Write one short, warm radio DJ line (under 200 characters) for the %s of %q by %q. "+
			"Style: %s. Never say you are an AI, model, or algorithm.",
		req.Mode, req.Title, req.Artist, req.StyleHint)

	body, err := json.Marshal(generateRequest{Model: p.model, Prompt: prompt, Stream: false})
	if err != nil {
		return providers.LLMResponse{}, fmt.Errorf("localmodel: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return providers.LLMResponse{}, fmt.Errorf("localmodel: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return providers.LLMResponse{}, fmt.Errorf("localmodel: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providers.LLMResponse{}, fmt.Errorf("localmodel: unexpected status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return providers.LLMResponse{}, fmt.Errorf("localmodel: decode response: %w", err)
	}
	return providers.LLMResponse{Text: strings.TrimSpace(out.Response)}, nil
}

func (p *Provider) Health() providers.Health { return providers.Health{} }
