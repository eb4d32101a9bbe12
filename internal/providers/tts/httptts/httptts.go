// Package httptts implements the primary/secondary TTS tiers (§4.6) as a
// plain net/http JSON client against a configured synthesis endpoint. No
// legitimate, fetchable third-party Go TTS client SDK exists in the
// example pack (see DESIGN.md); a hand-rolled client in the same style as
// the pack's own Ollama HTTP client is the grounded choice.
package httptts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aircast/coordinator/internal/providers"
)

// Provider POSTs text to a synthesis endpoint and reads back audio bytes;
// the returned transcript is the input text. Two configured instances
// (different BaseURL) make up the primary and secondary tiers.
type Provider struct {
	name       string
	baseURL    string
	voice      string
	httpClient *http.Client
	timeout    time.Duration
}

func New(name, baseURL, voice string, timeout time.Duration) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("httptts: base url must not be empty")
	}
	return &Provider{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		voice:      voice,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}, nil
}

func (p *Provider) Name() string           { return p.name }
func (p *Provider) Timeout() time.Duration { return p.timeout }

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func (p *Provider) Call(ctx context.Context, req providers.TTSRequest) (providers.TTSResponse, error) {
	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}

	body, err := json.Marshal(synthesizeRequest{Text: req.Text, Voice: voice})
	if err != nil {
		return providers.TTSResponse{}, fmt.Errorf("httptts: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return providers.TTSResponse{}, fmt.Errorf("httptts: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return providers.TTSResponse{}, fmt.Errorf("httptts: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providers.TTSResponse{}, fmt.Errorf("httptts: unexpected status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.TTSResponse{}, fmt.Errorf("httptts: read audio body: %w", err)
	}

	return providers.TTSResponse{Audio: audio, Transcript: req.Text}, nil
}

func (p *Provider) Health() providers.Health { return providers.Health{} }
