// Package openai implements the hosted LLM tier (§4.6 "hosted API") using
// the OpenAI chat completions API, grounded on the request-building and
// response-unwrapping shape of the pack's own OpenAI LLM provider.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/aircast/coordinator/internal/providers"
)

// Provider calls a hosted chat-completions endpoint to write a short,
// human-sounding DJ line for an upcoming track.
type Provider struct {
	client  oai.Client
	model   string
	timeout time.Duration
}

// New constructs the hosted tier. apiKey must be non-empty; it is read by
// the caller from the tier's configured environment variable, never from
// YAML (§6).
func New(apiKey, model string, timeout time.Duration) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key must not be empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	return &Provider{
		client:  oai.NewClient(reqOpts...),
		model:   model,
		timeout: timeout,
	}, nil
}

func (p *Provider) Name() string { return "hosted" }

func (p *Provider) Timeout() time.Duration { return p.timeout }

// Call asks the model for one short spoken-segment line. The system prompt
// carries the "sound human" guardrails directly; the registry's quality
// gate re-checks them mechanically afterward as a backstop.
func (p *Provider) Call(ctx context.Context, req providers.LLMRequest) (providers.LLMResponse, error) {
	system := "You are a warm, concise radio DJ. Write one short spoken line " +
		"introducing the next track. Never mention that you are an AI, a " +
		"model, or software. Keep it under 200 characters."
	user := fmt.Sprintf("Mode: %s. Track: %q by %q. Style: %s.", req.Mode, req.Title, req.Artist, req.StyleHint)

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
		Temperature:          param.NewOpt(0.9),
		MaxCompletionTokens:  param.NewOpt(int64(80)),
	})
	if err != nil {
		return providers.LLMResponse{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return providers.LLMResponse{}, fmt.Errorf("openai: empty choices in response")
	}
	return providers.LLMResponse{Text: resp.Choices[0].Message.Content}, nil
}

func (p *Provider) Health() providers.Health { return providers.Health{} }
