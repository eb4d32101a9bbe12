// Package template implements the terminal LLM tier (§4.6): a never-fails
// fallback that fills {title}/{artist} placeholders into a configured set
// of human-sounding lines. It guarantees the DJ pipeline always has some
// text to work with, even with every upstream provider down.
package template

import (
	"context"
	"strings"

	"github.com/aircast/coordinator/internal/providers"
)

// Provider never returns an error from Call; it is the pipeline's backstop.
type Provider struct {
	intros []string
	outros []string
}

func New(intros, outros []string) *Provider {
	if len(intros) == 0 {
		intros = []string{"Up next, {artist} with {title}."}
	}
	if len(outros) == 0 {
		outros = []string{"That was {title} by {artist}."}
	}
	return &Provider{intros: intros, outros: outros}
}

func (p *Provider) Name() string { return "template" }

func (p *Provider) Call(_ context.Context, req providers.LLMRequest) (providers.LLMResponse, error) {
	pool := p.intros
	if req.Mode == "outro" {
		pool = p.outros
	}
	line := pool[styleIndex(req.StyleHint, len(pool))]

	replacer := strings.NewReplacer("{title}", req.Title, "{artist}", req.Artist)
	return providers.LLMResponse{Text: replacer.Replace(line)}, nil
}

func (p *Provider) Health() providers.Health { return providers.Health{} }

// styleIndex derives a deterministic pool index from the style hint so the
// same style always lands on the same template, without pulling in a
// randomness dependency for a two-branch pool.
func styleIndex(hint string, n int) int {
	if n <= 1 {
		return 0
	}
	sum := 0
	for _, r := range hint {
		sum += int(r)
	}
	return sum % n
}
