package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLLM struct {
	name string
	text string
	err  error
	hits int
}

func (f *fakeLLM) Name() string { return f.name }
func (f *fakeLLM) Call(_ context.Context, _ LLMRequest) (LLMResponse, error) {
	f.hits++
	if f.err != nil {
		return LLMResponse{}, f.err
	}
	return LLMResponse{Text: f.text}, nil
}
func (f *fakeLLM) Health() Health { return Health{} }

func TestLLMRegistryAdvancesOnError(t *testing.T) {
	tier1 := &fakeLLM{name: "tier1", err: errors.New("boom")}
	tier2 := &fakeLLM{name: "tier2", text: "hello"}
	reg := NewLLMRegistry(zap.NewNop(), tier1, tier2)

	resp, tier, err := reg.Generate(context.Background(), LLMRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tier2", tier)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 1, tier1.hits)
	assert.Equal(t, 1, tier2.hits)
}

func TestLLMRegistryNeverAdvancesOnSuccess(t *testing.T) {
	tier1 := &fakeLLM{name: "tier1", text: "first"}
	tier2 := &fakeLLM{name: "tier2", text: "second"}
	reg := NewLLMRegistry(zap.NewNop(), tier1, tier2)

	resp, tier, err := reg.Generate(context.Background(), LLMRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tier1", tier)
	assert.Equal(t, "first", resp.Text)
	assert.Equal(t, 0, tier2.hits)
}

func TestLLMRegistryQualityGateAdvancesTier(t *testing.T) {
	tier1 := &fakeLLM{name: "tier1", text: "contains artificial"}
	tier2 := &fakeLLM{name: "tier2", text: "clean text"}
	reg := NewLLMRegistry(zap.NewNop(), tier1, tier2)

	gate := func(_ string, resp LLMResponse) error {
		if resp.Text == "contains artificial" {
			return errors.New("forbidden token")
		}
		return nil
	}

	resp, tier, err := reg.Generate(context.Background(), LLMRequest{}, gate)
	require.NoError(t, err)
	assert.Equal(t, "tier2", tier)
	assert.Equal(t, "clean text", resp.Text)
}

func TestLLMRegistryExhaustedReturnsError(t *testing.T) {
	tier1 := &fakeLLM{name: "tier1", err: errors.New("down")}
	reg := NewLLMRegistry(zap.NewNop(), tier1)

	_, _, err := reg.Generate(context.Background(), LLMRequest{}, nil)
	assert.Error(t, err)
}
