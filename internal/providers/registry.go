package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LLMRegistry holds an ordered list of LLM tiers and iterates them on
// failure, never on success (§4.6). The terminal tier is expected to be a
// template provider that never fails.
type LLMRegistry struct {
	logger  *zap.Logger
	tiers   []LLMProvider
	mu      sync.Mutex
	health  map[string]*Health
}

func NewLLMRegistry(logger *zap.Logger, tiers ...LLMProvider) *LLMRegistry {
	r := &LLMRegistry{logger: logger, tiers: tiers, health: make(map[string]*Health)}
	for _, t := range tiers {
		r.health[t.Name()] = &Health{}
	}
	return r
}

// Generate tries each tier in order, advancing on any error from the
// provider itself OR from the caller-supplied quality gate, and returning
// the first tier whose output passes. qualityGate receives the tier's name
// so template-tier failures (which should never happen) are distinguishable
// from upstream provider failures in logs.
func (r *LLMRegistry) Generate(ctx context.Context, req LLMRequest, qualityGate func(tier string, resp LLMResponse) error) (LLMResponse, string, error) {
	var lastErr error
	for _, tier := range r.tiers {
		resp, err := r.callTier(ctx, tier, req)
		if err != nil {
			lastErr = err
			r.logger.Debug("llm tier failed, advancing", zap.String("tier", tier.Name()), zap.Error(err))
			continue
		}
		if qualityGate != nil {
			if err := qualityGate(tier.Name(), resp); err != nil {
				lastErr = err
				r.recordFailure(tier.Name(), err)
				r.logger.Debug("llm tier failed quality gate, advancing", zap.String("tier", tier.Name()), zap.Error(err))
				continue
			}
		}
		return resp, tier.Name(), nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no llm tiers configured")
	}
	return LLMResponse{}, "", fmt.Errorf("llm provider exhausted: %w", lastErr)
}

func (r *LLMRegistry) callTier(ctx context.Context, tier LLMProvider, req LLMRequest) (LLMResponse, error) {
	timeout := 20 * time.Second
	if tt, ok := tier.(tierTimeout); ok {
		timeout = tt.Timeout()
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := tier.Call(callCtx, req)
	if err != nil {
		r.recordFailure(tier.Name(), err)
		return LLMResponse{}, err
	}
	r.recordSuccess(tier.Name())
	return resp, nil
}

func (r *LLMRegistry) recordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.health[name]; ok {
		h.Successes++
	}
}

func (r *LLMRegistry) recordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.health[name]; ok {
		h.Failures++
		h.LastError = err.Error()
	}
}

// HealthOf reports the recorded counters for a named tier, for the debug
// endpoint.
func (r *LLMRegistry) HealthOf(name string) Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.health[name]; ok {
		return *h
	}
	return Health{}
}

// TTSRegistry is LLMRegistry's synthesis-side twin. Duplicated rather than
// made generic: the two families' request/response shapes and quality
// gates differ enough that a shared generic type would need its own
// type-switch machinery, for no real savings at two instantiations.
type TTSRegistry struct {
	logger *zap.Logger
	tiers  []TTSProvider
	mu     sync.Mutex
	health map[string]*Health
}

func NewTTSRegistry(logger *zap.Logger, tiers ...TTSProvider) *TTSRegistry {
	r := &TTSRegistry{logger: logger, tiers: tiers, health: make(map[string]*Health)}
	for _, t := range tiers {
		r.health[t.Name()] = &Health{}
	}
	return r
}

func (r *TTSRegistry) Synthesize(ctx context.Context, req TTSRequest, qualityGate func(tier string, resp TTSResponse) error) (TTSResponse, string, error) {
	var lastErr error
	for _, tier := range r.tiers {
		resp, err := r.callTier(ctx, tier, req)
		if err != nil {
			lastErr = err
			r.logger.Debug("tts tier failed, advancing", zap.String("tier", tier.Name()), zap.Error(err))
			continue
		}
		if qualityGate != nil {
			if err := qualityGate(tier.Name(), resp); err != nil {
				lastErr = err
				r.recordFailure(tier.Name(), err)
				r.logger.Debug("tts tier failed quality gate, advancing", zap.String("tier", tier.Name()), zap.Error(err))
				continue
			}
		}
		return resp, tier.Name(), nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no tts tiers configured")
	}
	return TTSResponse{}, "", fmt.Errorf("tts provider exhausted: %w", lastErr)
}

func (r *TTSRegistry) callTier(ctx context.Context, tier TTSProvider, req TTSRequest) (TTSResponse, error) {
	timeout := 60 * time.Second
	if tt, ok := tier.(tierTimeout); ok {
		timeout = tt.Timeout()
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := tier.Call(callCtx, req)
	if err != nil {
		r.recordFailure(tier.Name(), err)
		return TTSResponse{}, err
	}
	r.recordSuccess(tier.Name())
	return resp, nil
}

func (r *TTSRegistry) recordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.health[name]; ok {
		h.Successes++
	}
}

func (r *TTSRegistry) recordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.health[name]; ok {
		h.Failures++
		h.LastError = err.Error()
	}
}

func (r *TTSRegistry) HealthOf(name string) Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.health[name]; ok {
		return *h
	}
	return Health{}
}
