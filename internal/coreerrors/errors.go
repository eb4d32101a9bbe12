// Package coreerrors declares the semantic error kinds shared across the
// coordination core. Callers compare with errors.Is, never string matching.
package coreerrors

import "errors"

var (
	ErrDuplicateEvent    = errors.New("duplicate event")
	ErrNotReady          = errors.New("tts artifact not ready")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrUnavailable       = errors.New("store unavailable")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrEngineRejected    = errors.New("engine rejected request")
	ErrTimeout           = errors.New("timeout")
	ErrQualityReject     = errors.New("quality gate rejected text")
	ErrProviderExhausted = errors.New("all provider tiers exhausted")
	ErrConfigError       = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
)
