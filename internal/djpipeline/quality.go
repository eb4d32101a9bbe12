package djpipeline

import (
	"fmt"
	"strings"

	"github.com/aircast/coordinator/internal/coreerrors"
)

// QualityConfig mirrors config.QualityConfig; duplicated here as a narrow
// struct so this package does not import internal/config (avoids a
// dependency cycle risk and keeps the gate testable with literal values).
type QualityConfig struct {
	TextMinChars    int
	TextMaxChars    int
	ForbiddenTokens []string
	MinAudioBytes   int
}

// genericArtistTokens are names too generic to anchor the artist-substring
// gate against (§4.5 rule 3: "when artist is non-empty and non-generic").
var genericArtistTokens = map[string]bool{
	"various":         true,
	"various artists": true,
	"unknown":         true,
	"unknown artist":  true,
}

// checkText runs the three ordered quality gates from §4.5 against
// generated DJ line text. The first failing gate's error is returned.
func checkText(cfg QualityConfig, text, artist string) error {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < cfg.TextMinChars || len(trimmed) > cfg.TextMaxChars {
		return fmt.Errorf("%w: text length %d out of [%d,%d]", coreerrors.ErrQualityReject, len(trimmed), cfg.TextMinChars, cfg.TextMaxChars)
	}

	lower := strings.ToLower(trimmed)
	for _, token := range cfg.ForbiddenTokens {
		if token == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(token)) {
			return fmt.Errorf("%w: contains forbidden token %q", coreerrors.ErrQualityReject, token)
		}
	}

	if artist != "" && !genericArtistTokens[strings.ToLower(artist)] {
		if !strings.Contains(lower, strings.ToLower(artist)) {
			return fmt.Errorf("%w: missing artist substring %q", coreerrors.ErrQualityReject, artist)
		}
	}

	return nil
}

// checkAudio validates a synthesized artifact before registration (§4.5):
// non-empty, large enough, and carrying a recognizable audio container's
// magic bytes.
func checkAudio(cfg QualityConfig, audio []byte) error {
	if len(audio) < cfg.MinAudioBytes {
		return fmt.Errorf("%w: audio size %d below minimum %d", coreerrors.ErrQualityReject, len(audio), cfg.MinAudioBytes)
	}
	if !hasAudioMagic(audio) {
		return fmt.Errorf("%w: unrecognized audio container", coreerrors.ErrQualityReject)
	}
	return nil
}

// hasAudioMagic recognizes the WAV (RIFF....WAVE) and MP3 (ID3 tag or a
// frame sync byte pair) containers the pipeline's TTS tiers can produce.
func hasAudioMagic(b []byte) bool {
	if len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE" {
		return true
	}
	if len(b) >= 3 && string(b[0:3]) == "ID3" {
		return true
	}
	if len(b) >= 2 && b[0] == 0xFF && (b[1]&0xE0) == 0xE0 {
		return true
	}
	return false
}
