// Package offline implements the terminal TTS tier (§4.6): an
// always-succeeds synthesizer producing a minimal valid WAV container so
// the pipeline never stalls for want of audio, at the cost of quality.
package offline

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/aircast/coordinator/internal/providers"
)

const (
	sampleRate = 8000
	bitsPerSample = 16
	channels      = 1
)

// Provider writes a silent WAV whose duration is derived from the input
// text length (roughly 80ms per character, floored at half a second).
type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "offline" }

func (p *Provider) Call(_ context.Context, req providers.TTSRequest) (providers.TTSResponse, error) {
	durationMs := len(req.Text) * 80
	if durationMs < 500 {
		durationMs = 500
	}
	numSamples := sampleRate * durationMs / 1000

	audio := buildSilentWAV(numSamples)
	return providers.TTSResponse{Audio: audio, Transcript: req.Text}, nil
}

func (p *Provider) Health() providers.Health { return providers.Health{} }

// buildSilentWAV writes a canonical 44-byte-header PCM WAV of silence.
func buildSilentWAV(numSamples int) []byte {
	dataSize := numSamples * channels * (bitsPerSample / 8)
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // PCM fmt chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM format
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}
