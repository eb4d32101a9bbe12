package djpipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/domain"
	"github.com/aircast/coordinator/internal/eventbus"
	"github.com/aircast/coordinator/internal/providers"
)

type fakeStore struct {
	history      []domain.PlayEvent
	registered   []domain.TTSArtifact
	marks        []domain.TTSStatus
	commitCalled bool
}

func (f *fakeStore) History(_ context.Context, limit int, _ *int64) ([]domain.PlayEvent, error) {
	return f.history, nil
}
func (f *fakeStore) RegisterTTS(_ context.Context, a *domain.TTSArtifact) (int64, error) {
	a.ID = int64(len(f.registered) + 1)
	f.registered = append(f.registered, *a)
	return a.ID, nil
}
func (f *fakeStore) MarkTTS(_ context.Context, _ int64, status domain.TTSStatus, _, _ int64) error {
	f.marks = append(f.marks, status)
	return nil
}
func (f *fakeStore) CommitAndLink(_ context.Context, e *domain.PlayEvent, ttsID int64) (int64, error) {
	f.commitCalled = true
	e.ID = 1
	e.TTSID = &ttsID
	return 1, nil
}

type fakeEngine struct {
	enqueued int
	failN    int
}

func (f *fakeEngine) EnqueueTTS(_ context.Context, _ string, _ []byte) error {
	f.enqueued++
	if f.enqueued <= f.failN {
		return assertErr
	}
	return nil
}

var assertErr = context.DeadlineExceeded

type fakeNow struct{ snap domain.NowSnapshot }

func (f fakeNow) Now() domain.NowSnapshot { return f.snap }

func newTestPipeline(t *testing.T, dir string, store *fakeStore, engine *fakeEngine) *Pipeline {
	t.Helper()
	bus := eventbus.New(zap.NewNop())
	llm := providers.NewLLMRegistry(zap.NewNop(), &stubLLM{text: "Here's Track One from Artist X."})
	tts := providers.NewTTSRegistry(zap.NewNop(), &stubTTS{})

	cfg := Config{
		MinSpacing:    45 * time.Second,
		MaxConcurrent: 1,
		ArtifactDir:   dir,
		Quality: QualityConfig{
			TextMinChars:    6,
			TextMaxChars:    200,
			ForbiddenTokens: []string{"ai", "artificial"},
			MinAudioBytes:   10,
		},
	}
	return New(cfg, store, engine, bus, fakeNow{}, llm, tts, zap.NewNop())
}

type stubLLM struct{ text string }

func (s *stubLLM) Name() string { return "stub" }
func (s *stubLLM) Call(_ context.Context, _ providers.LLMRequest) (providers.LLMResponse, error) {
	return providers.LLMResponse{Text: s.text}, nil
}
func (s *stubLLM) Health() providers.Health { return providers.Health{} }

type stubTTS struct{}

func (s *stubTTS) Name() string { return "stub" }
func (s *stubTTS) Call(_ context.Context, _ providers.TTSRequest) (providers.TTSResponse, error) {
	return providers.TTSResponse{Audio: []byte("RIFF0000WAVEfmt more-than-ten-bytes"), Transcript: "hi"}, nil
}
func (s *stubTTS) Health() providers.Health { return providers.Health{} }

func TestArmIsIdempotentForSameDedupKey(t *testing.T) {
	store := &fakeStore{}
	engine := &fakeEngine{}
	p := newTestPipeline(t, t.TempDir(), store, engine)

	p.Arm(1000, "Track One", "Artist X")
	p.Arm(1000, "Track One", "Artist X")

	assert.Len(t, p.Jobs(), 1)
}

func TestArmToEnqueuedEndToEnd(t *testing.T) {
	store := &fakeStore{}
	engine := &fakeEngine{}
	p := newTestPipeline(t, t.TempDir(), store, engine)

	p.Arm(1000, "Track One", "Artist X")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		jobs := p.Jobs()
		return len(jobs) == 1 && jobs[0].State == domain.JobEnqueued
	}, time.Second, 5*time.Millisecond)

	assert.True(t, store.commitCalled)
	assert.Contains(t, store.marks, domain.TTSReady)
}

func TestSpacingViolationCancelsJob(t *testing.T) {
	store := &fakeStore{history: []domain.PlayEvent{
		{Kind: domain.KindDJ, EpochMs: time.Now().UnixMilli()},
	}}
	engine := &fakeEngine{}
	p := newTestPipeline(t, t.TempDir(), store, engine)

	p.Arm(1000, "Track One", "Artist X")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		jobs := p.Jobs()
		return len(jobs) == 1 && jobs[0].State == domain.JobCancelled
	}, time.Second, 5*time.Millisecond)

	assert.False(t, store.commitCalled)
}
