// Package djpipeline implements C5: a proactive, idempotent per-track state
// machine that composes an LLM call, a TTS synthesis, a store write, and an
// engine enqueue, with fallback tiering and quota discipline (§4.5). The
// shape — a mutex-guarded map of in-flight jobs drained by a bounded pool of
// workers — generalizes C1/C3's single-owner idiom to a small worker pool
// sized by max_concurrent_jobs.
package djpipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/coreerrors"
	"github.com/aircast/coordinator/internal/domain"
	"github.com/aircast/coordinator/internal/eventbus"
	"github.com/aircast/coordinator/internal/providers"
)

// Store is the subset of store.Store the pipeline depends on.
type Store interface {
	History(ctx context.Context, limit int, before *int64) ([]domain.PlayEvent, error)
	RegisterTTS(ctx context.Context, a *domain.TTSArtifact) (int64, error)
	MarkTTS(ctx context.Context, id int64, status domain.TTSStatus, sizeBytes, durationMs int64) error
	CommitAndLink(ctx context.Context, e *domain.PlayEvent, ttsID int64) (int64, error)
}

// Engine is the subset of C1 the pipeline depends on.
type Engine interface {
	EnqueueTTS(ctx context.Context, path string, body []byte) error
}

// NowReader reports the currently playing track, for the timeliness check
// (§4.5: "if the following track is now current, transition to cancelled").
type NowReader interface {
	Now() domain.NowSnapshot
}

// Config tunes spacing, concurrency, the style-hint pool, the artifact
// directory and the quality gates (§4.5, §6).
type Config struct {
	MinSpacing    time.Duration
	MaxConcurrent int
	StyleHints    []string
	ArtifactDir   string
	Quality       QualityConfig
}

// arm is one queued request to produce an intro/outro for a track.
type arm struct {
	dedupKey      string
	targetEpochMs int64
	title         string
	artist        string
	mode          domain.TTSMode
}

// Pipeline is C5: it exclusively owns the DJJob set (§3 Ownership).
type Pipeline struct {
	cfg     Config
	store   Store
	engine  Engine
	bus     *eventbus.Bus
	now     NowReader
	llm     *providers.LLMRegistry
	tts     *providers.TTSRegistry
	logger  *zap.Logger

	mu   sync.Mutex
	jobs map[string]*domain.DJJob

	queue chan arm
	sem   chan struct{}

	nextStyle int
}

func New(cfg Config, store Store, engine Engine, bus *eventbus.Bus, now NowReader, llm *providers.LLMRegistry, tts *providers.TTSRegistry, logger *zap.Logger) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MinSpacing == 0 {
		cfg.MinSpacing = 45 * time.Second
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = "."
	}
	return &Pipeline{
		cfg:    cfg,
		store:  store,
		engine: engine,
		bus:    bus,
		now:    now,
		llm:    llm,
		tts:    tts,
		logger: logger,
		jobs:   make(map[string]*domain.DJJob),
		queue:  make(chan arm, 256),
		sem:    make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Run drains the arm queue with cfg.MaxConcurrent workers until ctx is
// cancelled (§4.5 "Back-pressure").
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case a := <-p.queue:
			select {
			case p.sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(a arm) {
				defer wg.Done()
				defer func() { <-p.sem }()
				p.process(ctx, a)
			}(a)
		}
	}
}

// Arm requests an intro for (title, artist) targeting targetEpochMs.
// Re-arming a dedup key already in a non-terminal state is a no-op (§4.5
// "Idempotence", §3's DJJob invariant).
func (p *Pipeline) Arm(targetEpochMs int64, title, artist string) {
	key := domain.JobDedupKey(title, artist, targetEpochMs)

	p.mu.Lock()
	if existing, ok := p.jobs[key]; ok && !existing.State.Terminal() {
		p.mu.Unlock()
		return
	}
	job := &domain.DJJob{
		JobID:         uuid.NewString(),
		TargetEpochMs: targetEpochMs,
		TrackTitle:    title,
		TrackArtist:   artist,
		State:         domain.JobArmed,
		DedupKey:      key,
	}
	p.jobs[key] = job
	p.mu.Unlock()

	p.publishState(job)

	select {
	case p.queue <- arm{dedupKey: key, targetEpochMs: targetEpochMs, title: title, artist: artist, mode: domain.ModeIntro}:
	default:
		p.transition(key, domain.JobFailed, "arm queue saturated")
	}
}

// Cancel transitions a non-terminal job for dedupKey to cancelled, for use
// when the track it targets has been superseded (§4.8, §4.5 "Timeliness").
func (p *Pipeline) Cancel(dedupKey string) {
	p.transition(dedupKey, domain.JobCancelled, "cancelled by caller")
}

// Jobs returns a snapshot of all known jobs, for the debug endpoint (§7).
func (p *Pipeline) Jobs() []domain.DJJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.DJJob, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, *j)
	}
	return out
}

func (p *Pipeline) process(ctx context.Context, a arm) {
	// Freshness gate runs before the armed->generating transition (§4.5):
	// a spacing violation cancels the job without ever entering generating.
	if p.spacingViolated(ctx) {
		p.transition(a.dedupKey, domain.JobCancelled, "min_dj_spacing_ms violated")
		return
	}

	if p.isObsolete(a) {
		p.transition(a.dedupKey, domain.JobCancelled, "target track superseded")
		return
	}

	if !p.transition(a.dedupKey, domain.JobGenerating, "") {
		return
	}

	text, llmTier, err := p.generateText(ctx, a)
	if err != nil {
		p.logger.Warn("dj pipeline: text generation exhausted", zap.String("dedup_key", a.dedupKey), zap.Error(err))
		p.transition(a.dedupKey, domain.JobFailed, err.Error())
		return
	}
	p.setTier(a.dedupKey, llmTier, "")

	if !p.transition(a.dedupKey, domain.JobSynthesizing, "") {
		return
	}

	epochMs := a.targetEpochMs
	audio, ttsTier, err := p.synthesize(ctx, text, epochMs, a.mode)
	if err != nil {
		p.logger.Warn("dj pipeline: synthesis exhausted", zap.String("dedup_key", a.dedupKey), zap.Error(err))
		p.transition(a.dedupKey, domain.JobFailed, err.Error())
		return
	}
	p.setTier(a.dedupKey, llmTier, ttsTier)

	audioPath, transcriptPath, err := p.writeArtifactFiles(a.mode, epochMs, audio.Audio, audio.Transcript)
	if err != nil {
		p.logger.Error("dj pipeline: write artifact files", zap.Error(err))
		p.transition(a.dedupKey, domain.JobFailed, err.Error())
		return
	}

	ttsID, err := p.register(ctx, epochMs, text, audioPath, transcriptPath, a, int64(len(audio.Audio)))
	if err != nil {
		p.logger.Error("dj pipeline: register tts", zap.Error(err))
		p.transition(a.dedupKey, domain.JobFailed, err.Error())
		return
	}

	if !p.transition(a.dedupKey, domain.JobRegistered, "") {
		_ = p.store.MarkTTS(ctx, ttsID, domain.TTSGarbage, 0, 0)
		return
	}

	event := &domain.PlayEvent{
		Kind:    domain.KindDJ,
		EpochMs: epochMs,
		Title:   a.title,
		Artist:  a.artist,
	}
	if _, err := p.store.CommitAndLink(ctx, event, ttsID); err != nil {
		p.logger.Error("dj pipeline: commit and link", zap.Error(err))
		_ = p.store.MarkTTS(ctx, ttsID, domain.TTSGarbage, 0, 0)
		p.transition(a.dedupKey, domain.JobFailed, err.Error())
		return
	}
	p.bus.Publish(eventbus.TopicHistoryAppended, *event)

	if err := p.enqueueWithRetry(ctx, audioPath, audio.Audio); err != nil {
		p.logger.Error("dj pipeline: enqueue exhausted", zap.String("dedup_key", a.dedupKey), zap.Error(err))
		_ = p.store.MarkTTS(ctx, ttsID, domain.TTSGarbage, 0, 0)
		p.transition(a.dedupKey, domain.JobFailed, err.Error())
		return
	}

	p.transition(a.dedupKey, domain.JobEnqueued, "")
}

// spacingViolated implements the freshness gate (§4.5): cancel if a DJ-kind
// event already landed within min_dj_spacing_ms.
func (p *Pipeline) spacingViolated(ctx context.Context) bool {
	events, err := p.store.History(ctx, 20, nil)
	if err != nil {
		// A store outage must not halt the pipeline (§4.2, §7); proceed
		// without the gate rather than wedge every job.
		return false
	}
	cutoff := time.Now().Add(-p.cfg.MinSpacing).UnixMilli()
	for _, e := range events {
		if e.Kind == domain.KindDJ && e.EpochMs >= cutoff {
			return true
		}
	}
	return false
}

// isObsolete implements the timeliness rule (§4.5): if the track *after*
// the target is already playing, the intro would land too late to matter.
func (p *Pipeline) isObsolete(a arm) bool {
	if p.now == nil {
		return false
	}
	snap := p.now.Now()
	if snap.Title == "" {
		return false
	}
	// The target track itself becoming current is fine (still useful); only
	// a different, non-target now-playing track with a later start time
	// than the target's predicted slot indicates the target was skipped.
	return snap.Title != a.title && snap.TrackStartedAtMs > a.targetEpochMs
}

func (p *Pipeline) generateText(ctx context.Context, a arm) (string, string, error) {
	hint := p.pickStyleHint()
	req := providers.LLMRequest{Mode: string(a.mode), Title: a.title, Artist: a.artist, StyleHint: hint}

	gate := func(_ string, resp providers.LLMResponse) error {
		return checkText(p.cfg.Quality, resp.Text, a.artist)
	}

	resp, tier, err := p.llm.Generate(ctx, req, gate)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", coreerrors.ErrProviderExhausted, err)
	}
	return resp.Text, tier, nil
}

func (p *Pipeline) synthesize(ctx context.Context, text string, epochMs int64, mode domain.TTSMode) (providers.TTSResponse, string, error) {
	req := providers.TTSRequest{Text: text, EpochMs: epochMs, Mode: string(mode)}
	gate := func(_ string, resp providers.TTSResponse) error {
		return checkAudio(p.cfg.Quality, resp.Audio)
	}
	resp, tier, err := p.tts.Synthesize(ctx, req, gate)
	if err != nil {
		return providers.TTSResponse{}, "", fmt.Errorf("%w: %v", coreerrors.ErrProviderExhausted, err)
	}
	return resp, tier, nil
}

func (p *Pipeline) writeArtifactFiles(mode domain.TTSMode, epochMs int64, audio []byte, transcript string) (audioPath, transcriptPath string, err error) {
	if err := os.MkdirAll(p.cfg.ArtifactDir, 0o755); err != nil {
		return "", "", fmt.Errorf("mkdir artifact dir: %w", err)
	}
	base := fmt.Sprintf("%s_%d", mode, epochMs)
	audioPath = filepath.Join(p.cfg.ArtifactDir, base+".mp3")
	transcriptPath = filepath.Join(p.cfg.ArtifactDir, base+".txt")

	if err := os.WriteFile(audioPath, audio, 0o644); err != nil {
		return "", "", fmt.Errorf("write audio file: %w", err)
	}
	if err := os.WriteFile(transcriptPath, []byte(transcript), 0o644); err != nil {
		return "", "", fmt.Errorf("write transcript file: %w", err)
	}
	return audioPath, transcriptPath, nil
}

// register calls RegisterTTS(pending) and then MarkTTS(ready) after
// validation has already passed (§4.5 "Registration"). The two store calls
// are not one transaction: a failed MarkTTS marks the artifact failed, and a
// row left pending by a crash between them is failed by the startup
// SweepPendingTTS.
func (p *Pipeline) register(ctx context.Context, epochMs int64, text, audioPath, transcriptPath string, a arm, sizeBytes int64) (int64, error) {
	artifact := &domain.TTSArtifact{
		EpochMs:        epochMs,
		Text:           text,
		AudioPath:      audioPath,
		TranscriptPath: transcriptPath,
		TrackTitle:     a.title,
		TrackArtist:    a.artist,
		Mode:           a.mode,
	}
	id, err := p.store.RegisterTTS(ctx, artifact)
	if err != nil {
		return 0, fmt.Errorf("register tts: %w", err)
	}
	if err := p.store.MarkTTS(ctx, id, domain.TTSReady, sizeBytes, 0); err != nil {
		_ = p.store.MarkTTS(ctx, id, domain.TTSFailed, 0, 0)
		return 0, fmt.Errorf("mark tts ready: %w", err)
	}
	return id, nil
}

// enqueueWithRetry submits the synthesized file to the engine, retrying up
// to 3 times with 500ms backoff on transport failure (§4.5 "Enqueue").
func (p *Pipeline) enqueueWithRetry(ctx context.Context, path string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < 4; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := p.engine.EnqueueTTS(ctx, path, body); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("enqueue failed after retries: %w", lastErr)
}

func (p *Pipeline) pickStyleHint() string {
	if len(p.cfg.StyleHints) == 0 {
		return ""
	}
	p.mu.Lock()
	hint := p.cfg.StyleHints[p.nextStyle%len(p.cfg.StyleHints)]
	p.nextStyle++
	p.mu.Unlock()
	return hint
}

func (p *Pipeline) setTier(dedupKey, llmTier, ttsTier string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs[dedupKey]
	if !ok {
		return
	}
	if llmTier != "" {
		job.LLMTier = llmTier
	}
	if ttsTier != "" {
		job.TTSTier = ttsTier
	}
}

// transition applies a legal state change and publishes it on C4. It
// returns false (refusing the transition) if the job is unknown or the move
// is illegal — the racing-fire case §4.9 describes as absorbed by this
// idempotence.
func (p *Pipeline) transition(dedupKey string, next domain.JobState, reason string) bool {
	p.mu.Lock()
	job, ok := p.jobs[dedupKey]
	if !ok {
		p.mu.Unlock()
		return false
	}
	if job.State.Terminal() || !domain.CanTransition(job.State, next) {
		p.mu.Unlock()
		return false
	}
	job.State = next
	if reason != "" {
		job.Reason = reason
	}
	snapshot := *job
	p.mu.Unlock()

	p.publishState(&snapshot)
	return true
}

func (p *Pipeline) publishState(job *domain.DJJob) {
	p.bus.Publish(eventbus.TopicDJState, *job)
}
