// Package api implements C7: the REST surface and WS push channel clients
// use to read presentation state and submit events (§4.7). It is
// orchestration-only — every write ultimately lands on C2/C8/C5/C1; this
// package owns request validation and response shaping alone.
package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/aircast/coordinator/internal/domain"
	"github.com/aircast/coordinator/internal/eventbus"
	"github.com/aircast/coordinator/internal/ingest"
	"github.com/aircast/coordinator/internal/metrics"
	pkgvalidator "github.com/aircast/coordinator/pkg/validator"
)

// Snapshots is the subset of C3 the API reads from.
type Snapshots interface {
	Now() domain.NowSnapshot
	Next(limit int) domain.NextSnapshot
}

// HistoryArtwork is the subset of C2 the API reads from directly.
type HistoryArtwork interface {
	History(ctx context.Context, limit int, before *int64) ([]domain.PlayEvent, error)
	GetArtwork(ctx context.Context, key string) (*domain.ArtworkCacheEntry, error)
	RegisterTTS(ctx context.Context, a *domain.TTSArtifact) (int64, error)
	MarkTTS(ctx context.Context, id int64, status domain.TTSStatus, sizeBytes, durationMs int64) error
	CommitAndLink(ctx context.Context, e *domain.PlayEvent, ttsID int64) (int64, error)
	Ping(ctx context.Context) error
}

// EventAcceptor is C8's entry point.
type EventAcceptor interface {
	Accept(ctx context.Context, ev ingest.Event) (ingest.Result, error)
}

// EngineControl is the subset of C1 the API drives directly (enqueue,
// skip) and inspects for /api/health.
type EngineControl interface {
	EnqueueTTS(ctx context.Context, path string, body []byte) error
	Skip(ctx context.Context, outputName string) error
	Connected() bool
}

// DJJobs is C5's debug surface: failed/in-flight jobs are otherwise
// invisible outside logs (§7, §8 S6).
type DJJobs interface {
	Jobs() []domain.DJJob
}

// Deps bundles every component the router wires into handlers.
type Deps struct {
	Snapshots Snapshots
	Store     HistoryArtwork
	Ingest    EventAcceptor
	Engine    EngineControl
	DJJobs    DJJobs
	Bus       *eventbus.Bus
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	DefaultCoverPath string
	OutputName       string
	NextLimit        int
	ArtifactDir      string
	DebugEndpoints   bool
}

type handler struct {
	deps Deps
	hub  *hub
	v    *pkgvalidator.Validator
}

// NewRouter assembles the gin engine with the full middleware chain and
// route table (§4.7), grounded on the teacher's production-server router
// assembly.
func NewRouter(deps Deps, mw ...gin.HandlerFunc) *gin.Engine {
	if deps.NextLimit == 0 {
		deps.NextLimit = 8
	}
	h := &handler{deps: deps, hub: newHub(deps.Logger, deps.Bus), v: pkgvalidator.New()}
	go h.hub.run(context.Background())

	r := gin.New()
	for _, m := range mw {
		r.Use(m)
	}

	r.GET("/api/now", h.getNow)
	r.GET("/api/next", h.getNext)
	r.GET("/api/history", h.getHistory)
	r.GET("/api/cover", h.getCover)
	r.POST("/api/event", h.postEvent)
	r.POST("/api/enqueue", h.postEnqueue)
	r.POST("/api/tts_queue", h.postTTSQueue)
	r.POST("/api/skip", h.postSkip)
	r.GET("/api/health", h.getHealth)
	r.GET("/ws", h.serveWS)

	if deps.DebugEndpoints && deps.DJJobs != nil {
		r.GET("/api/debug/dj_jobs", h.getDebugDJJobs)
	}

	return r
}

func (h *handler) getNow(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Snapshots.Now())
}

func (h *handler) getNext(c *gin.Context) {
	limit := h.deps.NextLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= h.deps.NextLimit {
			limit = n
		}
	}
	c.JSON(http.StatusOK, h.deps.Snapshots.Next(limit))
}

func (h *handler) getHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	var before *int64
	if raw := c.Query("before"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			before = &n
		}
	}

	events, err := h.deps.Store.History(c.Request.Context(), limit, before)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *handler) getCover(c *gin.Context) {
	key := c.Query("file")
	if key == "" {
		artist := normalizeString(c.Query("artist"))
		album := normalizeString(c.Query("album"))
		if album != "" {
			key = artist + "|" + album
		} else {
			key = artist
		}
	}

	entry, err := h.deps.Store.GetArtwork(c.Request.Context(), key)
	if err != nil || entry == nil || entry.Status != domain.ArtworkReady {
		if h.deps.DefaultCoverPath == "" {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(h.deps.DefaultCoverPath)
		return
	}
	c.File(entry.LocalPath)
}

// eventRequest mirrors §4.7's POST /api/event body. Title/artist reuse the
// teacher's no_xss validator tag; this endpoint has no authenticated
// caller, so it is the only defense against a hostile track-metadata
// source.
type eventRequest struct {
	Kind    string `json:"kind" validate:"required,oneof=song dj"`
	Title   string `json:"title" validate:"required,no_xss,max_length=300"`
	Artist  string `json:"artist" validate:"required,no_xss,max_length=300"`
	Album   string `json:"album" validate:"omitempty,no_xss,max_length=300"`
	URI     string `json:"uri" validate:"omitempty,max_length=1000"`
	EpochMs int64  `json:"epoch_ms"`
}

func (h *handler) postEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.v.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed"})
		return
	}

	ev := ingest.Event{
		Kind:      domain.Kind(req.Kind),
		Title:     normalizeString(req.Title),
		Artist:    normalizeString(req.Artist),
		Album:     normalizeString(req.Album),
		SourceURI: req.URI,
		EpochMs:   clampEpochMs(req.EpochMs),
	}

	res, err := h.deps.Ingest.Accept(c.Request.Context(), ev)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event rejected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": res.ID, "deduped": res.Deduped})
}

// enqueueRequest mirrors §4.7's POST /api/enqueue body.
type enqueueRequest struct {
	File    string `json:"file" validate:"required,safe_filename,max_length=500"`
	Title   string `json:"title" validate:"omitempty,no_xss,max_length=300"`
	Artist  string `json:"artist" validate:"omitempty,no_xss,max_length=300"`
	Comment string `json:"comment" validate:"omitempty,no_xss,max_length=500"`
}

func (h *handler) postEnqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.v.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed"})
		return
	}

	body, err := h.readArtifactFile(req.File)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not readable"})
		return
	}
	if err := h.deps.Engine.EnqueueTTS(c.Request.Context(), req.File, body); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "engine rejected enqueue"})
		return
	}
	c.Status(http.StatusAccepted)
}

// ttsQueueRequest mirrors §4.7's POST /api/tts_queue body: an externally
// produced artifact the API registers and links in one transaction,
// bypassing C5 entirely (it is not DJ-pipeline output).
type ttsQueueRequest struct {
	Text        string `json:"text" validate:"required,no_xss,max_length=2000"`
	AudioURL    string `json:"audio_url" validate:"required,safe_url"`
	TrackTitle  string `json:"track_title" validate:"omitempty,no_xss,max_length=300"`
	TrackArtist string `json:"track_artist" validate:"omitempty,no_xss,max_length=300"`
}

func (h *handler) postTTSQueue(c *gin.Context) {
	var req ttsQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.v.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed"})
		return
	}

	ctx := c.Request.Context()
	epochMs := time.Now().UnixMilli()
	artifact := &domain.TTSArtifact{
		EpochMs:     epochMs,
		Text:        req.Text,
		AudioPath:   req.AudioURL,
		TrackTitle:  normalizeString(req.TrackTitle),
		TrackArtist: normalizeString(req.TrackArtist),
		Mode:        domain.ModeCustom,
	}
	ttsID, err := h.deps.Store.RegisterTTS(ctx, artifact)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tts registration failed"})
		return
	}
	if err := h.deps.Store.MarkTTS(ctx, ttsID, domain.TTSReady, int64(len(req.Text)), 0); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tts mark ready failed"})
		return
	}

	event := &domain.PlayEvent{
		Kind:    domain.KindDJ,
		EpochMs: epochMs,
		Title:   artifact.TrackTitle,
		Artist:  artifact.TrackArtist,
	}
	if _, err := h.deps.Store.CommitAndLink(ctx, event, ttsID); err != nil {
		_ = h.deps.Store.MarkTTS(ctx, ttsID, domain.TTSGarbage, 0, 0)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "commit failed"})
		return
	}
	h.deps.Bus.Publish(eventbus.TopicHistoryAppended, *event)
	c.JSON(http.StatusOK, gin.H{"id": event.ID, "tts_id": ttsID})
}

func (h *handler) postSkip(c *gin.Context) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.deps.Engine.Skip(ctx, h.deps.OutputName); err != nil {
			h.deps.Logger.Warn("api: skip failed", zap.Error(err))
		}
	}()
	c.Status(http.StatusAccepted)
}

// readArtifactFile resolves file against the configured artifact directory,
// refusing any path that escapes it (the safe_filename validator tag on
// enqueueRequest already rejects path separators, so Join cannot traverse
// outside ArtifactDir).
func (h *handler) readArtifactFile(file string) ([]byte, error) {
	path := filepath.Join(h.deps.ArtifactDir, file)
	return os.ReadFile(path)
}

func (h *handler) getHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	storeOK := h.deps.Store.Ping(ctx) == nil
	engineOK := h.deps.Engine.Connected()

	status := http.StatusOK
	if !storeOK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"store_reachable":  storeOK,
		"engine_connected": engineOK,
	})
}

func (h *handler) serveWS(c *gin.Context) {
	h.hub.serve(c)
}

// getDebugDJJobs exposes C5's in-memory job table (§7 "failed DJ jobs
// appear only in a debug endpoint"). Only registered when
// debug.endpoints_enabled is set.
func (h *handler) getDebugDJJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.deps.DJJobs.Jobs()})
}

// normalizeString applies NFC normalization and trims surrounding
// whitespace (§4.7 "Artist/title strings are NFC-normalized and trimmed").
// strings.TrimSpace is unicode-aware, so it still strips a non-breaking or
// other unicode space left behind after NFC normalization.
func normalizeString(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// clampEpochMs replaces an epoch_ms outside ±1 day of server time with
// server time (§4.7 "protects history ordering"). Zero means "not
// provided" and is always replaced.
func clampEpochMs(epochMs int64) int64 {
	now := time.Now().UnixMilli()
	const oneDayMs = 24 * 60 * 60 * 1000
	if epochMs == 0 {
		return now
	}
	if epochMs < now-oneDayMs || epochMs > now+oneDayMs {
		return now
	}
	return epochMs
}
