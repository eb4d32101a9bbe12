// Command server is the coordination core's entry point: it loads
// configuration, wires C1-C9, and serves the HTTP/WS API until signalled to
// shut down (§6, §8). Grounded on the teacher's cmd/production-server/main.go
// wiring shape.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/aircast/coordinator/internal/api"
	"github.com/aircast/coordinator/internal/config"
	"github.com/aircast/coordinator/internal/coreerrors"
	"github.com/aircast/coordinator/internal/djpipeline"
	"github.com/aircast/coordinator/internal/domain"
	"github.com/aircast/coordinator/internal/engine"
	"github.com/aircast/coordinator/internal/eventbus"
	"github.com/aircast/coordinator/internal/ingest"
	"github.com/aircast/coordinator/internal/metacache"
	"github.com/aircast/coordinator/internal/metrics"
	"github.com/aircast/coordinator/internal/middleware"
	"github.com/aircast/coordinator/internal/providers"
	"github.com/aircast/coordinator/internal/providers/llm/localmodel"
	"github.com/aircast/coordinator/internal/providers/llm/openai"
	"github.com/aircast/coordinator/internal/providers/llm/template"
	"github.com/aircast/coordinator/internal/providers/tts/httptts"
	"github.com/aircast/coordinator/internal/providers/tts/offline"
	"github.com/aircast/coordinator/internal/scheduler"
	"github.com/aircast/coordinator/internal/store/postgres"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code per §6: 0 clean, 64 config error, 69
// engine unreachable beyond startup grace, 74 storage error beyond startup
// grace.
func run() int {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment")
	}

	cfg, err := config.Load(os.Getenv("AIRCAST_CONFIG"))
	if err != nil {
		log.Println("configuration error:", err)
		return 64
	}

	var logger *zap.Logger
	if cfg.Server.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Println("failed to create logger:", err)
		return 64
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(cfg.Database)
	for deadline := time.Now().Add(5 * time.Second); err != nil && time.Now().Before(deadline); {
		time.Sleep(500 * time.Millisecond)
		db, err = postgres.Connect(cfg.Database)
	}
	if err != nil {
		logger.Error("database connection failed", zap.Error(err))
		return 74
	}
	defer db.Close()

	if err := postgres.CreateSchema(db, logger); err != nil {
		logger.Error("schema setup failed", zap.Error(err))
		return 74
	}

	st := postgres.New(db, logger)
	defer st.Close()

	if swept, err := st.SweepPendingTTS(ctx, 5*time.Minute); err != nil {
		logger.Warn("startup sweep of pending tts failed", zap.Error(err))
	} else if swept > 0 {
		logger.Info("startup sweep recovered stale pending tts", zap.Int("count", swept))
	}

	eng := engine.New(engine.Config{
		ControlAddr:    cfg.Engine.ControlAddr,
		IngestHTTPBase: cfg.Engine.IngestHTTPBase,
		QueueName:      cfg.Engine.QueueName,
		CommandTimeout: cfg.Engine.CommandTimeout,
		EnqueueTimeout: cfg.Engine.EnqueueTimeout,
		ReconnectMin:   cfg.Engine.ReconnectMin,
		ReconnectMax:   cfg.Engine.ReconnectMax,
	}, logger)
	go eng.Run(ctx)

	if err := waitForEngine(ctx, eng, 5*time.Second); err != nil {
		logger.Error("engine unreachable at startup", zap.Error(err))
		return 69
	}

	bus := eventbus.New(logger)

	cache := metacache.New(metacache.Config{
		TickInterval: cfg.Engine.TickInterval,
		NextCount:    cfg.Engine.NextCount,
		StalenessCap: cfg.Engine.StalenessCap,
	}, eng, st, bus, logger)
	go cache.Run(ctx)

	sched := scheduler.New(logger)
	defer sched.StopAll()

	llmRegistry := buildLLMRegistry(cfg, logger)
	ttsRegistry := buildTTSRegistry(cfg, logger)

	pipeline := djpipeline.New(djpipeline.Config{
		MinSpacing:    cfg.DJ.MinSpacing,
		MaxConcurrent: cfg.DJ.MaxConcurrent,
		StyleHints:    cfg.DJ.StyleHints,
		ArtifactDir:   cfg.Artifact.Directory,
		Quality: djpipeline.QualityConfig{
			TextMinChars:    cfg.Quality.TextMinChars,
			TextMaxChars:    cfg.Quality.TextMaxChars,
			ForbiddenTokens: cfg.Quality.ForbiddenTokens,
			MinAudioBytes:   cfg.Quality.MinAudioBytes,
		},
	}, st, eng, bus, cache, llmRegistry, ttsRegistry, logger)
	go pipeline.Run(ctx)

	in := ingest.New(ingest.Config{DJDelay: cfg.DJ.DelayAfterIngest}, st, bus, sched, pipeline, cache, logger)

	m := metrics.New()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, rate limiting falls back to in-process counters", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	router := api.NewRouter(api.Deps{
		Snapshots:        cache,
		Store:            st,
		Ingest:           in,
		Engine:           eng,
		DJJobs:           pipeline,
		Bus:              bus,
		Metrics:          m,
		Logger:           logger,
		OutputName:       cfg.Engine.QueueName,
		NextLimit:        cfg.Engine.NextCount,
		ArtifactDir:      cfg.Artifact.Directory,
		DefaultCoverPath: "",
		DebugEndpoints:   cfg.Debug.EndpointsEnabled,
	},
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(),
		middleware.RateLimit(120, time.Minute, rdb),
		m.GinMiddleware(),
	)
	router.GET("/metrics", m.Handler())
	router.POST("/api/engine_event", engineWebhook(in, logger))

	go runHousekeeping(ctx, st, cfg, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("coordination core listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown timed out", zap.Error(err))
	}

	return 0
}

// waitForEngine blocks until the engine answers a Now probe (which makes the
// lazily-connecting adapter dial) or the grace period elapses (§6's "engine
// unreachable at startup beyond startup-grace" exit condition).
func waitForEngine(ctx context.Context, eng *engine.Adapter, grace time.Duration) error {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if eng.Connected() {
			return nil
		}
		probeCtx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := eng.Now(probeCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	if eng.Connected() {
		return nil
	}
	return fmt.Errorf("%w: no connection after %s", coreerrors.ErrEngineUnavailable, grace)
}

func buildLLMRegistry(cfg *config.Config, logger *zap.Logger) *providers.LLMRegistry {
	var tiers []providers.LLMProvider
	for _, t := range cfg.Provider.LLM {
		switch t.Name {
		case "hosted":
			if apiKey := t.APIKey(); apiKey != "" {
				p, err := openai.New(apiKey, t.Model, t.Timeout)
				if err != nil {
					logger.Warn("skipping hosted llm tier", zap.Error(err))
					continue
				}
				tiers = append(tiers, p)
			}
		case "template":
			tiers = append(tiers, template.New(cfg.DJ.IntroTemplates, cfg.DJ.OutroTemplates))
		default:
			p, err := localmodel.New(t.Name, t.BaseURL, t.Model, t.Timeout)
			if err != nil {
				logger.Warn("skipping local llm tier", zap.String("tier", t.Name), zap.Error(err))
				continue
			}
			tiers = append(tiers, p)
		}
	}
	if len(tiers) == 0 || tiers[len(tiers)-1].Name() != "template" {
		tiers = append(tiers, template.New(cfg.DJ.IntroTemplates, cfg.DJ.OutroTemplates))
	}
	return providers.NewLLMRegistry(logger, tiers...)
}

func buildTTSRegistry(cfg *config.Config, logger *zap.Logger) *providers.TTSRegistry {
	var tiers []providers.TTSProvider
	for _, t := range cfg.Provider.TTS {
		if t.Name == "offline" {
			tiers = append(tiers, offline.New())
			continue
		}
		p, err := httptts.New(t.Name, t.BaseURL, t.Voice, t.Timeout)
		if err != nil {
			logger.Warn("skipping tts tier", zap.String("tier", t.Name), zap.Error(err))
			continue
		}
		tiers = append(tiers, p)
	}
	if len(tiers) == 0 || tiers[len(tiers)-1].Name() != "offline" {
		tiers = append(tiers, offline.New())
	}
	return providers.NewTTSRegistry(logger, tiers...)
}

// engineWebhook accepts the audio engine's out-of-band track-change
// notification (§4.8 source (a)). C3's change detection does not call
// Ingest. Strings are NFC-normalized and epoch_ms is clamped as /api/event
// does before the event reaches Ingest.
func engineWebhook(in *ingest.Ingest, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Kind    string `json:"kind"`
			Title   string `json:"title"`
			Artist  string `json:"artist"`
			Album   string `json:"album"`
			URI     string `json:"uri"`
			EpochMs int64  `json:"epoch_ms"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		now := time.Now().UnixMilli()
		if body.EpochMs < now-24*60*60*1000 || body.EpochMs > now+24*60*60*1000 {
			body.EpochMs = now
		}
		nfc := func(s string) string { return strings.TrimSpace(norm.NFC.String(s)) }
		res, err := in.Accept(c.Request.Context(), ingest.Event{
			Kind: domainKind(body.Kind), Title: nfc(body.Title), Artist: nfc(body.Artist),
			Album: nfc(body.Album), SourceURI: body.URI, EpochMs: body.EpochMs,
		})
		if err != nil {
			logger.Warn("engine webhook: ingest rejected event", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rejected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": res.ID, "deduped": res.Deduped})
	}
}

func runHousekeeping(ctx context.Context, st housekeepingStore, cfg *config.Config, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if deleted, err := st.TrimHistory(ctx, cfg.Artifact.EventKeepN, time.Duration(cfg.Artifact.RetentionDays)*24*time.Hour); err != nil {
				logger.Warn("housekeeping: trim history failed", zap.Error(err))
			} else if deleted > 0 {
				logger.Info("housekeeping: trimmed history", zap.Int("deleted", deleted))
			}
			capBytes := int64(cfg.Artifact.ArtworkCapMB) * 1024 * 1024
			if evicted, err := st.EvictArtworkOverCap(ctx, capBytes); err != nil {
				logger.Warn("housekeeping: evict artwork failed", zap.Error(err))
			} else if evicted > 0 {
				logger.Info("housekeeping: evicted artwork", zap.Int("evicted", evicted))
			}
			gcArtifactFiles(ctx, st, time.Duration(cfg.Artifact.RetentionDays)*24*time.Hour, logger)
		}
	}
}

// gcArtifactFiles deletes failed/garbage TTSArtifact rows older than
// retention and unlinks the audio/transcript files djpipeline's
// writeArtifactFiles left on disk for them (§5, §12). A missing file is not
// an error: the artifact may have failed before a file was ever written.
func gcArtifactFiles(ctx context.Context, st housekeepingStore, retention time.Duration, logger *zap.Logger) {
	artifacts, err := st.GarbageCollectArtifacts(ctx, retention)
	if err != nil {
		logger.Warn("housekeeping: garbage collect artifacts failed", zap.Error(err))
		return
	}
	for _, a := range artifacts {
		if a.AudioPath != "" {
			if err := os.Remove(a.AudioPath); err != nil && !os.IsNotExist(err) {
				logger.Warn("housekeeping: remove audio file failed", zap.String("path", a.AudioPath), zap.Error(err))
			}
		}
		if a.TranscriptPath != "" {
			if err := os.Remove(a.TranscriptPath); err != nil && !os.IsNotExist(err) {
				logger.Warn("housekeeping: remove transcript file failed", zap.String("path", a.TranscriptPath), zap.Error(err))
			}
		}
	}
	if len(artifacts) > 0 {
		logger.Info("housekeeping: garbage collected artifact files", zap.Int("count", len(artifacts)))
	}
}

func domainKind(s string) domain.Kind {
	if s == string(domain.KindDJ) {
		return domain.KindDJ
	}
	return domain.KindSong
}

type housekeepingStore interface {
	TrimHistory(ctx context.Context, keepN int, olderThan time.Duration) (int, error)
	EvictArtworkOverCap(ctx context.Context, capBytes int64) (int, error)
	GarbageCollectArtifacts(ctx context.Context, olderThan time.Duration) ([]domain.TTSArtifact, error)
}
