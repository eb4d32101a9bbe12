// Package metacache implements C3, the sole poller of C1 for presentation
// state (§4.3). It is the single-owner/ticker generalization of the
// teacher's connection-management idiom: one goroutine owns the mutable
// NowSnapshot/NextSnapshot pair, readers take a copy under a short-held
// mutex.
package metacache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/domain"
	"github.com/aircast/coordinator/internal/eventbus"
)

// EngineReader is the subset of C1 the cache depends on.
type EngineReader interface {
	Now(ctx context.Context) (domain.NowSnapshot, error)
	Upcoming(ctx context.Context, n int) ([]domain.TrackRef, error)
}

// ArtworkLookup enriches NextSnapshot entries with cached artwork
// references (§4.3); satisfied by store.Store.
type ArtworkLookup interface {
	GetArtwork(ctx context.Context, key string) (*domain.ArtworkCacheEntry, error)
}

// Config tunes the cache's tick interval, lookahead count, and staleness
// cap (§4.3, §5).
type Config struct {
	TickInterval time.Duration
	NextCount    int
	StalenessCap time.Duration
}

// Cache is C3: it never writes to the store and never arms DJ jobs — that
// is C8's responsibility.
type Cache struct {
	cfg     Config
	engine  EngineReader
	artwork ArtworkLookup
	bus     *eventbus.Bus
	logger  *zap.Logger

	mu                sync.RWMutex
	now               domain.NowSnapshot
	next              domain.NextSnapshot
	lastSuccessAt     time.Time
	lastTitle         string
	lastArtist        string
	trackStartedAtMs  int64
}

func New(cfg Config, engine EngineReader, artwork ArtworkLookup, bus *eventbus.Bus, logger *zap.Logger) *Cache {
	if cfg.NextCount == 0 {
		cfg.NextCount = 8
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 3 * time.Second
	}
	if cfg.StalenessCap == 0 {
		cfg.StalenessCap = 30 * time.Second
	}
	return &Cache{cfg: cfg, engine: engine, artwork: artwork, bus: bus, logger: logger}
}

// Run ticks at cfg.TickInterval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Cache) tick(ctx context.Context) {
	nowCtx, cancel := context.WithTimeout(ctx, c.cfg.TickInterval)
	defer cancel()

	now, err := c.engine.Now(nowCtx)
	if err != nil {
		c.logger.Debug("metacache: engine Now failed", zap.Error(err))
		c.markStaleIfExpired()
		return
	}

	upcoming, err := c.engine.Upcoming(nowCtx, c.cfg.NextCount)
	if err != nil {
		c.logger.Debug("metacache: engine Upcoming failed", zap.Error(err))
		upcoming = nil
	}

	capturedAtMs := time.Now().UnixMilli()

	entries := make([]domain.TrackRef, 0, len(upcoming))
	entries = append(entries, upcoming...)
	if c.artwork != nil {
		c.enrichArtwork(ctx, entries)
	}

	c.mu.Lock()
	changed := now.Title != c.lastTitle || now.Artist != c.lastArtist
	if changed {
		c.trackStartedAtMs = capturedAtMs
		c.lastTitle = now.Title
		c.lastArtist = now.Artist
	}
	now.TrackStartedAtMs = c.trackStartedAtMs
	now.CapturedAtMs = capturedAtMs
	now.Stale = false
	c.now = now
	c.lastSuccessAt = time.Now()
	c.next = domain.NextSnapshot{Entries: entries, CapturedAtMs: capturedAtMs, Stale: false}
	c.mu.Unlock()

	if changed {
		c.bus.Publish(eventbus.TopicTrackChanged, now)
	}
}

func (c *Cache) enrichArtwork(ctx context.Context, entries []domain.TrackRef) {
	for i := range entries {
		key := artworkKey(entries[i].Artist, entries[i].Album)
		entry, err := c.artwork.GetArtwork(ctx, key)
		if err != nil || entry == nil {
			continue
		}
		entries[i].ArtworkRef = entry.LocalPath
	}
}

func (c *Cache) markStaleIfExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSuccessAt.IsZero() {
		return
	}
	if time.Since(c.lastSuccessAt) > c.cfg.StalenessCap {
		c.now.Stale = true
		c.next.Stale = true
	}
}

// Now returns the last-captured NowSnapshot.
func (c *Cache) Now() domain.NowSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Next returns up to limit entries of the last-captured NextSnapshot.
func (c *Cache) Next(limit int) domain.NextSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := c.next
	if limit > 0 && limit < len(snap.Entries) {
		snap.Entries = snap.Entries[:limit]
	}
	return snap
}

func artworkKey(artist, album string) string {
	if album != "" {
		return artist + "|" + album
	}
	return artist
}
