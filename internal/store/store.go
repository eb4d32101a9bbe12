// Package store declares the coordination core's durable storage contract
// (C2, §4.2): an ordered play-event log, a TTS artifact registry, and an
// artwork cache, all behind a single transactional boundary.
package store

import (
	"context"
	"time"

	"github.com/aircast/coordinator/internal/domain"
)

// Store is implemented by internal/store/postgres. Every method surfaces
// transient failures as coreerrors.ErrUnavailable; callers retry with
// backoff rather than treat a Store outage as fatal (§4.2, §7).
type Store interface {
	// CommitPlayEvent appends e and returns its assigned id. If an existing
	// event shares e's dedup window key, it returns that event's id and
	// coreerrors.ErrDuplicateEvent.
	CommitPlayEvent(ctx context.Context, e *domain.PlayEvent) (int64, error)

	// LookupByDedup finds a committed event whose dedup key matches, for
	// idempotent producer retries. Returns nil, nil when absent.
	LookupByDedup(ctx context.Context, key domain.DedupKey) (*domain.PlayEvent, error)

	// LinkTTS sets PlayEvent.tts_id. Fails with coreerrors.ErrNotReady
	// unless the target TTSArtifact has status=ready.
	LinkTTS(ctx context.Context, eventID, ttsID int64) error

	// CommitAndLink composes CommitPlayEvent and LinkTTS atomically.
	CommitAndLink(ctx context.Context, e *domain.PlayEvent, ttsID int64) (int64, error)

	// RegisterTTS inserts a with status=pending and returns its id.
	RegisterTTS(ctx context.Context, a *domain.TTSArtifact) (int64, error)

	// MarkTTS transitions id to status and stores the given size/duration
	// on every transition. Illegal transitions fail with
	// coreerrors.ErrIllegalTransition.
	MarkTTS(ctx context.Context, id int64, status domain.TTSStatus, sizeBytes, durationMs int64) error

	// History returns up to limit PlayEvents in descending id order,
	// optionally before a given id (exclusive). dj-kind rows carry TTSText
	// when their linked artifact is ready.
	History(ctx context.Context, limit int, before *int64) ([]domain.PlayEvent, error)

	// PutArtwork upserts a cache entry keyed by entry.Key.
	PutArtwork(ctx context.Context, entry *domain.ArtworkCacheEntry) error

	// GetArtwork fetches a cache entry by key. Returns nil, nil when absent.
	GetArtwork(ctx context.Context, key string) (*domain.ArtworkCacheEntry, error)

	// TouchArtwork updates last_used_at for LRU tracking.
	TouchArtwork(ctx context.Context, key string) error

	// EvictArtworkOverCap opportunistically removes the least-recently-used
	// entries until the cache's total size is under capBytes. Intended to
	// run off the client path (housekeeping), per §4.2.
	EvictArtworkOverCap(ctx context.Context, capBytes int64) (evicted int, err error)

	// SweepPendingTTS transitions any TTSArtifact still pending after
	// olderThan to failed. Run once at startup to recover from a crash
	// between RegisterTTS and MarkTTS (§8 S6).
	SweepPendingTTS(ctx context.Context, olderThan time.Duration) (swept int, err error)

	// TrimHistory deletes PlayEvents that are both outside the keepN most
	// recent and older than olderThan (§3 retention).
	TrimHistory(ctx context.Context, keepN int, olderThan time.Duration) (deleted int, err error)

	// GarbageCollectArtifacts deletes failed/garbage TTSArtifact rows older
	// than olderThan and returns the deleted rows, so the caller can remove
	// their audio/transcript files from disk (§5 housekeeping, §12).
	GarbageCollectArtifacts(ctx context.Context, olderThan time.Duration) ([]domain.TTSArtifact, error)

	// Ping reports store reachability for /api/health.
	Ping(ctx context.Context) error

	Close() error
}
