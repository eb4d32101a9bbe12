package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/coreerrors"
	"github.com/aircast/coordinator/internal/domain"
)

// repository implements store.Store. The name is unexported; callers depend
// on the store.Store interface, following the teacher's
// interface-in-caller-package / struct-in-adapter-package split.
type repository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New returns a store.Store backed by db.
func New(db *sqlx.DB, logger *zap.Logger) *repository {
	return &repository{db: db, logger: logger}
}

func (r *repository) CommitPlayEvent(ctx context.Context, e *domain.PlayEvent) (int64, error) {
	key := domain.PlayEventDedupKey(e.Kind, e.Title, e.Artist)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %v", coreerrors.ErrUnavailable, err)
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.GetContext(ctx, &existingID, `
		SELECT id FROM play_events
		WHERE dedup_key = $1 AND epoch_ms BETWEEN $2 - 10000 AND $2 + 10000
		ORDER BY id DESC LIMIT 1`, key, e.EpochMs)
	switch {
	case err == nil:
		return existingID, coreerrors.ErrDuplicateEvent
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("%w: dedup lookup: %v", coreerrors.ErrUnavailable, err)
	}

	row := tx.QueryRowxContext(ctx, `
		INSERT INTO play_events (kind, epoch_ms, title, artist, album, source_uri, artwork_ref, tts_id, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		e.Kind, e.EpochMs, e.Title, e.Artist, nullString(e.Album), nullString(e.SourceURI),
		nullString(e.ArtworkRef), e.TTSID, key)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: insert play event: %v", coreerrors.ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", coreerrors.ErrUnavailable, err)
	}
	e.ID = id
	return id, nil
}

func (r *repository) LookupByDedup(ctx context.Context, key domain.DedupKey) (*domain.PlayEvent, error) {
	var row playEventRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, kind, epoch_ms, title, artist, album, source_uri, artwork_ref, tts_id
		FROM play_events WHERE dedup_key = $1 ORDER BY id DESC LIMIT 1`, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup by dedup: %v", coreerrors.ErrUnavailable, err)
	}
	e := row.toDomain()
	return &e, nil
}

func (r *repository) LinkTTS(ctx context.Context, eventID, ttsID int64) error {
	var status domain.TTSStatus
	err := r.db.GetContext(ctx, &status, `SELECT status FROM tts_artifacts WHERE id = $1`, ttsID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: tts artifact %d not found", coreerrors.ErrNotReady, ttsID)
	}
	if err != nil {
		return fmt.Errorf("%w: link tts lookup: %v", coreerrors.ErrUnavailable, err)
	}
	if status != domain.TTSReady {
		return fmt.Errorf("%w: tts artifact %d is %s", coreerrors.ErrNotReady, ttsID, status)
	}

	if _, err := r.db.ExecContext(ctx, `UPDATE play_events SET tts_id = $1 WHERE id = $2`, ttsID, eventID); err != nil {
		return fmt.Errorf("%w: link tts update: %v", coreerrors.ErrUnavailable, err)
	}
	return nil
}

func (r *repository) CommitAndLink(ctx context.Context, e *domain.PlayEvent, ttsID int64) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %v", coreerrors.ErrUnavailable, err)
	}
	defer tx.Rollback()

	var status domain.TTSStatus
	err = tx.GetContext(ctx, &status, `SELECT status FROM tts_artifacts WHERE id = $1`, ttsID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: tts artifact %d not found", coreerrors.ErrNotReady, ttsID)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: commit-and-link lookup: %v", coreerrors.ErrUnavailable, err)
	}
	if status != domain.TTSReady {
		return 0, fmt.Errorf("%w: tts artifact %d is %s", coreerrors.ErrNotReady, ttsID, status)
	}

	key := domain.PlayEventDedupKey(e.Kind, e.Title, e.Artist)
	var existingID int64
	err = tx.GetContext(ctx, &existingID, `
		SELECT id FROM play_events
		WHERE dedup_key = $1 AND epoch_ms BETWEEN $2 - 10000 AND $2 + 10000
		ORDER BY id DESC LIMIT 1`, key, e.EpochMs)
	switch {
	case err == nil:
		return existingID, coreerrors.ErrDuplicateEvent
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("%w: dedup lookup: %v", coreerrors.ErrUnavailable, err)
	}

	row := tx.QueryRowxContext(ctx, `
		INSERT INTO play_events (kind, epoch_ms, title, artist, album, source_uri, artwork_ref, tts_id, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		e.Kind, e.EpochMs, e.Title, e.Artist, nullString(e.Album), nullString(e.SourceURI),
		nullString(e.ArtworkRef), ttsID, key)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: insert linked event: %v", coreerrors.ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", coreerrors.ErrUnavailable, err)
	}
	e.ID = id
	e.TTSID = &ttsID
	return id, nil
}

func (r *repository) RegisterTTS(ctx context.Context, a *domain.TTSArtifact) (int64, error) {
	a.Status = domain.TTSPending
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO tts_artifacts (epoch_ms, text, audio_path, transcript_path, track_title, track_artist, mode, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING id`,
		a.EpochMs, a.Text, a.AudioPath, nullString(a.TranscriptPath), a.TrackTitle, a.TrackArtist, a.Mode)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: register tts: %v", coreerrors.ErrUnavailable, err)
	}
	a.ID = id
	return id, nil
}

// legalTTSTransitions mirrors §4.2: only pending->ready|failed and
// ready->garbage are legal.
var legalTTSTransitions = map[domain.TTSStatus]map[domain.TTSStatus]bool{
	domain.TTSPending: {domain.TTSReady: true, domain.TTSFailed: true},
	domain.TTSReady:   {domain.TTSGarbage: true},
}

func (r *repository) MarkTTS(ctx context.Context, id int64, status domain.TTSStatus, sizeBytes, durationMs int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", coreerrors.ErrUnavailable, err)
	}
	defer tx.Rollback()

	var current domain.TTSStatus
	if err := tx.GetContext(ctx, &current, `SELECT status FROM tts_artifacts WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: tts artifact %d", coreerrors.ErrNotFound, id)
		}
		return fmt.Errorf("%w: mark tts lookup: %v", coreerrors.ErrUnavailable, err)
	}
	if !legalTTSTransitions[current][status] {
		return fmt.Errorf("%w: %s -> %s", coreerrors.ErrIllegalTransition, current, status)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tts_artifacts SET status = $1, size_bytes = $2, duration_ms = $3 WHERE id = $4`,
		status, sizeBytes, durationMs, id); err != nil {
		return fmt.Errorf("%w: mark tts update: %v", coreerrors.ErrUnavailable, err)
	}

	// A TTSArtifact leaving ready (ready->garbage) nulls any referring
	// PlayEvent's FK, per §9's weak-reference design note.
	if current == domain.TTSReady && status == domain.TTSGarbage {
		if _, err := tx.ExecContext(ctx, `UPDATE play_events SET tts_id = NULL WHERE tts_id = $1`, id); err != nil {
			return fmt.Errorf("%w: null fk on garbage: %v", coreerrors.ErrUnavailable, err)
		}
	}

	return tx.Commit()
}

func (r *repository) History(ctx context.Context, limit int, before *int64) ([]domain.PlayEvent, error) {
	query := `
		SELECT pe.id, pe.kind, pe.epoch_ms, pe.title, pe.artist, pe.album, pe.source_uri,
		       pe.artwork_ref, pe.tts_id, ta.text AS tts_text, ta.status AS tts_status
		FROM play_events pe
		LEFT JOIN tts_artifacts ta ON ta.id = pe.tts_id
		WHERE ($1::bigint IS NULL OR pe.id < $1)
		ORDER BY pe.id DESC
		LIMIT $2`

	var beforeArg sql.NullInt64
	if before != nil {
		beforeArg = sql.NullInt64{Int64: *before, Valid: true}
	}

	rows, err := r.db.QueryxContext(ctx, query, beforeArg, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: history query: %v", coreerrors.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []domain.PlayEvent
	for rows.Next() {
		var row historyRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("%w: history scan: %v", coreerrors.ErrUnavailable, err)
		}
		out = append(out, row.toDomain())
	}
	return out, rows.Err()
}

func (r *repository) PutArtwork(ctx context.Context, entry *domain.ArtworkCacheEntry) error {
	now := entry.CachedAt
	if now.IsZero() {
		now = entry.LastUsedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artwork_cache (cache_key, artist, album, source_uri, local_path, size_bytes, cached_at, last_used_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)
		ON CONFLICT (cache_key) DO UPDATE SET
			local_path = EXCLUDED.local_path,
			size_bytes = EXCLUDED.size_bytes,
			status = EXCLUDED.status,
			last_used_at = EXCLUDED.last_used_at`,
		entry.Key, nullString(entry.Artist), nullString(entry.Album), nullString(entry.SourceURI),
		entry.LocalPath, entry.SizeBytes, now, entry.Status)
	if err != nil {
		return fmt.Errorf("%w: put artwork: %v", coreerrors.ErrUnavailable, err)
	}
	return nil
}

func (r *repository) GetArtwork(ctx context.Context, key string) (*domain.ArtworkCacheEntry, error) {
	var row artworkRow
	err := r.db.GetContext(ctx, &row, `
		SELECT cache_key, artist, album, source_uri, local_path, size_bytes, cached_at, last_used_at, status
		FROM artwork_cache WHERE cache_key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get artwork: %v", coreerrors.ErrUnavailable, err)
	}
	e := row.toDomain()
	return &e, nil
}

func (r *repository) TouchArtwork(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE artwork_cache SET last_used_at = NOW() WHERE cache_key = $1`, key)
	if err != nil {
		return fmt.Errorf("%w: touch artwork: %v", coreerrors.ErrUnavailable, err)
	}
	return nil
}

// EvictArtworkOverCap removes least-recently-used entries until the total
// cached size is under capBytes. Intended to run from housekeeping, never
// synchronously in a request path (§4.2).
func (r *repository) EvictArtworkOverCap(ctx context.Context, capBytes int64) (int, error) {
	var total sql.NullInt64
	if err := r.db.GetContext(ctx, &total, `SELECT SUM(size_bytes) FROM artwork_cache`); err != nil {
		return 0, fmt.Errorf("%w: sum artwork size: %v", coreerrors.ErrUnavailable, err)
	}
	if !total.Valid || total.Int64 <= capBytes {
		return 0, nil
	}

	var victims []string
	if err := r.db.SelectContext(ctx, &victims, `
		SELECT cache_key FROM artwork_cache ORDER BY last_used_at ASC`); err != nil {
		return 0, fmt.Errorf("%w: list artwork lru: %v", coreerrors.ErrUnavailable, err)
	}

	evicted := 0
	remaining := total.Int64
	for _, key := range victims {
		if remaining <= capBytes {
			break
		}
		var size int64
		if err := r.db.GetContext(ctx, &size, `SELECT size_bytes FROM artwork_cache WHERE cache_key = $1`, key); err != nil {
			continue
		}
		if _, err := r.db.ExecContext(ctx, `DELETE FROM artwork_cache WHERE cache_key = $1`, key); err != nil {
			return evicted, fmt.Errorf("%w: evict artwork: %v", coreerrors.ErrUnavailable, err)
		}
		remaining -= size
		evicted++
	}
	return evicted, nil
}

// SweepPendingTTS recovers from a crash between RegisterTTS and MarkTTS
// (§8 S6) by failing artifacts stuck pending past olderThan.
func (r *repository) SweepPendingTTS(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tts_artifacts SET status = 'failed'
		WHERE status = 'pending' AND created_at < NOW() - ($1 || ' seconds')::interval`,
		int64(olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("%w: sweep pending tts: %v", coreerrors.ErrUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// TrimHistory enforces the retention policy (§3): an event is kept if it
// is among the keepN most recent or within olderThan; both limits apply.
func (r *repository) TrimHistory(ctx context.Context, keepN int, olderThan time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM play_events
		WHERE id NOT IN (SELECT id FROM play_events ORDER BY id DESC LIMIT $1)
		  AND committed_at < NOW() - ($2 || ' seconds')::interval`,
		keepN, int64(olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("%w: trim history: %v", coreerrors.ErrUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GarbageCollectArtifacts deletes failed/garbage TTSArtifact rows older than
// olderThan and returns their file paths, so the caller can unlink the
// audio/transcript files writeArtifactFiles left on disk (§5, §12).
func (r *repository) GarbageCollectArtifacts(ctx context.Context, olderThan time.Duration) ([]domain.TTSArtifact, error) {
	rows, err := r.db.QueryxContext(ctx, `
		DELETE FROM tts_artifacts
		WHERE status IN ('failed', 'garbage') AND created_at < NOW() - ($1 || ' seconds')::interval
		RETURNING id, audio_path, transcript_path`,
		int64(olderThan.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("%w: garbage collect artifacts: %v", coreerrors.ErrUnavailable, err)
	}
	defer rows.Close()

	var deleted []domain.TTSArtifact
	for rows.Next() {
		var a domain.TTSArtifact
		var transcriptPath sql.NullString
		if err := rows.Scan(&a.ID, &a.AudioPath, &transcriptPath); err != nil {
			return deleted, fmt.Errorf("%w: scan garbage collected artifact: %v", coreerrors.ErrUnavailable, err)
		}
		a.TranscriptPath = transcriptPath.String
		deleted = append(deleted, a)
	}
	return deleted, rows.Err()
}

func (r *repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", coreerrors.ErrUnavailable, err)
	}
	return nil
}

func (r *repository) Close() error {
	return r.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
