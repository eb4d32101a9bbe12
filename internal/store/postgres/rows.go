package postgres

import (
	"database/sql"
	"time"

	"github.com/aircast/coordinator/internal/domain"
)

// playEventRow and historyRow mirror the teacher's sql.NullString/NullTime
// scan-target pattern for nullable columns, converted to domain types at
// the boundary.
type playEventRow struct {
	ID         int64          `db:"id"`
	Kind       domain.Kind    `db:"kind"`
	EpochMs    int64          `db:"epoch_ms"`
	Title      string         `db:"title"`
	Artist     string         `db:"artist"`
	Album      sql.NullString `db:"album"`
	SourceURI  sql.NullString `db:"source_uri"`
	ArtworkRef sql.NullString `db:"artwork_ref"`
	TTSID      sql.NullInt64  `db:"tts_id"`
}

func (row playEventRow) toDomain() domain.PlayEvent {
	e := domain.PlayEvent{
		ID:         row.ID,
		Kind:       row.Kind,
		EpochMs:    row.EpochMs,
		Title:      row.Title,
		Artist:     row.Artist,
		Album:      row.Album.String,
		SourceURI:  row.SourceURI.String,
		ArtworkRef: row.ArtworkRef.String,
	}
	if row.TTSID.Valid {
		id := row.TTSID.Int64
		e.TTSID = &id
	}
	return e
}

type historyRow struct {
	playEventRow
	TTSText   sql.NullString `db:"tts_text"`
	TTSStatus sql.NullString `db:"tts_status"`
}

func (row historyRow) toDomain() domain.PlayEvent {
	e := row.playEventRow.toDomain()
	// Only surface TTS text for dj-kind rows whose linked artifact is
	// ready; a failed/garbage artifact must never appear as a dj entry in
	// history (§8 S6).
	if e.Kind == domain.KindDJ && row.TTSStatus.Valid && row.TTSStatus.String == string(domain.TTSReady) {
		e.TTSText = row.TTSText.String
	}
	return e
}

type artworkRow struct {
	Key        string         `db:"cache_key"`
	Artist     sql.NullString `db:"artist"`
	Album      sql.NullString `db:"album"`
	SourceURI  sql.NullString `db:"source_uri"`
	LocalPath  string         `db:"local_path"`
	SizeBytes  int64          `db:"size_bytes"`
	CachedAt   time.Time      `db:"cached_at"`
	LastUsedAt time.Time      `db:"last_used_at"`
	Status     string         `db:"status"`
}

func (row artworkRow) toDomain() domain.ArtworkCacheEntry {
	return domain.ArtworkCacheEntry{
		Key:        row.Key,
		Artist:     row.Artist.String,
		Album:      row.Album.String,
		SourceURI:  row.SourceURI.String,
		LocalPath:  row.LocalPath,
		SizeBytes:  row.SizeBytes,
		CachedAt:   row.CachedAt,
		LastUsedAt: row.LastUsedAt,
		Status:     domain.ArtworkStatus(row.Status),
	}
}
