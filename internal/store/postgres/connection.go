// Package postgres implements the Store interface (C2, §4.2) against
// PostgreSQL via sqlx and lib/pq.
package postgres

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/config"
)

// Connect opens a pooled connection and verifies reachability.
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdle)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// CreateSchema creates the three tables implied by §3 and the indexes
// named in §6: (timestamp), (status), (tts_entry_id), (cache_key).
func CreateSchema(db *sqlx.DB, logger *zap.Logger) error {
	statements := []string{
		createPlayEventsTable,
		createTTSArtifactsTable,
		createArtworkCacheTable,
		createIndexes,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			logger.Error("schema statement failed", zap.Error(err), zap.String("stmt", stmt))
			return fmt.Errorf("create schema: %w", err)
		}
	}

	logger.Info("store schema ready")
	return nil
}

const createPlayEventsTable = `
CREATE TABLE IF NOT EXISTS play_events (
    id BIGSERIAL PRIMARY KEY,
    kind VARCHAR(10) NOT NULL,
    epoch_ms BIGINT NOT NULL,
    title TEXT NOT NULL,
    artist TEXT NOT NULL,
    album TEXT,
    source_uri TEXT,
    artwork_ref TEXT,
    tts_id BIGINT,
    dedup_key VARCHAR(32) NOT NULL,
    committed_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`

const createTTSArtifactsTable = `
CREATE TABLE IF NOT EXISTS tts_artifacts (
    id BIGSERIAL PRIMARY KEY,
    epoch_ms BIGINT NOT NULL UNIQUE,
    text TEXT NOT NULL,
    audio_path TEXT NOT NULL,
    transcript_path TEXT,
    track_title TEXT NOT NULL,
    track_artist TEXT NOT NULL,
    mode VARCHAR(10) NOT NULL,
    status VARCHAR(10) NOT NULL DEFAULT 'pending',
    size_bytes BIGINT NOT NULL DEFAULT 0,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`

const createArtworkCacheTable = `
CREATE TABLE IF NOT EXISTS artwork_cache (
    cache_key VARCHAR(64) PRIMARY KEY,
    artist TEXT,
    album TEXT,
    source_uri TEXT,
    local_path TEXT NOT NULL,
    size_bytes BIGINT NOT NULL DEFAULT 0,
    cached_at TIMESTAMP NOT NULL DEFAULT NOW(),
    last_used_at TIMESTAMP NOT NULL DEFAULT NOW(),
    status VARCHAR(10) NOT NULL DEFAULT 'ready'
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_play_events_timestamp ON play_events(epoch_ms);
CREATE INDEX IF NOT EXISTS idx_play_events_dedup_key ON play_events(dedup_key);
CREATE INDEX IF NOT EXISTS idx_tts_artifacts_status ON tts_artifacts(status);
CREATE INDEX IF NOT EXISTS idx_play_events_tts_entry_id ON play_events(tts_id);
CREATE INDEX IF NOT EXISTS idx_artwork_cache_key ON artwork_cache(cache_key);
`
