// Package domain holds the entities of the coordination core (§3): append-only
// play history, TTS artifacts, artwork cache entries, derived snapshots, and
// in-memory DJ jobs. C2 owns all persisted entities; every other component
// treats them as immutable once read.
package domain

// Kind distinguishes a song play from a DJ-generated intro/outro segment.
type Kind string

const (
	KindSong Kind = "song"
	KindDJ   Kind = "dj"
)

// PlayEvent is an append-only history row (§3). It is never mutated after
// commit; id reflects commit order.
type PlayEvent struct {
	ID         int64          `json:"id" db:"id"`
	Kind       Kind           `json:"kind" db:"kind"`
	EpochMs    int64          `json:"epoch_ms" db:"epoch_ms"`
	Title      string         `json:"title" db:"title"`
	Artist     string         `json:"artist" db:"artist"`
	Album      string         `json:"album,omitempty" db:"album"`
	SourceURI  string         `json:"source_uri,omitempty" db:"source_uri"`
	ArtworkRef string         `json:"artwork_ref,omitempty" db:"artwork_ref"`
	TTSID      *int64         `json:"tts_id,omitempty" db:"tts_id"`
	Extra      map[string]any `json:"extra,omitempty" db:"-"`

	// TTSText is populated by History() for dj-kind rows that carry a
	// linked, ready TTSArtifact; it is not a stored column.
	TTSText string `json:"tts_text,omitempty" db:"-"`
}

// DedupKey is the content fingerprint used to suppress duplicate events
// within the dedup window (§3: "(kind, epoch_ms, title, artist) is unique
// within a 10-second window").
type DedupKey string
