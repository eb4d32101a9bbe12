package domain

// NowSnapshot is C3's derived view of the currently playing item. It is
// never persisted; TrackStartedAtMs is held stable by C3 across refreshes
// that do not observe a track change, which is what keeps client progress
// bars from jumping on poll.
type NowSnapshot struct {
	Title            string `json:"title"`
	Artist           string `json:"artist"`
	Album            string `json:"album,omitempty"`
	ArtworkRef       string `json:"artwork_ref,omitempty"`
	TrackStartedAtMs int64  `json:"track_started_at_ms"`
	CapturedAtMs     int64  `json:"captured_at_ms"`
	Stale            bool   `json:"stale"`
}

// NextSnapshot is C3's derived, ordered view of upcoming entries, excluding
// the currently playing one. At most K entries are kept (default K=8).
type NextSnapshot struct {
	Entries      []TrackRef `json:"entries"`
	CapturedAtMs int64      `json:"captured_at_ms"`
	Stale        bool       `json:"stale"`
}
