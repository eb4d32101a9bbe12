package domain

// TrackRef is a queued-item view returned by C1.Upcoming; it never carries
// playback position, only identity and ordering.
type TrackRef struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	SourceURI  string `json:"source_uri,omitempty"`
	ArtworkRef string `json:"artwork_ref,omitempty"`
}
