package domain

// TTSMode distinguishes the three kinds of spoken segment C5 can register.
type TTSMode string

const (
	ModeIntro  TTSMode = "intro"
	ModeOutro  TTSMode = "outro"
	ModeCustom TTSMode = "custom"
)

// TTSStatus tracks the lifecycle of a synthesized artifact (§4.2). Only
// pending->ready, pending->failed, and ready->garbage transitions are legal;
// Store.MarkTTS enforces this and returns ErrIllegalTransition otherwise.
type TTSStatus string

const (
	TTSPending TTSStatus = "pending"
	TTSReady   TTSStatus = "ready"
	TTSFailed  TTSStatus = "failed"
	TTSGarbage TTSStatus = "garbage"
)

// TTSArtifact is a registered spoken-segment render. EpochMs is unique: a
// single job's render is registered once, then transitioned in place.
type TTSArtifact struct {
	ID             int64     `json:"id" db:"id"`
	EpochMs        int64     `json:"epoch_ms" db:"epoch_ms"`
	Text           string    `json:"text" db:"text"`
	AudioPath      string    `json:"audio_path" db:"audio_path"`
	TranscriptPath string    `json:"transcript_path,omitempty" db:"transcript_path"`
	TrackTitle     string    `json:"track_title" db:"track_title"`
	TrackArtist    string    `json:"track_artist" db:"track_artist"`
	Mode           TTSMode   `json:"mode" db:"mode"`
	Status         TTSStatus `json:"status" db:"status"`
	SizeBytes      int64     `json:"size_bytes" db:"size_bytes"`
	DurationMs     int64     `json:"duration_ms" db:"duration_ms"`
}
