package domain

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// JobState enumerates the DJJob lifecycle (§4.5). armed is the only
// non-terminal state reachable from nowhere else; enqueued, failed, and
// cancelled are terminal.
type JobState string

const (
	JobArmed        JobState = "armed"
	JobGenerating   JobState = "generating"
	JobSynthesizing JobState = "synthesizing"
	JobRegistered   JobState = "registered"
	JobEnqueued     JobState = "enqueued"
	JobFailed       JobState = "failed"
	JobCancelled    JobState = "cancelled"
)

// Terminal reports whether s admits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case JobEnqueued, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// legalTransitions mirrors the diagram in §4.5: armed->generating->
// synthesizing->registered->enqueued, with any non-terminal state able to
// fall to failed or cancelled.
var legalTransitions = map[JobState]map[JobState]bool{
	JobArmed:        {JobGenerating: true, JobFailed: true, JobCancelled: true},
	JobGenerating:   {JobSynthesizing: true, JobFailed: true, JobCancelled: true},
	JobSynthesizing: {JobRegistered: true, JobFailed: true, JobCancelled: true},
	JobRegistered:   {JobEnqueued: true, JobFailed: true, JobCancelled: true},
}

// CanTransition reports whether moving from s to next is legal per §4.5.
func CanTransition(s, next JobState) bool {
	row, ok := legalTransitions[s]
	if !ok {
		return false
	}
	return row[next]
}

// DJJob is C5's in-memory unit of work; C5 is its exclusive owner. It is
// never persisted directly — only its terminal effects (a TTSArtifact row,
// an engine enqueue) are durable.
type DJJob struct {
	JobID         string   `json:"job_id"`
	TargetEpochMs int64    `json:"target_epoch_ms"`
	TrackTitle    string   `json:"track_title"`
	TrackArtist   string   `json:"track_artist"`
	State         JobState `json:"state"`
	DedupKey      string   `json:"dedup_key"`

	// The chosen LLM/TTS tiers and the reason for a terminal state, kept for
	// observability; not part of the state-machine contract.
	LLMTier string `json:"llm_tier,omitempty"`
	TTSTier string `json:"tts_tier,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// JobDedupKey computes dedup_key = hash(track_title, track_artist,
// target_epoch_ms) per §3, using blake2b-256 for a short, collision-resistant
// fingerprint with no external state.
func JobDedupKey(title, artist string, targetEpochMs int64) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", title, artist, targetEpochMs)))
	return hex.EncodeToString(sum[:16])
}

// PlayEventDedupKey computes the dedup fingerprint for a PlayEvent per §3:
// (kind, title, artist). The 10-second window itself is enforced by the
// caller's epoch_ms range query (CommitPlayEvent), not by bucketing epoch_ms
// into the hash — bucketing would let two events straddling a bucket
// boundary (e.g. 19.999s and 20.001s) escape dedup despite sharing the
// window.
func PlayEventDedupKey(kind Kind, title, artist string) DedupKey {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%s", kind, title, artist)))
	return DedupKey(hex.EncodeToString(sum[:16]))
}
