package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(JobArmed, JobGenerating))
	assert.True(t, CanTransition(JobArmed, JobCancelled))
	assert.True(t, CanTransition(JobGenerating, JobSynthesizing))
	assert.True(t, CanTransition(JobRegistered, JobEnqueued))
	assert.False(t, CanTransition(JobArmed, JobRegistered))
	assert.False(t, CanTransition(JobEnqueued, JobFailed))
	assert.False(t, CanTransition(JobCancelled, JobArmed))
}

func TestJobStateTerminal(t *testing.T) {
	assert.True(t, JobEnqueued.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobCancelled.Terminal())
	assert.False(t, JobArmed.Terminal())
	assert.False(t, JobSynthesizing.Terminal())
}

func TestJobDedupKeyStable(t *testing.T) {
	k1 := JobDedupKey("Song", "Artist", 1000)
	k2 := JobDedupKey("Song", "Artist", 1000)
	k3 := JobDedupKey("Song", "Artist", 2000)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestPlayEventDedupKeyIgnoresEpoch(t *testing.T) {
	// The key depends only on (kind, title, artist); the caller enforces the
	// 10s window separately with an epoch_ms range query, so two events at
	// any epoch with the same identity hash identically.
	k1 := PlayEventDedupKey(KindSong, "X", "Y")
	k2 := PlayEventDedupKey(KindSong, "X", "Y")
	assert.Equal(t, k1, k2)

	// Different title/artist -> different key.
	k3 := PlayEventDedupKey(KindSong, "X", "Z")
	assert.NotEqual(t, k1, k3)

	// Different kind -> different key.
	k4 := PlayEventDedupKey(KindDJ, "X", "Y")
	assert.NotEqual(t, k1, k4)
}
