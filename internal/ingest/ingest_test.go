package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/coreerrors"
	"github.com/aircast/coordinator/internal/domain"
	"github.com/aircast/coordinator/internal/eventbus"
)

type fakeStore struct {
	committed []domain.PlayEvent
	dup       bool
}

func (f *fakeStore) CommitPlayEvent(_ context.Context, e *domain.PlayEvent) (int64, error) {
	if f.dup {
		return 1, coreerrors.ErrDuplicateEvent
	}
	e.ID = int64(len(f.committed) + 1)
	f.committed = append(f.committed, *e)
	return e.ID, nil
}

type fakeScheduler struct {
	armed    map[string]bool
	canceled []string
}

func (f *fakeScheduler) ArmAfter(id string, _ time.Duration, fn func()) {
	if f.armed == nil {
		f.armed = map[string]bool{}
	}
	f.armed[id] = true
	fn()
}
func (f *fakeScheduler) Cancel(id string) { f.canceled = append(f.canceled, id) }

type fakeDJ struct {
	armedTitle, armedArtist string
	calls                   int
}

func (f *fakeDJ) Arm(_ int64, title, artist string) {
	f.calls++
	f.armedTitle, f.armedArtist = title, artist
}

type fakeNext struct{ entries []domain.TrackRef }

func (f fakeNext) Next(limit int) domain.NextSnapshot {
	return domain.NextSnapshot{Entries: f.entries}
}

func TestAcceptCommitsAndArmsNextJob(t *testing.T) {
	store := &fakeStore{}
	bus := eventbus.New(zap.NewNop())
	sched := &fakeScheduler{}
	dj := &fakeDJ{}
	next := fakeNext{entries: []domain.TrackRef{{Title: "Next Track", Artist: "Next Artist"}}}

	in := New(Config{DJDelay: 10 * time.Millisecond}, store, bus, sched, dj, next, zap.NewNop())

	res, err := in.Accept(context.Background(), Event{Kind: domain.KindSong, Title: "X", Artist: "Y", EpochMs: 1_000_000})
	require.NoError(t, err)
	assert.False(t, res.Deduped)
	assert.Equal(t, 1, dj.calls)
	assert.Equal(t, "Next Track", dj.armedTitle)
}

func TestAcceptSwallowsDuplicateEvent(t *testing.T) {
	store := &fakeStore{dup: true}
	bus := eventbus.New(zap.NewNop())
	in := New(Config{}, store, bus, nil, nil, nil, zap.NewNop())

	res, err := in.Accept(context.Background(), Event{Kind: domain.KindSong, Title: "X", Artist: "Y", EpochMs: 1_000_000})
	require.NoError(t, err)
	assert.True(t, res.Deduped)
}

func TestAcceptCancelsPreviousArmedKeyOnNextEvent(t *testing.T) {
	store := &fakeStore{}
	bus := eventbus.New(zap.NewNop())
	sched := &fakeScheduler{}
	dj := &fakeDJ{}
	next := fakeNext{entries: []domain.TrackRef{{Title: "A", Artist: "B"}}}
	in := New(Config{DJDelay: 10 * time.Millisecond}, store, bus, sched, dj, next, zap.NewNop())

	_, err := in.Accept(context.Background(), Event{Kind: domain.KindSong, Title: "X", Artist: "Y", EpochMs: 1_000_000})
	require.NoError(t, err)
	_, err = in.Accept(context.Background(), Event{Kind: domain.KindSong, Title: "X2", Artist: "Y2", EpochMs: 2_000_000})
	require.NoError(t, err)

	assert.Len(t, sched.canceled, 1)
}
