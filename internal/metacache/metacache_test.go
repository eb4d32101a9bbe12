package metacache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/domain"
	"github.com/aircast/coordinator/internal/eventbus"
)

type fakeEngine struct {
	now      domain.NowSnapshot
	upcoming []domain.TrackRef
	err      error
}

func (f *fakeEngine) Now(ctx context.Context) (domain.NowSnapshot, error) {
	return f.now, f.err
}

func (f *fakeEngine) Upcoming(ctx context.Context, n int) ([]domain.TrackRef, error) {
	return f.upcoming, nil
}

func TestTrackStartedAtMsStableAcrossUnchangedTicks(t *testing.T) {
	fe := &fakeEngine{now: domain.NowSnapshot{Title: "X", Artist: "Y"}}
	bus := eventbus.New(zap.NewNop())
	c := New(Config{TickInterval: time.Hour}, fe, nil, bus, zap.NewNop())

	c.tick(context.Background())
	first := c.Now().TrackStartedAtMs
	require.NotZero(t, first)

	time.Sleep(5 * time.Millisecond)
	c.tick(context.Background())
	assert.Equal(t, first, c.Now().TrackStartedAtMs)
}

func TestTrackStartedAtMsAdvancesOnChange(t *testing.T) {
	fe := &fakeEngine{now: domain.NowSnapshot{Title: "X", Artist: "Y"}}
	bus := eventbus.New(zap.NewNop())
	c := New(Config{TickInterval: time.Hour}, fe, nil, bus, zap.NewNop())

	c.tick(context.Background())
	first := c.Now().TrackStartedAtMs

	time.Sleep(5 * time.Millisecond)
	fe.now = domain.NowSnapshot{Title: "A", Artist: "B"}
	c.tick(context.Background())
	assert.NotEqual(t, first, c.Now().TrackStartedAtMs)
}

func TestMarkStaleIfExpired(t *testing.T) {
	fe := &fakeEngine{now: domain.NowSnapshot{Title: "X", Artist: "Y"}}
	bus := eventbus.New(zap.NewNop())
	c := New(Config{TickInterval: time.Hour, StalenessCap: time.Millisecond}, fe, nil, bus, zap.NewNop())

	c.tick(context.Background())
	time.Sleep(5 * time.Millisecond)
	c.markStaleIfExpired()
	assert.True(t, c.Now().Stale)
}

func TestNextHonorsLimit(t *testing.T) {
	fe := &fakeEngine{
		now: domain.NowSnapshot{Title: "X", Artist: "Y"},
		upcoming: []domain.TrackRef{
			{Title: "A"}, {Title: "B"}, {Title: "C"},
		},
	}
	bus := eventbus.New(zap.NewNop())
	c := New(Config{TickInterval: time.Hour}, fe, nil, bus, zap.NewNop())
	c.tick(context.Background())

	snap := c.Next(2)
	assert.Len(t, snap.Entries, 2)
}
