// Package ingest implements C8: normalize, dedup, commit, broadcast, and arm
// the next DJ job for every incoming track-change event (§4.8). It is
// orchestration-only, composing C2/C4/C9/C5 behind one entry point reached
// by the engine's webhooks (POST /api/event and POST /api/engine_event).
// C3's change detection does not call it.
package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/coreerrors"
	"github.com/aircast/coordinator/internal/domain"
	"github.com/aircast/coordinator/internal/eventbus"
)

// Store is the subset of store.Store the ingest path depends on.
type Store interface {
	CommitPlayEvent(ctx context.Context, e *domain.PlayEvent) (int64, error)
}

// Scheduler is the subset of C9 the ingest path depends on.
type Scheduler interface {
	ArmAfter(id string, delay time.Duration, fn func())
	Cancel(id string)
}

// DJArmer is the subset of C5 the ingest path depends on.
type DJArmer interface {
	Arm(targetEpochMs int64, title, artist string)
}

// NextPredictor supplies the first entry of C3's NextSnapshot, used to
// decide which upcoming track the armed DJ job should introduce (§4.8 step
// 4: "next_predicted comes from C3's NextSnapshot").
type NextPredictor interface {
	Next(limit int) domain.NextSnapshot
}

// Config tunes the delay between an ingest and arming the next DJ job.
type Config struct {
	DJDelay time.Duration
}

// Ingest is C8.
type Ingest struct {
	cfg       Config
	store     Store
	bus       *eventbus.Bus
	scheduler Scheduler
	dj        DJArmer
	next      NextPredictor
	logger    *zap.Logger

	lastArmedKey string
}

func New(cfg Config, store Store, bus *eventbus.Bus, scheduler Scheduler, dj DJArmer, next NextPredictor, logger *zap.Logger) *Ingest {
	if cfg.DJDelay == 0 {
		cfg.DJDelay = 30 * time.Second
	}
	return &Ingest{cfg: cfg, store: store, bus: bus, scheduler: scheduler, dj: dj, next: next, logger: logger}
}

// Event is the normalized input to Accept, already NFC-normalized and
// clock-clamped by the HTTP layer (§4.7 validation rules).
type Event struct {
	Kind      domain.Kind
	Title     string
	Artist    string
	Album     string
	SourceURI string
	EpochMs   int64
}

// Result reports what Accept did, for the HTTP layer's response shaping
// (§7: DuplicateEvent is swallowed as 200 deduped=true).
type Result struct {
	ID      int64
	Deduped bool
}

// Accept runs the four-step ingest pipeline (§4.8).
func (i *Ingest) Accept(ctx context.Context, ev Event) (Result, error) {
	e := &domain.PlayEvent{
		Kind:    ev.Kind,
		EpochMs: ev.EpochMs,
		Title:   ev.Title,
		Artist:  ev.Artist,
		Album:   ev.Album,
		SourceURI: ev.SourceURI,
	}

	id, err := i.store.CommitPlayEvent(ctx, e)
	if err != nil {
		if errors.Is(err, coreerrors.ErrDuplicateEvent) {
			return Result{ID: id, Deduped: true}, nil
		}
		return Result{}, err
	}
	e.ID = id

	i.bus.Publish(eventbus.TopicTrackChanged, *e)
	i.bus.Publish(eventbus.TopicHistoryAppended, *e)

	i.armNextDJJob()

	return Result{ID: id}, nil
}

// armNextDJJob cancels any job armed for the previous prediction and arms a
// fresh one for C3's current first NextSnapshot entry (§4.8 step 4).
func (i *Ingest) armNextDJJob() {
	if i.scheduler == nil || i.dj == nil || i.next == nil {
		return
	}
	if i.lastArmedKey != "" {
		i.scheduler.Cancel(i.lastArmedKey)
	}

	snap := i.next.Next(1)
	if len(snap.Entries) == 0 {
		i.lastArmedKey = ""
		return
	}
	predicted := snap.Entries[0]
	targetEpochMs := time.Now().Add(i.cfg.DJDelay).UnixMilli()
	key := domain.JobDedupKey(predicted.Title, predicted.Artist, targetEpochMs)
	i.lastArmedKey = key

	i.scheduler.ArmAfter(key, i.cfg.DJDelay, func() {
		i.dj.Arm(targetEpochMs, predicted.Title, predicted.Artist)
	})
}
