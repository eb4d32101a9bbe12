// Package scheduler implements C9: arm/cancel timers keyed by id, the
// generalization of time.AfterFunc the spec calls for (§4.9). No calendar or
// cron semantics are needed — only "fire once after a delay, replace on
// re-arm, cancel best-effort."
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler owns a map of in-flight timers guarded by a mutex. A racing fire
// that has already been dispatched when Cancel runs is absorbed by the
// caller's own idempotence (§4.9) — Scheduler makes no guarantee beyond
// best-effort cancellation.
type Scheduler struct {
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger, timers: make(map[string]*time.Timer)}
}

// ArmAfter schedules fn to run after delay, keyed by id. Arming an id that
// already has a pending timer replaces its fire time (§4.9).
func (s *Scheduler) ArmAfter(id string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[id]; ok {
		existing.Stop()
	}

	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops the timer for id, if any. O(1), best-effort: if the timer
// already fired, this is a no-op.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending reports whether id currently has an armed, uncancelled timer.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// StopAll cancels every pending timer, for graceful shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
