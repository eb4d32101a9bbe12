package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestArmAfterFires(t *testing.T) {
	s := New(zap.NewNop())
	var fired int32
	s.ArmAfter("job-1", 10*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)
}

func TestArmAfterReplacesExistingTimer(t *testing.T) {
	s := New(zap.NewNop())
	var calls int32
	s.ArmAfter("job-1", 20*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	s.ArmAfter("job-1", 20*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCancelPreventsFire(t *testing.T) {
	s := New(zap.NewNop())
	var fired int32
	s.ArmAfter("job-1", 20*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	s.Cancel("job-1")

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.False(t, s.Pending("job-1"))
}

func TestCancelUnknownIDIsNoop(t *testing.T) {
	s := New(zap.NewNop())
	assert.NotPanics(t, func() { s.Cancel("nonexistent") })
}
