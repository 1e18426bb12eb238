package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunOnce(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var fired atomic.Int32
	task := s.Create(func(*Task) { fired.Add(1) }, nil)
	task.RunOnce(10 * time.Millisecond)

	require.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load(), "one-shot task fired more than once")
}

func TestRunPeriodic(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var fired atomic.Int32
	task := s.Create(func(*Task) { fired.Add(1) }, nil)
	task.Run(25*time.Millisecond, 0)

	require.Eventually(t, func() bool { return fired.Load() >= 3 },
		2*time.Second, 5*time.Millisecond)

	task.Stop()
	n := fired.Load()
	time.Sleep(100 * time.Millisecond)
	require.LessOrEqual(t, fired.Load(), n+1, "stopped task kept firing")
}

func TestInactiveTaskDoesNotFire(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var fired atomic.Int32
	s.Create(func(*Task) { fired.Add(1) }, nil)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())
}
