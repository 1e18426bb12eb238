// Package sched provides a single-threaded timed/periodic task runner.
// Tasks live in one FIFO walked every 20 ms; periodic tasks are
// reinserted at the tail after firing.
package sched

import (
	"sync"
	"time"
)

const tickInterval = 20 * time.Millisecond

// Task is a scheduled function with its timing state.
type Task struct {
	s   *Scheduler
	fn  func(*Task)
	Ctx any

	next     time.Time
	interval time.Duration
	once     bool
	active   bool
}

// RunOnce arms the task to fire a single time after delay.
func (t *Task) RunOnce(delay time.Duration) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.next = time.Now().Add(delay)
	t.interval = 0
	t.once = true
	t.active = true
}

// Run arms the task to fire every interval, the first time after delay.
func (t *Task) Run(interval, delay time.Duration) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.next = time.Now().Add(delay)
	t.interval = interval
	t.once = false
	t.active = true
}

// Stop deactivates the task. It stays in the scheduler and can be
// re-armed later.
func (t *Task) Stop() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.active = false
}

// Scheduler walks its task list on a dedicated goroutine.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []*Task
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Create registers a new inactive task. Arm it with Run or RunOnce.
func (s *Scheduler) Create(fn func(*Task), ctx any) *Task {
	t := &Task{s: s, fn: fn, Ctx: ctx}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t
}

// Start begins processing tasks.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
}

// Stop terminates the scheduler goroutine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-time.After(tickInterval):
		}

		s.mu.Lock()
		now := time.Now()
		n := len(s.tasks)
		for i := 0; i < n; i++ {
			t := s.tasks[0]
			s.tasks = s.tasks[1:]

			if t.active && !now.Before(t.next) {
				s.mu.Unlock()
				t.fn(t)
				s.mu.Lock()
				now = time.Now()
				if !t.once {
					t.next = now.Add(t.interval)
					s.tasks = append(s.tasks, t)
				} else {
					t.active = false
					s.tasks = append(s.tasks, t)
				}
			} else {
				s.tasks = append(s.tasks, t)
			}
		}
		s.mu.Unlock()
	}
}
