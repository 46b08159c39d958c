package scheduler

import (
	"context"
	"sync"
	"time"
)

// Manual is a fake-clock Timeline. Nothing runs until the test advances the clock;
// all work executes on the goroutine calling Advance.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	at        time.Time
	seq       uint64
	fn        func()
	cancelled bool
}

// NewManual creates a manual timeline starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the fake clock
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Post queues fn at the current instant; it runs on the next Flush or Advance.
func (m *Manual) Post(fn func()) {
	m.schedule(0, fn)
}

// After queues fn to run once the clock passes now+d
func (m *Manual) After(d time.Duration, fn func()) CancelFunc {
	task := m.schedule(d, fn)
	return func() {
		m.mu.Lock()
		task.cancelled = true
		m.mu.Unlock()
	}
}

func (m *Manual) schedule(d time.Duration, fn func()) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.seq++
	task := &manualTask{at: m.now.Add(d), seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, task)
	return task
}

// Do runs fn immediately and then flushes any work it posted.
func (m *Manual) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	m.Flush()
	return nil
}

// Flush runs every task due at the current instant, including ones posted while flushing
func (m *Manual) Flush() {
	m.Advance(0)
}

// Advance moves the clock forward by d, running due tasks in (time, insertion) order
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		task := m.popDue(target)
		if task == nil {
			break
		}
		task.fn()
	}

	m.mu.Lock()
	if target.After(m.now) {
		m.now = target
	}
	m.mu.Unlock()
}

// RunNext jumps the clock to the next pending task and runs everything due then.
// It reports false when nothing is pending.
func (m *Manual) RunNext() bool {
	d, ok := m.NextDelay()
	if !ok {
		return false
	}
	m.Advance(d)
	return true
}

// NextDelay reports the time until the earliest pending task
func (m *Manual) NextDelay() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *manualTask
	for _, t := range m.tasks {
		if t.cancelled {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	if next == nil {
		return 0, false
	}
	return next.at.Sub(m.now), true
}

// Pending counts tasks that are scheduled and not cancelled
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

func (m *Manual) popDue(target time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, t := range m.tasks {
		if t.cancelled || t.at.After(target) {
			continue
		}
		if idx == -1 || t.at.Before(m.tasks[idx].at) || (t.at.Equal(m.tasks[idx].at) && t.seq < m.tasks[idx].seq) {
			idx = i
		}
	}

	// drop cancelled tasks while holding the lock
	live := m.tasks[:0]
	var picked *manualTask
	for i, t := range m.tasks {
		if i == idx {
			picked = t
			continue
		}
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.tasks = live

	if picked != nil && picked.at.After(m.now) {
		m.now = picked.at
	}
	return picked
}
