package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"chatline/internal/constants"

	"github.com/sirupsen/logrus"
)

// ErrLoopStopped is returned by Do when the loop is no longer running.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop is the production Timeline: a single goroutine draining a queue of closures.
type Loop struct {
	queue  chan func()
	logger *logrus.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewLoop creates a loop with the given queue capacity
func NewLoop(size int, logger *logrus.Logger) *Loop {
	if size <= 0 {
		size = constants.DefaultLoopQueueSize
	}
	return &Loop{
		queue:  make(chan func(), size),
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled. It blocks.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		l.logger.Warn("Event loop is already running")
		return
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		close(l.stopCh)
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			l.execute(fn)
		}
	}
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", r).Error("Event loop task panicked")
		}
	}()
	fn()
}

// Post queues fn. Posting after the loop stopped drops the task.
func (l *Loop) Post(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.stopCh:
	}
}

// Do runs fn on the loop and waits for it to finish. It must not be called from the loop itself.
// When Do returns an error fn has not run and never will.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// claimed is won by whichever side gets there first: the task starting or Do giving up.
	var claimed atomic.Bool
	done := make(chan struct{})
	task := func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		defer close(done)
		fn()
	}
	abandon := func(err error) error {
		if claimed.CompareAndSwap(false, true) {
			return err
		}
		<-done
		return nil
	}

	select {
	case l.queue <- task:
	case <-l.stopCh:
		return abandon(ErrLoopStopped)
	case <-ctx.Done():
		return abandon(ctx.Err())
	}

	select {
	case <-done:
		return nil
	case <-l.stopCh:
		return abandon(ErrLoopStopped)
	case <-ctx.Done():
		return abandon(ctx.Err())
	}
}

// After schedules fn on the loop. A cancelled task never runs, even if its timer already fired.
func (l *Loop) After(d time.Duration, fn func()) CancelFunc {
	var cancelled atomic.Bool
	timer := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}

// Now returns the wall clock
func (l *Loop) Now() time.Time {
	return time.Now()
}
