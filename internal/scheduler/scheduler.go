// Package scheduler provides the single logical timeline the chat engine runs on.
//
// Every state mutation (transport callbacks, timers, user actions) is executed through a
// Timeline, so components owned by the engine never observe concurrent mutation.
package scheduler

import (
	"context"
	"time"
)

// CancelFunc cancels a scheduled callback. Calling it after the callback ran, or twice, is a no-op.
type CancelFunc func()

// Scheduler defers work on the timeline.
type Scheduler interface {
	// After runs fn on the timeline once d has elapsed.
	After(d time.Duration, fn func()) CancelFunc
	// Now returns the timeline's current time.
	Now() time.Time
}

// Timeline is a Scheduler that also accepts work to run as soon as possible.
type Timeline interface {
	Scheduler
	// Post queues fn to run on the timeline.
	Post(fn func())
}

// Runner is a Timeline that can also run work synchronously from outside the timeline.
// Both Loop and Manual implement it.
type Runner interface {
	Timeline
	// Do runs fn on the timeline and waits for it to finish.
	Do(ctx context.Context, fn func()) error
}
