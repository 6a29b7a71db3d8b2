package loginflow

import (
	"context"
	"sync"
	"time"
)

// Clock schedules callbacks. SystemClock is the production implementation.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// SystemClock schedules with time.AfterFunc.
type SystemClock struct{}

// AfterFunc implements Clock.
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// DelayedNavigator implements Navigator for hosts that navigate in-process,
// calling Navigate once the delay has elapsed on Clock.
type DelayedNavigator struct {
	Clock    Clock
	Navigate func(destination string)

	mu      sync.Mutex
	pending Timer
}

// NavigateAfter schedules navigation, replacing any navigation still pending.
func (n *DelayedNavigator) NavigateAfter(_ context.Context, destination string, delay time.Duration) {
	clock := n.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending != nil {
		n.pending.Stop()
	}
	n.pending = clock.AfterFunc(delay, func() {
		n.mu.Lock()
		n.pending = nil
		n.mu.Unlock()
		if n.Navigate != nil {
			n.Navigate(destination)
		}
	})
}

// Cancel drops a pending navigation, e.g. when the view unmounts.
func (n *DelayedNavigator) Cancel() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending == nil {
		return false
	}
	stopped := n.pending.Stop()
	n.pending = nil
	return stopped
}
