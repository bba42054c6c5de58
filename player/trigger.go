package player

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const DefaultTriggerInterval = time.Millisecond

// Signaler is what a Trigger paces.
type Signaler interface {
	IsPlaying() bool
	Signal()
}

// Trigger signals its target every interval while the target is playing.
// Shutdown is cooperative: the loop checks its flag once per interval.
// A Trigger runs at most once; Start after Stop does nothing.
type Trigger struct {
	target   Signaler
	clock    clock.Clock
	interval time.Duration

	started atomic.Bool
	alive   atomic.Bool
	done    chan struct{}
}

func NewTrigger(target Signaler, clk clock.Clock, interval time.Duration) *Trigger {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultTriggerInterval
	}
	return &Trigger{
		target:   target,
		clock:    clk,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (t *Trigger) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.alive.Store(true)
	go t.run()
}

// Stop clears the run flag and waits for the loop to exit, which takes at
// most one interval.
func (t *Trigger) Stop() {
	if !t.alive.CompareAndSwap(true, false) {
		return
	}
	<-t.done
}

func (t *Trigger) run() {
	defer close(t.done)
	for t.alive.Load() {
		if t.target.IsPlaying() {
			t.target.Signal()
		}
		t.clock.Sleep(t.interval)
	}
}
