package player

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeTarget struct {
	playing atomic.Bool
	signals atomic.Int64
}

func (f *fakeTarget) IsPlaying() bool { return f.playing.Load() }
func (f *fakeTarget) Signal()         { f.signals.Add(1) }

func TestTrigger_SignalsOnlyWhilePlaying(t *testing.T) {
	target := &fakeTarget{}
	trig := NewTrigger(target, nil, time.Millisecond)
	trig.Start()
	defer trig.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, target.signals.Load())

	target.playing.Store(true)
	assert.Eventually(t, func() bool {
		return target.signals.Load() >= 5
	}, time.Second, time.Millisecond)
}

func TestTrigger_StopIsPrompt(t *testing.T) {
	target := &fakeTarget{}
	target.playing.Store(true)
	trig := NewTrigger(target, nil, 5*time.Millisecond)
	trig.Start()
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	trig.Stop()
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	n := target.signals.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, target.signals.Load(), "signals after stop")

	// second stop is a no-op
	trig.Stop()
}

func TestTrigger_RestartIsIgnored(t *testing.T) {
	target := &fakeTarget{}
	target.playing.Store(true)
	trig := NewTrigger(target, nil, time.Millisecond)
	trig.Start()
	trig.Start()
	trig.Stop()

	n := target.signals.Load()
	assert.NotPanics(t, trig.Start)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, target.signals.Load())
	trig.Stop()
}
