package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/xid"

	"github.com/progrium/tapedeck/tape"
	"github.com/progrium/tapedeck/telemetry"
)

var (
	ErrNoBounds       = errors.New("no source has reported its time range")
	ErrAlreadyRunning = errors.New("engine already running")
)

// Status is a snapshot of the engine for controllers and displays.
type Status struct {
	State    State
	Speed    float64
	Reverse  bool
	Position int64
	Min      int64
	Max      int64
	Bounded  bool
	Run      string
}

// Engine replays recorded sources in step with wall-clock time. A Trigger
// goroutine paces it; each tick advances the replay clock, looks up the
// record active at the new recording time in every source and hands it to
// the sinks.
type Engine struct {
	clock    clock.Clock
	interval time.Duration
	log      *slog.Logger
	metrics  *telemetry.Metrics

	// mu guards playback state and the replay clock.
	mu    sync.Mutex
	state State
	rc    *Clock
	run   string

	bounds Bounds

	srcMu   sync.RWMutex
	sources []tape.Source

	// pubMu guards the last timestamp published per source, indexed like
	// sources, and is held while a tick hands records to the sinks.
	pubMu   sync.Mutex
	lastPub map[int]int64
	// pubGen changes whenever lastPub is reset; a tick that started in an
	// earlier generation publishes nothing.
	pubGen atomic.Uint64

	obsMu     sync.RWMutex
	observers []observerEntry
	nextObs   uint64
	sinks     []namedSink

	signal    chan struct{}
	alive     atomic.Bool
	closing   chan struct{}
	closeOnce sync.Once

	ticks     atomic.Uint64
	coalesced atomic.Uint64
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithTriggerInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.addObserver(o) }
}

func WithSink(name string, s Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, namedSink{name: name, Sink: s}) }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock:    clock.New(),
		interval: DefaultTriggerInterval,
		log:      slog.Default(),
		state:    StateStopped,
		rc:       NewClock(),
		lastPub:  make(map[int]int64),
		signal:   make(chan struct{}, 1),
		closing:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "engine")
	e.metrics.SetState(string(e.state))
	return e
}

func (e *Engine) now() int64 {
	return e.clock.Now().UnixMicro()
}

// AddSource registers a source and lets it report its bounds.
func (e *Engine) AddSource(s tape.Source) error {
	e.srcMu.Lock()
	e.sources = append(e.sources, s)
	e.srcMu.Unlock()
	return s.Attach(e)
}

// Subscribe adds an observer and returns a function that removes it.
func (e *Engine) Subscribe(o Observer) (unsubscribe func()) {
	e.obsMu.Lock()
	id := e.addObserver(o)
	e.obsMu.Unlock()
	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		for i, entry := range e.observers {
			if entry.id == id {
				e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

type observerEntry struct {
	id uint64
	Observer
}

// addObserver appends o; e.obsMu must be held or e not yet shared.
func (e *Engine) addObserver(o Observer) uint64 {
	e.nextObs++
	e.observers = append(e.observers, observerEntry{id: e.nextObs, Observer: o})
	return e.nextObs
}

// ReportBounds merges a source's time range into the replay bounds.
func (e *Engine) ReportBounds(min, max int64) error {
	min, max, err := e.bounds.Report(min, max)
	if err != nil {
		return err
	}
	e.log.Debug("bounds changed", "min", min, "max", max)
	e.notify(func(o Observer) { o.BoundsChanged(min, max) })
	return nil
}

func (e *Engine) Bounds() (min, max int64, ok bool) {
	return e.bounds.Range()
}

func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StatePlaying
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rc.Speed()
}

func (e *Engine) Status() Status {
	min, max, ok := e.bounds.Range()
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:    e.state,
		Speed:    e.rc.Speed(),
		Reverse:  e.rc.Reverse(),
		Position: e.rc.Position(),
		Min:      min,
		Max:      max,
		Bounded:  ok,
		Run:      e.run,
	}
}

// Play starts or resumes playback. It fails with ErrNoBounds until at least
// one source has reported its range; from Playing it does nothing.
func (e *Engine) Play() error {
	min, max, ok := e.bounds.Range()
	if !ok {
		return ErrNoBounds
	}

	e.mu.Lock()
	from := e.state
	next, legal := Next(from, EventPlay)
	if !legal {
		e.mu.Unlock()
		return nil
	}
	now := e.now()
	if from == StateStopped {
		if pos := e.rc.Position(); pos < min || pos > max {
			e.rc.Set(now, min)
		}
		e.run = xid.New().String()
	}
	e.rc.Anchor(now)
	e.state = next
	speed, run, pos := e.rc.Speed(), e.run, e.rc.Position()
	e.mu.Unlock()

	e.log.Info("playing", "run", run, "from", from, "position", pos, "speed", speed)
	e.stateChanged(next, speed)
	return nil
}

func (e *Engine) Pause() {
	e.mu.Lock()
	next, legal := Next(e.state, EventPause)
	if !legal {
		e.mu.Unlock()
		return
	}
	e.state = next
	speed, run := e.rc.Speed(), e.run
	e.mu.Unlock()

	e.log.Info("paused", "run", run)
	e.stateChanged(next, speed)
}

func (e *Engine) Stop() {
	e.mu.Lock()
	stopped := e.stopLocked()
	speed, run := e.rc.Speed(), e.run
	e.mu.Unlock()
	if !stopped {
		return
	}
	e.log.Info("stopped", "run", run)
	e.stopped(speed)
}

// stopLocked applies the stop transition: recording time back to the lower
// bound and speed back to 1x. e.mu must be held.
func (e *Engine) stopLocked() bool {
	next, legal := Next(e.state, EventStop)
	if !legal {
		return false
	}
	min, _, _ := e.bounds.Range()
	e.rc.Set(e.now(), min)
	e.rc.ResetSpeed()
	e.state = next
	e.resetPublished()
	return true
}

func (e *Engine) SpeedUp() {
	e.mu.Lock()
	e.rc.SpeedUp()
	state, speed := e.state, e.rc.Speed()
	e.mu.Unlock()

	e.log.Info("speed up", "speed", speed)
	e.stateChanged(state, speed)
}

func (e *Engine) SpeedDown() {
	e.mu.Lock()
	e.rc.SpeedDown()
	state, speed := e.state, e.rc.Speed()
	e.mu.Unlock()

	e.log.Info("speed down", "speed", speed)
	e.stateChanged(state, speed)
}

// SetDirection switches between forward and reverse replay. It is allowed
// in any state and applies from the next tick.
func (e *Engine) SetDirection(reverse bool) {
	e.mu.Lock()
	e.rc.SetDirection(reverse)
	e.mu.Unlock()
	e.log.Info("direction", "reverse", reverse)
}

// Seek moves the recording position to pos, clamped into the bounds.
func (e *Engine) Seek(pos int64) error {
	min, max, ok := e.bounds.Range()
	if !ok {
		return ErrNoBounds
	}
	pos = max64(min, min64(pos, max))

	e.mu.Lock()
	e.rc.Set(e.now(), pos)
	e.resetPublished()
	e.mu.Unlock()

	e.log.Info("seek", "position", pos)
	return nil
}

// Signal requests a tick. Signals are coalesced: while one is pending,
// further signals are dropped.
func (e *Engine) Signal() {
	select {
	case e.signal <- struct{}{}:
	default:
		e.coalesced.Add(1)
		e.metrics.Coalesced()
	}
}

// Ticks returns the number of ticks processed.
func (e *Engine) Ticks() uint64 { return e.ticks.Load() }

// Coalesced returns the number of signals dropped because one was pending.
func (e *Engine) Coalesced() uint64 { return e.coalesced.Load() }

// Run processes ticks until ctx is done or Close is called.
func (e *Engine) Run(ctx context.Context) error {
	if !e.alive.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.log.Info("starting", "interval", e.interval)

	trigger := NewTrigger(e, e.clock, e.interval)
	trigger.Start()
	defer trigger.Stop()

	go func() {
		select {
		case <-ctx.Done():
		case <-e.closing:
		}
		e.alive.Store(false)
		// wake the loop so it can observe the flag
		select {
		case e.signal <- struct{}{}:
		default:
		}
	}()

	for {
		<-e.signal
		if !e.alive.Load() {
			e.log.Info("shutting down")
			return nil
		}
		e.tick()
	}
}

// Close stops a running engine. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.closing) })
	return nil
}

func (e *Engine) tick() {
	e.mu.Lock()
	if e.state != StatePlaying {
		// pending signal from before a pause or stop
		e.mu.Unlock()
		return
	}
	now := e.now()
	t := e.rc.Advance(now)
	if !e.bounds.Contains(t) {
		e.stopLocked()
		speed, run := e.rc.Speed(), e.run
		e.mu.Unlock()

		e.log.Info("reading is finished", "run", run, "t", t)
		e.stopped(speed)
		return
	}
	reverse := e.rc.Reverse()
	gen := e.pubGen.Load()
	e.mu.Unlock()

	e.ticks.Add(1)
	e.metrics.Tick(t)
	e.notify(func(o Observer) { o.Ticked(t, now, reverse) })

	e.publishAt(t, gen)
}

// publishAt hands the records that became active at t to the sinks, unless
// a stop or seek has reset publishing since generation gen was read. A
// concurrent Stop waits for it, so nothing is published after Stopped.
func (e *Engine) publishAt(t int64, gen uint64) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if e.pubGen.Load() != gen {
		return
	}
	for _, rec := range e.lookup(t) {
		e.publish(rec)
	}
}

// lookup returns the records that became active at t and were not already
// published. e.pubMu must be held.
func (e *Engine) lookup(t int64) []*tape.Record {
	e.srcMu.RLock()
	defer e.srcMu.RUnlock()

	var out []*tape.Record
	for i, src := range e.sources {
		rec, ok := src.RecordAt(t)
		if !ok {
			continue
		}
		last, seen := e.lastPub[i]
		if !seen || last != rec.Timestamp {
			e.lastPub[i] = rec.Timestamp
			out = append(out, rec)
		}
	}
	return out
}

func (e *Engine) resetPublished() {
	e.pubMu.Lock()
	clear(e.lastPub)
	e.pubGen.Add(1)
	e.pubMu.Unlock()
}

func (e *Engine) publish(rec *tape.Record) {
	e.obsMu.RLock()
	sinks := e.sinks
	e.obsMu.RUnlock()
	for _, s := range sinks {
		if err := s.Publish(rec); err != nil {
			e.log.Error("publish failed", "sink", s.name, "ts", rec.Timestamp, "err", err)
			e.metrics.PublishFailed(s.name)
			continue
		}
		e.metrics.Published(s.name)
	}
}

// AddSink registers a sink after construction.
func (e *Engine) AddSink(name string, s Sink) {
	e.obsMu.Lock()
	e.sinks = append(e.sinks, namedSink{name: name, Sink: s})
	e.obsMu.Unlock()
}

func (e *Engine) stateChanged(s State, speed float64) {
	e.metrics.SetState(string(s))
	e.notify(func(o Observer) { o.StateChanged(s, speed) })
}

func (e *Engine) stopped(speed float64) {
	e.stateChanged(StateStopped, speed)
	e.notify(func(o Observer) { o.Stopped() })
}

func (e *Engine) notify(fn func(Observer)) {
	e.obsMu.RLock()
	observers := make([]observerEntry, len(e.observers))
	copy(observers, e.observers)
	e.obsMu.RUnlock()
	for _, o := range observers {
		fn(o.Observer)
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
