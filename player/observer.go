package player

import "github.com/progrium/tapedeck/tape"

// Observer receives engine notifications. Calls are synchronous on the
// goroutine that caused them (the tick loop for Ticked and end-of-data
// stops), so implementations must return quickly.
type Observer interface {
	StateChanged(s State, speed float64)
	Ticked(recTime, wallTime int64, reverse bool)
	BoundsChanged(min, max int64)
	Stopped()
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	OnStateChanged  func(s State, speed float64)
	OnTicked        func(recTime, wallTime int64, reverse bool)
	OnBoundsChanged func(min, max int64)
	OnStopped       func()
}

func (o ObserverFuncs) StateChanged(s State, speed float64) {
	if o.OnStateChanged != nil {
		o.OnStateChanged(s, speed)
	}
}

func (o ObserverFuncs) Ticked(recTime, wallTime int64, reverse bool) {
	if o.OnTicked != nil {
		o.OnTicked(recTime, wallTime, reverse)
	}
}

func (o ObserverFuncs) BoundsChanged(min, max int64) {
	if o.OnBoundsChanged != nil {
		o.OnBoundsChanged(min, max)
	}
}

func (o ObserverFuncs) Stopped() {
	if o.OnStopped != nil {
		o.OnStopped()
	}
}

// Sink consumes the records published on each tick. The record is only
// valid for the duration of the call. Sinks must not call back into the
// engine: Stop and Seek wait for an in-flight publish.
type Sink interface {
	Publish(rec *tape.Record) error
}

type SinkFunc func(rec *tape.Record) error

func (f SinkFunc) Publish(rec *tape.Record) error { return f(rec) }

type namedSink struct {
	name string
	Sink
}
