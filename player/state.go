package player

// State is the playback state of an Engine.
type State string

const (
	StateStopped State = "Stopped"
	StatePlaying State = "Playing"
	StatePaused  State = "Paused"
)

func (s State) String() string { return string(s) }

// Symbol is a short label for terminal displays.
func (s State) Symbol() string {
	switch s {
	case StatePlaying:
		return "⏵ PLAY"
	case StatePaused:
		return "▊ PAUSE"
	default:
		return "■ STOP"
	}
}

type Event string

const (
	EventPlay  Event = "play"
	EventPause Event = "pause"
	EventStop  Event = "stop"
)

// transitions lists the legal moves. Anything missing is ignored.
var transitions = map[State]map[Event]State{
	StateStopped: {
		EventPlay: StatePlaying,
	},
	StatePlaying: {
		EventPause: StatePaused,
		EventStop:  StateStopped,
	},
	StatePaused: {
		EventPlay: StatePlaying,
		EventStop: StateStopped,
	},
}

// Next returns the state reached from s on ev. ok is false when the
// transition is not legal, in which case the caller leaves s unchanged.
func Next(s State, ev Event) (next State, ok bool) {
	next, ok = transitions[s][ev]
	if !ok {
		return s, false
	}
	return next, true
}
