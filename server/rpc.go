package server

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/websocket"
	"tractor.dev/toolkit-go/duplex/codec"
	"tractor.dev/toolkit-go/duplex/mux"
	"tractor.dev/toolkit-go/duplex/rpc"

	"github.com/progrium/tapedeck/player"
)

// Event kinds streamed by deck.watch.
const (
	EventState  = "state"
	EventTick   = "tick"
	EventBounds = "bounds"
	EventStop   = "stopped"
)

// Event is one engine notification as sent to watchers.
type Event struct {
	Kind     string
	State    player.State
	Speed    float64
	Position int64
	Wall     int64
	Reverse  bool
	Min      int64
	Max      int64
}

// StatusEvent describes a full status snapshot as a state event.
func StatusEvent(st player.Status) Event {
	return Event{
		Kind:     EventState,
		State:    st.State,
		Speed:    st.Speed,
		Position: st.Position,
		Reverse:  st.Reverse,
		Min:      st.Min,
		Max:      st.Max,
	}
}

const (
	// watchBuffer events may queue per watcher before new ones are dropped.
	watchBuffer = 64
	// watchTickInterval limits tick events per watcher; the engine ticks
	// every millisecond.
	watchTickInterval = 100 * time.Millisecond
)

func (s *Server) handleRPC(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := mux.New(ws)
	defer sess.Close()

	s.log.Info("controller connected", "remote", ws.Request().RemoteAddr)
	srv := &rpc.Server{
		Handler: s.respondMux(ctx),
		Codec:   codec.CBORCodec{},
	}
	srv.Respond(sess, ctx)
	s.log.Info("controller disconnected", "remote", ws.Request().RemoteAddr)
}

func (s *Server) respondMux(ctx context.Context) *rpc.RespondMux {
	m := rpc.NewRespondMux()
	m.Handle("deck.status", rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		r.Return(s.engine.Status())
	}))
	m.Handle("deck.cmd", rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		var args []string
		if err := c.Receive(&args); err != nil {
			r.Return(err)
			return
		}
		status, err := s.command(ctx, args)
		if err != nil {
			r.Return(err)
			return
		}
		r.Return(status)
	}))
	m.Handle("deck.watch", rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		s.watch(ctx, r)
	}))
	return m
}

func (s *Server) command(ctx context.Context, args []string) (player.Status, error) {
	line := strings.Join(args, " ")
	_, span := s.tracer.Start(ctx, "deck.cmd")
	span.SetAttributes(attribute.String("deck.command", line))
	defer span.End()

	if err := player.Exec(s.engine, line); err != nil {
		s.log.Warn("command failed", "command", line, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return player.Status{}, err
	}
	status := s.engine.Status()
	s.log.Info("command", "command", line, "state", status.State)
	span.SetAttributes(attribute.String("deck.state", string(status.State)))
	return status, nil
}

// watch streams engine events to one controller until it goes away. A slow
// watcher loses events instead of holding up the engine.
func (s *Server) watch(ctx context.Context, r rpc.Responder) {
	id := uuid.NewString()
	log := s.log.With("watcher", id)

	events := make(chan Event, watchBuffer)
	var dropped atomic.Int64
	push := func(ev Event) {
		select {
		case events <- ev:
		default:
			dropped.Add(1)
		}
	}
	var lastTick atomic.Int64
	unsubscribe := s.engine.Subscribe(player.ObserverFuncs{
		OnStateChanged: func(st player.State, speed float64) {
			push(Event{Kind: EventState, State: st, Speed: speed})
		},
		OnTicked: func(recTime, wallTime int64, reverse bool) {
			now := time.Now().UnixNano()
			if now-lastTick.Load() < int64(watchTickInterval) {
				return
			}
			lastTick.Store(now)
			push(Event{Kind: EventTick, Position: recTime, Wall: wallTime, Reverse: reverse})
		},
		OnBoundsChanged: func(min, max int64) {
			push(Event{Kind: EventBounds, Min: min, Max: max})
		},
		OnStopped: func() {
			push(Event{Kind: EventStop})
		},
	})
	defer unsubscribe()

	ch, err := r.Continue(s.engine.Status())
	if err != nil {
		log.Warn("watch", "err", err)
		return
	}
	defer ch.Close()
	log.Info("watching")

	enc := codec.CBORCodec{}.Encoder(ch)
	for {
		select {
		case ev := <-events:
			if err := enc.Encode(ev); err != nil {
				log.Info("watcher gone", "err", err, "dropped", dropped.Load())
				return
			}
		case <-ctx.Done():
			log.Info("watcher gone", "dropped", dropped.Load())
			return
		}
	}
}
