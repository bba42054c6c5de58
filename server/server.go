package server

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/koding/websocketproxy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/websocket"

	"github.com/progrium/tapedeck/player"
)

const RPCPath = "/rpc"

// Server exposes an engine to remote controllers: CBOR RPC over a
// websocket at /rpc and Prometheus metrics at /metrics.
type Server struct {
	engine   *player.Engine
	log      *slog.Logger
	tracer   trace.Tracer
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func New(e *player.Engine, opts ...Option) *Server {
	s := &Server{
		engine:   e,
		log:      slog.Default(),
		tracer:   otel.Tracer("github.com/progrium/tapedeck/server"),
		gatherer: prometheus.DefaultGatherer,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "server")

	s.mux.Handle(RPCPath, websocket.Server{
		Handler: s.handleRPC,
		// controllers are CLIs and relays, not browsers
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
	})
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Relay forwards websocket connections to the same path on upstream, so a
// publicly reachable relay can front a deck on a private network.
func Relay(upstream *url.URL) http.Handler {
	websocketproxy.DefaultUpgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}
	return websocketproxy.NewProxy(upstream)
}
