package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var states = []string{"Stopped", "Playing", "Paused"}

// Metrics holds the replay engine's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	ticks     prometheus.Counter
	coalesced prometheus.Counter
	position  prometheus.Gauge
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	state     *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tapedeck",
			Name:      "ticks_total",
			Help:      "Engine ticks processed.",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tapedeck",
			Name:      "signals_coalesced_total",
			Help:      "Trigger signals dropped because a tick was already pending.",
		}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tapedeck",
			Name:      "position_microseconds",
			Help:      "Recording time of the last tick.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapedeck",
			Name:      "records_published_total",
			Help:      "Records handed to a sink.",
		}, []string{"sink"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapedeck",
			Name:      "records_failed_total",
			Help:      "Records a sink failed to publish.",
		}, []string{"sink"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tapedeck",
			Name:      "state",
			Help:      "1 for the current playback state, 0 otherwise.",
		}, []string{"state"}),
	}
	for _, c := range []prometheus.Collector{m.ticks, m.coalesced, m.position, m.published, m.failed, m.state} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Tick(position int64) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.position.Set(float64(position))
}

func (m *Metrics) Coalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

func (m *Metrics) Published(sink string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(sink).Inc()
}

func (m *Metrics) PublishFailed(sink string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(sink).Inc()
}

func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}
