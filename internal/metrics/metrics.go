// Package metrics exposes the daemon's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics accepts all calls and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Cycles         prometheus.Counter
	CycleErrors    prometheus.Counter
	CycleDuration  prometheus.Histogram
	Candidates     prometheus.Gauge
	Joins          *prometheus.CounterVec // result=success|failure
	Hangups        *prometheus.CounterVec // reason
	HangupFailures prometheus.Counter
	InSession      prometheus.Gauge
	Attendees      prometheus.Gauge
	PeakAttendees  prometheus.Gauge
	HistorySize    prometheus.Gauge
	SearchPaused   prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry:       reg,
		Cycles:         f.NewCounter(prometheus.CounterOpts{Name: "meetjoin_poll_cycles_total", Help: "Number of completed poll cycles"}),
		CycleErrors:    f.NewCounter(prometheus.CounterOpts{Name: "meetjoin_poll_cycle_errors_total", Help: "Number of poll cycles that hit a transient error"}),
		CycleDuration:  f.NewHistogram(prometheus.HistogramOpts{Name: "meetjoin_poll_cycle_duration_seconds", Help: "Poll cycle duration seconds", Buckets: prometheus.DefBuckets}),
		Candidates:     f.NewGauge(prometheus.GaugeOpts{Name: "meetjoin_candidates", Help: "Live meetings seen in the last catalog"}),
		Joins:          f.NewCounterVec(prometheus.CounterOpts{Name: "meetjoin_joins_total", Help: "Join attempts by result"}, []string{"result"}),
		Hangups:        f.NewCounterVec(prometheus.CounterOpts{Name: "meetjoin_hangups_total", Help: "Sessions ended by reason"}, []string{"reason"}),
		HangupFailures: f.NewCounter(prometheus.CounterOpts{Name: "meetjoin_hangup_failures_total", Help: "Hangups that left the session in place"}),
		InSession:      f.NewGauge(prometheus.GaugeOpts{Name: "meetjoin_in_session", Help: "1 while a meeting is joined"}),
		Attendees:      f.NewGauge(prometheus.GaugeOpts{Name: "meetjoin_attendees", Help: "Attendee count of the last successful sample"}),
		PeakAttendees:  f.NewGauge(prometheus.GaugeOpts{Name: "meetjoin_attendees_peak", Help: "Peak attendee count of the current session"}),
		HistorySize:    f.NewGauge(prometheus.GaugeOpts{Name: "meetjoin_join_history_size", Help: "Meetings joined since start"}),
		SearchPaused:   f.NewGauge(prometheus.GaugeOpts{Name: "meetjoin_search_paused", Help: "1 while meeting search is paused"}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.CycleDuration.Observe(d.Seconds())
	if failed {
		m.CycleErrors.Inc()
	}
}

// ObserveJoin counts a join attempt.
func (m *Metrics) ObserveJoin(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Joins.WithLabelValues("failure").Inc()
		return
	}
	m.Joins.WithLabelValues("success").Inc()
}

// ObserveHangup counts a hangup attempt for reason.
func (m *Metrics) ObserveHangup(reason string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.HangupFailures.Inc()
		return
	}
	m.Hangups.WithLabelValues(reason).Inc()
}

// Snapshot is the per-cycle gauge state.
type Snapshot struct {
	Candidates   int
	InSession    bool
	Attendees    int
	AttendeesOK  bool
	Peak         int
	PeakOK       bool
	HistorySize  int
	SearchPaused bool
}

// SetGauges publishes s.
func (m *Metrics) SetGauges(s Snapshot) {
	if m == nil {
		return
	}
	m.Candidates.Set(float64(s.Candidates))
	m.InSession.Set(boolGauge(s.InSession))
	if s.AttendeesOK {
		m.Attendees.Set(float64(s.Attendees))
	}
	if s.PeakOK {
		m.PeakAttendees.Set(float64(s.Peak))
	} else {
		m.PeakAttendees.Set(0)
	}
	m.HistorySize.Set(float64(s.HistorySize))
	m.SearchPaused.Set(boolGauge(s.SearchPaused))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
