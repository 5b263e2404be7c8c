// Package metrics exposes call and turn counters for Prometheus.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn paths
const (
	PathPartial       = "partial"
	PathReview        = "review"
	PathUnderstanding = "understanding"
)

// Metrics holds every collector on a dedicated registry. A nil *Metrics
// records nothing, so components can take it as optional.
type Metrics struct {
	registry *prometheus.Registry

	// Dialogue
	Turns          *prometheus.CounterVec
	Transfers      *prometheus.CounterVec
	CallsStarted   prometheus.Counter
	CallsCompleted prometheus.Counter
	ActiveCalls    prometheus.Gauge
	CallDuration   prometheus.Histogram

	// Understanding service
	UnderstandingLatency  prometheus.Histogram
	UnderstandingFailures prometheus.Counter

	// Audio
	CaptureDroppedBlocks prometheus.Counter
	PlaybackFailures     prometheus.Counter

	// Delivery
	TicketsPosted  prometheus.Counter
	TicketFailures prometheus.Counter
	EventsDropped  prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimvoice_turns_total",
			Help: "Transcripts handled by the orchestrator, by path",
		}, []string{"path"}),
		Transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimvoice_transfers_total",
			Help: "Calls handed to a human, by reason kind",
		}, []string{"reason_kind"}),
		CallsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimvoice_calls_started_total",
			Help: "Calls greeted",
		}),
		CallsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimvoice_calls_completed_total",
			Help: "Calls that reached a confirmed claim",
		}),
		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "claimvoice_active_calls",
			Help: "Calls currently in progress",
		}),
		CallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimvoice_call_duration_seconds",
			Help:    "Duration of calls from greeting to end",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~43 minutes
		}),

		UnderstandingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimvoice_understanding_latency_seconds",
			Help:    "Round trip time of understanding service calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
		UnderstandingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimvoice_understanding_failures_total",
			Help: "Understanding calls that failed or returned malformed results",
		}),

		CaptureDroppedBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimvoice_capture_dropped_blocks_total",
			Help: "Audio blocks discarded by the bounded capture queue",
		}),
		PlaybackFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimvoice_playback_failures_total",
			Help: "Utterances that failed to synthesize or play",
		}),

		TicketsPosted: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimvoice_tickets_posted_total",
			Help: "Claims delivered to the ticket webhook",
		}),
		TicketFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimvoice_ticket_failures_total",
			Help: "Claims the ticket webhook did not accept",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "claimvoice_events_dropped_total",
			Help: "Orchestrator events dropped because no consumer kept up",
		}),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ReasonKind folds transfer reasons such as "high_frustration_7.5" into a
// bounded label value
func ReasonKind(reason string) string {
	switch {
	case reason == "":
		return "none"
	case strings.HasPrefix(reason, "high_frustration"):
		return "frustration"
	case reason == "technical_error":
		return "technical_error"
	default:
		return "emergency"
	}
}

// RecordTurn counts one handled transcript
func (m *Metrics) RecordTurn(path string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(path).Inc()
}

// RecordTransfer counts a handoff to a human
func (m *Metrics) RecordTransfer(reason string) {
	if m == nil {
		return
	}
	m.Transfers.WithLabelValues(ReasonKind(reason)).Inc()
}

// RecordCallStarted counts a greeted call
func (m *Metrics) RecordCallStarted() {
	if m == nil {
		return
	}
	m.CallsStarted.Inc()
	m.ActiveCalls.Inc()
}

// RecordCallEnded records call duration and completion
func (m *Metrics) RecordCallEnded(durationSeconds float64, complete bool) {
	if m == nil {
		return
	}
	m.ActiveCalls.Dec()
	m.CallDuration.Observe(durationSeconds)
	if complete {
		m.CallsCompleted.Inc()
	}
}

// RecordUnderstanding records one understanding call
func (m *Metrics) RecordUnderstanding(durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.UnderstandingLatency.Observe(durationSeconds)
	if err != nil {
		m.UnderstandingFailures.Inc()
	}
}

// RecordCaptureDrop counts one dropped audio block
func (m *Metrics) RecordCaptureDrop() {
	if m == nil {
		return
	}
	m.CaptureDroppedBlocks.Inc()
}

// RecordPlaybackFailure counts a failed utterance
func (m *Metrics) RecordPlaybackFailure() {
	if m == nil {
		return
	}
	m.PlaybackFailures.Inc()
}

// RecordTicket counts a webhook delivery attempt
func (m *Metrics) RecordTicket(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.TicketFailures.Inc()
		return
	}
	m.TicketsPosted.Inc()
}

// RecordEventDropped counts an event no consumer received
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}
