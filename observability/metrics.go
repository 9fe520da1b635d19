package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BotMetrics records conversation engine activity.
type BotMetrics struct {
	events *prometheus.CounterVec
	errors *prometheus.CounterVec
}

// SubmitterMetrics records custodial chain submissions.
type SubmitterMetrics struct {
	submissions *prometheus.CounterVec
	duration    prometheus.Histogram
}

// ClientMetrics records upstream Plutus API calls.
type ClientMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	botMetricsOnce sync.Once
	botRegistry    *BotMetrics

	submitterMetricsOnce sync.Once
	submitterRegistry    *SubmitterMetrics

	clientMetricsOnce sync.Once
	clientRegistry    *ClientMetrics
)

// Bot returns the lazily-initialised engine metrics registry.
func Bot() *BotMetrics {
	botMetricsOnce.Do(func() {
		botRegistry = &BotMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "plutusbot",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Total conversation events segmented by event type and outcome kind.",
			}, []string{"event", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "plutusbot",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Total user-visible errors segmented by error kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(botRegistry.events, botRegistry.errors)
	})
	return botRegistry
}

// RecordEvent counts a handled event and the outcome kind it produced.
func (m *BotMetrics) RecordEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, outcome).Inc()
}

// RecordError counts a user-visible error by kind.
func (m *BotMetrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

// Submitter returns the lazily-initialised submitter metrics registry.
func Submitter() *SubmitterMetrics {
	submitterMetricsOnce.Do(func() {
		submitterRegistry = &SubmitterMetrics{
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "plutusbot",
				Subsystem: "submitter",
				Name:      "submissions_total",
				Help:      "Total custodial transaction submissions segmented by result.",
			}, []string{"result"}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "plutusbot",
				Subsystem: "submitter",
				Name:      "submit_duration_seconds",
				Help:      "Latency distribution of the build+sign+broadcast section.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(submitterRegistry.submissions, submitterRegistry.duration)
	})
	return submitterRegistry
}

// RecordSubmission counts a submission attempt and its exclusive-section latency.
func (m *SubmitterMetrics) RecordSubmission(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// Client returns the lazily-initialised upstream client metrics registry.
func Client() *ClientMetrics {
	clientMetricsOnce.Do(func() {
		clientRegistry = &ClientMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "plutusbot",
				Subsystem: "plutus",
				Name:      "requests_total",
				Help:      "Total Plutus API requests segmented by call and outcome.",
			}, []string{"call", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "plutusbot",
				Subsystem: "plutus",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution of Plutus API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"call"}),
		}
		prometheus.MustRegister(clientRegistry.requests, clientRegistry.latency)
	})
	return clientRegistry
}

// RecordRequest counts an upstream call and its latency.
func (m *ClientMetrics) RecordRequest(call, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(call, outcome).Inc()
	m.latency.WithLabelValues(call).Observe(elapsed.Seconds())
}
