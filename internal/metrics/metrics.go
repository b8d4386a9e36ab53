// Package metrics exposes Prometheus metrics for the poll pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric exported by the monitor.
const Namespace = "p2000"

// Poll outcome label values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Metrics holds all Prometheus metrics, labelled per monitored instance.
type Metrics struct {
	PollsTotal        *prometheus.CounterVec
	PollErrors        *prometheus.CounterVec
	ConsecutiveErrors *prometheus.GaugeVec
	FetchDuration     *prometheus.HistogramVec
	NewMessages       *prometheus.CounterVec
	BlocksSkipped     *prometheus.CounterVec
	LastSuccess       *prometheus.GaugeVec
}

// New creates and registers all monitor metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.PollsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "polls_total",
			Help:      "Total poll attempts by outcome (ok, error, skipped)",
		},
		[]string{"instance", "status"},
	)

	m.PollErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "poll_errors_total",
			Help:      "Failed polls by error kind",
		},
		[]string{"instance", "kind"},
	)

	m.ConsecutiveErrors = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "consecutive_errors",
			Help:      "Current run of failed polls without a success",
		},
		[]string{"instance"},
	)

	m.FetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent downloading a region page",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"instance"},
	)

	m.NewMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "new_messages_total",
			Help:      "Newly published messages by service type",
		},
		[]string{"instance", "service_type"},
	)

	m.BlocksSkipped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blocks_skipped_total",
			Help:      "Call blocks dropped during parsing for missing fields",
		},
		[]string{"instance"},
	)

	m.LastSuccess = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll",
		},
		[]string{"instance"},
	)

	return m
}

// RecordPoll records a finished poll attempt.
func (m *Metrics) RecordPoll(instance, status string) {
	m.PollsTotal.WithLabelValues(instance, status).Inc()
}

// RecordError records a failed poll with its error kind.
func (m *Metrics) RecordError(instance, kind string) {
	m.PollErrors.WithLabelValues(instance, kind).Inc()
}

// SetConsecutiveErrors sets the current failure run length.
func (m *Metrics) SetConsecutiveErrors(instance string, n int) {
	m.ConsecutiveErrors.WithLabelValues(instance).Set(float64(n))
}

// ObserveFetch records how long a page download took.
func (m *Metrics) ObserveFetch(instance string, d time.Duration) {
	m.FetchDuration.WithLabelValues(instance).Observe(d.Seconds())
}

// RecordNewMessage records a newly published message.
func (m *Metrics) RecordNewMessage(instance, serviceType string) {
	m.NewMessages.WithLabelValues(instance, serviceType).Inc()
}

// AddBlocksSkipped records call blocks dropped by the parser.
func (m *Metrics) AddBlocksSkipped(instance string, n int) {
	if n > 0 {
		m.BlocksSkipped.WithLabelValues(instance).Add(float64(n))
	}
}

// SetLastSuccess records when the instance last completed a poll.
func (m *Metrics) SetLastSuccess(instance string, t time.Time) {
	m.LastSuccess.WithLabelValues(instance).Set(float64(t.Unix()))
}
