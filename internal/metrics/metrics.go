// Package metrics provides Prometheus metrics for reminder scheduling and delivery.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	DeliveryAttempts  *prometheus.CounterVec   // channel, status
	DeliveryDuration  *prometheus.HistogramVec // channel
	RebuildsTotal     *prometheus.CounterVec   // outcome: completed, coalesced, failed
	AlertsScheduled   *prometheus.CounterVec   // kind: immediate, dated
	AlertFailures     prometheus.Counter
	SweepDuration     prometheus.Histogram
	DispatchJobsTotal *prometheus.CounterVec // outcome: dispatched, duplicate, failed
}

func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	m.init()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register care metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) init() {
	m.DeliveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantcare_delivery_attempts_total",
			Help: "Reminder delivery attempts by channel and status",
		},
		[]string{"channel", "status"},
	)
	m.DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plantcare_delivery_duration_seconds",
			Help:    "Time taken by a single channel delivery attempt",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"channel"},
	)
	m.RebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantcare_reminder_rebuilds_total",
			Help: "Reminder rebuilds by outcome",
		},
		[]string{"outcome"},
	)
	m.AlertsScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantcare_alerts_scheduled_total",
			Help: "Alerts scheduled by trigger kind",
		},
		[]string{"kind"},
	)
	m.AlertFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plantcare_alert_schedule_failures_total",
		Help: "Alerts the scheduling backend rejected",
	})
	m.SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "plantcare_sweep_duration_seconds",
		Help:    "Duration of a full dispatch sweep",
		Buckets: prometheus.DefBuckets,
	})
	m.DispatchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantcare_dispatch_jobs_total",
			Help: "Sweep dispatch jobs by outcome",
		},
		[]string{"outcome"},
	)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DeliveryAttempts,
		m.DeliveryDuration,
		m.RebuildsTotal,
		m.AlertsScheduled,
		m.AlertFailures,
		m.SweepDuration,
		m.DispatchJobsTotal,
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

func (m *Metrics) RecordDelivery(channel string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.DeliveryAttempts.WithLabelValues(channel, status).Inc()
	m.DeliveryDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) RecordRebuild(outcome string) {
	if m == nil {
		return
	}
	m.RebuildsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordAlert(kind string) {
	if m == nil {
		return
	}
	m.AlertsScheduled.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordAlertFailure() {
	if m == nil {
		return
	}
	m.AlertFailures.Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordDispatch(outcome string) {
	if m == nil {
		return
	}
	m.DispatchJobsTotal.WithLabelValues(outcome).Inc()
}
