// Package metrics provides Prometheus metrics for record locking, cleaning
// and digitization.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Lock attempt outcomes.
const (
	LockAcquired  = "acquired"
	LockRefreshed = "refreshed"
	LockTakeover  = "takeover"
	LockDenied    = "denied"
	LockRaceLost  = "race_lost"
	LockError     = "error"
)

// Cleaning outcomes.
const (
	CleanSuccess = "success"
	CleanError   = "error"
	CleanSkipped = "skipped"
	CleanUnknown = "unknown_function"
)

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusDenied  = "denied"
)

// RecordMetrics contains Prometheus metrics for the record review backend.
// A nil *RecordMetrics is valid and records nothing.
type RecordMetrics struct {
	registry *prometheus.Registry

	lockAttemptsTotal     *prometheus.CounterVec
	cleaningOutcomesTotal *prometheus.CounterVec
	recordUpdatesTotal    *prometheus.CounterVec
	extractionDuration    *prometheus.HistogramVec
	pagesUploadedTotal    prometheus.Counter
}

// NewRecordMetrics creates and registers new record metrics
func NewRecordMetrics(registry *prometheus.Registry) (*RecordMetrics, error) {
	m := &RecordMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RecordMetrics) initMetrics() {
	m.lockAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogrre_lock_attempts_total",
			Help: "Total number of record lock attempts",
		},
		[]string{"outcome"},
	)

	m.cleaningOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogrre_cleaning_outcomes_total",
			Help: "Total number of attribute cleaning attempts by function",
		},
		[]string{"function", "outcome"},
	)

	m.recordUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogrre_record_updates_total",
			Help: "Total number of record updates by update type",
		},
		[]string{"type", "status"},
	)

	m.extractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ogrre_extraction_duration_seconds",
			Help: "Time taken by the document extraction backend",
			// 0.5s to ~256s
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"backend"},
	)

	m.pagesUploadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ogrre_pages_uploaded_total",
			Help: "Total number of split document pages uploaded",
		},
	)
}

// Describe implements the Collector interface
func (m *RecordMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.lockAttemptsTotal.Describe(ch)
	m.cleaningOutcomesTotal.Describe(ch)
	m.recordUpdatesTotal.Describe(ch)
	m.extractionDuration.Describe(ch)
	m.pagesUploadedTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *RecordMetrics) Collect(ch chan<- prometheus.Metric) {
	m.lockAttemptsTotal.Collect(ch)
	m.cleaningOutcomesTotal.Collect(ch)
	m.recordUpdatesTotal.Collect(ch)
	m.extractionDuration.Collect(ch)
	m.pagesUploadedTotal.Collect(ch)
}

// RecordLockAttempt records the outcome of a lock attempt
func (m *RecordMetrics) RecordLockAttempt(outcome string) {
	if m == nil {
		return
	}
	m.lockAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordCleaning records one cleaning function invocation
func (m *RecordMetrics) RecordCleaning(function, outcome string) {
	if m == nil {
		return
	}
	m.cleaningOutcomesTotal.WithLabelValues(function, outcome).Inc()
}

// RecordUpdate records a record update by type and status
func (m *RecordMetrics) RecordUpdate(updateType, status string) {
	if m == nil {
		return
	}
	m.recordUpdatesTotal.WithLabelValues(updateType, status).Inc()
}

// RecordExtractionDuration records how long an extraction call took
func (m *RecordMetrics) RecordExtractionDuration(backend string, seconds float64) {
	if m == nil {
		return
	}
	m.extractionDuration.WithLabelValues(backend).Observe(seconds)
}

// RecordPagesUploaded adds n uploaded pages
func (m *RecordMetrics) RecordPagesUploaded(n int) {
	if m == nil {
		return
	}
	m.pagesUploadedTotal.Add(float64(n))
}
