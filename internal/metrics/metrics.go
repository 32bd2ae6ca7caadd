// Package metrics provides Prometheus metrics for the docs client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API call metrics
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsclient_api_requests_total",
			Help: "Total number of API requests sent to the docs backend",
		},
		[]string{"method", "resource", "outcome"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsclient_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "resource"},
	)

	configCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsclient_config_cache_total",
			Help: "Config value lookups by cache result",
		},
		[]string{"result"},
	)

	// Translation metrics
	translationPollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docsclient_translation_polls_total",
			Help: "Total translation status polls",
		},
	)

	translationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsclient_translations_total",
			Help: "Translation jobs by terminal outcome",
		},
		[]string{"outcome"},
	)

	translationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsclient_translations_active",
			Help: "Translation poll loops currently running",
		},
	)

	// Registration metrics
	registrationSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsclient_registration_submissions_total",
			Help: "Self-registration submissions by outcome",
		},
		[]string{"outcome"},
	)

	registrationDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsclient_registration_decisions_total",
			Help: "Registration review decisions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// Download storage metrics
	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsclient_storage_operations_total",
			Help: "Download storage operations by backend, operation and outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)

	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsclient_storage_operation_duration_seconds",
			Help:    "Download storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storageBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsclient_storage_bytes_written_total",
			Help: "Bytes written to download storage",
		},
		[]string{"backend"},
	)

	// Event metrics
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsclient_events_published_total",
			Help: "Component state change events published",
		},
		[]string{"component"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest records one API call.
func RecordAPIRequest(method, resource, outcome string, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(method, resource, outcome).Inc()
	apiRequestDuration.WithLabelValues(method, resource).Observe(duration.Seconds())
}

// RecordConfigCache records a config cache hit or miss.
func RecordConfigCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	configCacheTotal.WithLabelValues(result).Inc()
}

// RecordTranslationPoll records one status poll.
func RecordTranslationPoll() {
	translationPollsTotal.Inc()
}

// RecordTranslation records a terminal translation outcome
// ("completed", "failed", "start_failed", "cancelled").
func RecordTranslation(outcome string) {
	translationsTotal.WithLabelValues(outcome).Inc()
}

// TranslationLoopStarted increments the active poll loop gauge.
func TranslationLoopStarted() {
	translationsActive.Inc()
}

// TranslationLoopStopped decrements the active poll loop gauge.
func TranslationLoopStopped() {
	translationsActive.Dec()
}

// RecordRegistrationSubmission records a self-registration outcome.
func RecordRegistrationSubmission(outcome string) {
	registrationSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordRegistrationDecision records an approve/reject outcome.
func RecordRegistrationDecision(action string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	registrationDecisionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordEvent records a published component event.
func RecordEvent(component string) {
	eventsPublishedTotal.WithLabelValues(component).Inc()
}

// RecordStorageOperation records one download storage operation.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	storageOperationsTotal.WithLabelValues(backend, operation, outcome).Inc()
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordStorageWrite records bytes written to download storage.
func RecordStorageWrite(backend string, bytes int64) {
	storageBytesWritten.WithLabelValues(backend).Add(float64(bytes))
}
