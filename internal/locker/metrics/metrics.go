package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the locker module.
// Tracks committed state transitions and the duration of each mutating operation.
type Metrics struct {
	ProfilesInitialized prometheus.Counter
	DocumentsUploaded   prometheus.Counter
	SessionsCreated     prometheus.Counter
	SessionsRevoked     prometheus.Counter
	OperationFailures   *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	StatusCacheLookups  *prometheus.CounterVec
	AccessPublishErrors prometheus.Counter
}

// New registers the locker metrics with reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ProfilesInitialized: f.NewCounter(prometheus.CounterOpts{
			Name: "privylocker_profiles_initialized_total",
			Help: "Total number of user profiles initialized",
		}),
		DocumentsUploaded: f.NewCounter(prometheus.CounterOpts{
			Name: "privylocker_documents_uploaded_total",
			Help: "Total number of documents uploaded",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "privylocker_share_sessions_created_total",
			Help: "Total number of share sessions created",
		}),
		SessionsRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "privylocker_share_sessions_revoked_total",
			Help: "Total number of share sessions revoked (first revocation only)",
		}),
		OperationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "privylocker_operation_failures_total",
			Help: "Failed locker operations by operation and error code",
		}, []string{"operation", "code"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "privylocker_operation_duration_seconds",
			Help:    "Duration of locker operations including the confidential service round trip",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		StatusCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "privylocker_status_cache_lookups_total",
			Help: "Share status cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		AccessPublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "privylocker_access_publish_errors_total",
			Help: "Access changes that could not be published after commit",
		}),
	}
}

// ObserveOperation records the duration of op.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// IncrementFailure records a failed op with its error code.
func (m *Metrics) IncrementFailure(op, code string) {
	m.OperationFailures.WithLabelValues(op, code).Inc()
}

// IncrementCacheLookup records a status cache lookup result.
func (m *Metrics) IncrementCacheLookup(result string) {
	m.StatusCacheLookups.WithLabelValues(result).Inc()
}
