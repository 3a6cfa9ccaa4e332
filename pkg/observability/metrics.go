package observability

import (
	"time"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the access-control Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	AuthzDecisionsTotal   *prometheus.CounterVec
	EvaluationDuration    *prometheus.HistogramVec
	RoleAssignmentsTotal  *prometheus.CounterVec
	PageMatrixWritesTotal *prometheus.CounterVec
	StoreErrorsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horeca_authz_decisions_total",
				Help: "Total number of authorization decisions by check and outcome",
			},
			[]string{"check", "outcome"},
		),
		EvaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "horeca_authz_evaluation_duration_seconds",
				Help:    "Duration of permission and page evaluations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"operation"},
		),
		RoleAssignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horeca_role_assignments_total",
				Help: "Total number of role assignment attempts by outcome",
			},
			[]string{"outcome"},
		),
		PageMatrixWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horeca_page_matrix_writes_total",
				Help: "Total number of page matrix batch writes by outcome",
			},
			[]string{"outcome"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horeca_store_errors_total",
				Help: "Total number of decisions that failed because the store was unavailable",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.AuthzDecisionsTotal,
		m.EvaluationDuration,
		m.RoleAssignmentsTotal,
		m.PageMatrixWritesTotal,
		m.StoreErrorsTotal,
	)

	return m
}

// Outcome maps an error to a metric label: allowed, or the error kind
func Outcome(err error) string {
	if err == nil {
		return "allowed"
	}
	return accesserr.KindOf(err).String()
}

// RecordDecision counts a guard decision
func (m *Metrics) RecordDecision(check string, err error) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(check, Outcome(err)).Inc()
	if accesserr.IsStoreUnavailable(err) {
		m.StoreErrorsTotal.WithLabelValues(check).Inc()
	}
}

// ObserveEvaluation records how long an evaluation took
func (m *Metrics) ObserveEvaluation(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.EvaluationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordAssignment counts a role assignment attempt
func (m *Metrics) RecordAssignment(err error) {
	if m == nil {
		return
	}
	m.RoleAssignmentsTotal.WithLabelValues(Outcome(err)).Inc()
}

// RecordMatrixWrite counts a page matrix batch write
func (m *Metrics) RecordMatrixWrite(err error) {
	if m == nil {
		return
	}
	m.PageMatrixWritesTotal.WithLabelValues(Outcome(err)).Inc()
}
