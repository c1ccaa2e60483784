package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"tenant-service/pkg/config"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tenant"

// Counter metrics
var (
	// Login attempts by account class and outcome ("success", "failure")
	LoginCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_total",
			Help:      "Total number of login attempts",
		},
		[]string{"class", "outcome"},
	)

	// Error counters
	AuthErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_errors_total",
			Help:      "Total number of authentication errors",
		},
		[]string{"type"}, // "login_failure", "invalid_token", "token_issue", "db_error"
	)

	// One increment per slug candidate tried
	ProvisionAttemptCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_attempts_total",
			Help:      "Total number of tenant provisioning attempts",
		},
	)

	SlugCollisionCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slug_collisions_total",
			Help:      "Total number of slug candidates rejected as taken",
		},
	)

	// Provisioning outcomes ("created", "validation", "conflict", "exhausted", "failed")
	ProvisionOutcomeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_outcomes_total",
			Help:      "Total number of tenant provisioning requests by outcome",
		},
		[]string{"outcome"},
	)

	GateDecisionCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Total number of tenant gate decisions",
		},
		[]string{"class", "decision"},
	)

	AuditWriteCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_writes_total",
			Help:      "Total number of audit entries written",
		},
		[]string{"entity_type", "action"},
	)

	AuditFailureCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Total number of audit entries that could not be persisted",
		},
		[]string{"stage"}, // "encode", "store", "publish"
	)

	TenantOperationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of tenant administration operations",
		},
		[]string{"operation"},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Duration of database operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// InfoGauge exposes the running version
var InfoGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "info",
		Help:      "Information about the tenant service",
	},
	[]string{"service", "version"},
)

// InitMetrics publishes the service info gauge
func InitMetrics(cfg *config.Config) {
	InfoGauge.With(prometheus.Labels{
		"service": cfg.ServiceName,
		"version": cfg.Metrics.Version,
	}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures a database operation; call the returned func when it ends
func TrackDBOperation(operation string) func() {
	startTime := time.Now()
	return func() {
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(time.Since(startTime).Seconds())
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			labels := prometheus.Labels{
				"endpoint": c.Path(),
				"method":   c.Request().Method,
				"status":   strconv.Itoa(status),
			}
			RequestDuration.With(labels).Observe(time.Since(start).Seconds())
			HTTPRequestCounter.With(labels).Inc()

			return err
		}
	}
}

// RecordLogin records a login attempt for an account class
func RecordLogin(class string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	LoginCounter.With(prometheus.Labels{"class": class, "outcome": outcome}).Inc()
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordProvisionAttempt records one slug candidate; collided marks a taken slug
func RecordProvisionAttempt(collided bool) {
	ProvisionAttemptCounter.Inc()
	if collided {
		SlugCollisionCounter.Inc()
	}
}

// RecordProvisionOutcome records how a provisioning request ended
func RecordProvisionOutcome(outcome string) {
	ProvisionOutcomeCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// RecordGateDecision records an authorization gate decision
func RecordGateDecision(class, decision string) {
	GateDecisionCounter.With(prometheus.Labels{"class": class, "decision": decision}).Inc()
}

// RecordAuditWrite records a persisted audit entry
func RecordAuditWrite(entityType, action string) {
	AuditWriteCounter.With(prometheus.Labels{"entity_type": entityType, "action": action}).Inc()
}

// RecordAuditFailure records an audit entry lost at the given stage
func RecordAuditFailure(stage string) {
	AuditFailureCounter.With(prometheus.Labels{"stage": stage}).Inc()
}

// RecordTenantOperation records a tenant administration operation
func RecordTenantOperation(operation string) {
	TenantOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}
