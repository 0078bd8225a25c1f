package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	JanitorErrorReasonDeadlineExceeded = "deadline_exceeded"
	JanitorErrorReasonDBLockTimeout    = "db_lock_timeout"
	JanitorErrorReasonUnknown          = "unknown"
)

// JanitorMetrics captures quota garbage collection health.
type JanitorMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rowsDeleted *prometheus.CounterVec
	errors      *prometheus.CounterVec
}

var (
	janitorMetricsOnce sync.Once
	janitorMetrics     *JanitorMetrics
)

// JanitorWithConfig returns the singleton janitor metrics registry using config labels.
func JanitorWithConfig(cfg Config) *JanitorMetrics {
	janitorMetricsOnce.Do(func() {
		janitorMetrics = NewJanitorMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return janitorMetrics
}

// NewJanitorMetrics registers janitor instruments on registerer.
func NewJanitorMetrics(registerer prometheus.Registerer, cfg Config) *JanitorMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	constLabels := constLabels(cfg)

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "mlg_janitor_runs_total",
		Help:        "Janitor sweeps by job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "mlg_janitor_run_duration_seconds",
		Help:        "Janitor sweep latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"job"})
	rowsDeleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "mlg_janitor_rows_deleted_total",
		Help:        "Rows removed by janitor sweeps.",
		ConstLabels: constLabels,
	}, []string{"job"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "mlg_janitor_errors_total",
		Help:        "Janitor sweep failures by reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})

	registerer.MustRegister(runs, duration, rowsDeleted, errs)

	return &JanitorMetrics{
		runs:        runs,
		duration:    duration,
		rowsDeleted: rowsDeleted,
		errors:      errs,
	}
}

// ObserveRun records one completed sweep.
func (m *JanitorMetrics) ObserveRun(job string, elapsed time.Duration, deleted int64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if deleted > 0 {
		m.rowsDeleted.WithLabelValues(job).Add(float64(deleted))
	}
}

// IncError increments the sweep error counter with classification.
func (m *JanitorMetrics) IncError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(job, ClassifyJanitorError(err)).Inc()
}

// ClassifyJanitorError maps an error to a low-cardinality reason.
func ClassifyJanitorError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return JanitorErrorReasonDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return JanitorErrorReasonDBLockTimeout
	}
	return JanitorErrorReasonUnknown
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "mlgledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}
