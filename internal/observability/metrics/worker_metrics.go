package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WorkerReasonDeadlineExceeded     = "deadline_exceeded"
	WorkerReasonDBLockTimeout        = "db_lock_timeout"
	WorkerReasonSerializationFailure = "serialization_failure"
	WorkerReasonUniqueViolation      = "unique_violation"
	WorkerReasonBroker               = "broker"
	WorkerReasonUnknown              = "unknown"
)

const (
	JobReconcile      = "reconcile_payment_events"
	JobOutboxDispatch = "outbox_dispatch"
)

// WorkerMetrics captures background job health for the reconciler and the outbox dispatcher.
type WorkerMetrics struct {
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobErrors     *prometheus.CounterVec
	itemsHandled  *prometheus.CounterVec
	outboxBacklog prometheus.Gauge
}

var (
	workerMetricsOnce sync.Once
	workerMetrics     *WorkerMetrics
)

// Workers returns the process-wide worker metrics.
func Workers() *WorkerMetrics {
	return WorkersWithConfig(Config{})
}

// WorkersWithConfig returns the process-wide worker metrics using config labels.
func WorkersWithConfig(cfg Config) *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerMetrics = newWorkerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return workerMetrics
}

func newWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := prometheus.Labels{
		"service": labelOrDefault(cfg.ServiceName, "paysync"),
		"env":     labelOrDefault(cfg.Environment, "unknown"),
	}

	m := &WorkerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "paysync_worker_job_runs_total",
			Help:        "Background job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "paysync_worker_job_duration_seconds",
			Help:        "Background job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "paysync_worker_job_errors_total",
			Help:        "Background job errors by reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		itemsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "paysync_worker_items_total",
			Help:        "Items handled by background jobs by result.",
			ConstLabels: constLabels,
		}, []string{"job", "result"}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "paysync_outbox_backlog",
			Help:        "Order outbox rows claimed in the last dispatch batch.",
			ConstLabels: constLabels,
		}),
	}

	for _, collector := range []prometheus.Collector{m.jobRuns, m.jobDuration, m.jobErrors, m.itemsHandled, m.outboxBacklog} {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
	return m
}

func (m *WorkerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *WorkerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *WorkerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyWorkerReason(err)).Inc()
}

func (m *WorkerMetrics) AddItems(job, result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.itemsHandled.WithLabelValues(job, strings.TrimSpace(result)).Add(float64(count))
}

func (m *WorkerMetrics) SetOutboxBacklog(value int) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(float64(value))
}

// ClassifyWorkerReason maps job errors to low-cardinality reasons.
func ClassifyWorkerReason(err error) string {
	switch {
	case err == nil:
		return WorkerReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return WorkerReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return WorkerReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return WorkerReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return WorkerReasonUniqueViolation
	case strings.Contains(strings.ToLower(err.Error()), "amqp"):
		return WorkerReasonBroker
	default:
		return WorkerReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
