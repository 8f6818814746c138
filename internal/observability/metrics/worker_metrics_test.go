package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyWorkerReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: WorkerReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: WorkerReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: WorkerReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: WorkerReasonUniqueViolation},
		{name: "broker", err: errors.New("amqp: channel closed"), want: WorkerReasonBroker},
		{name: "unknown", err: errors.New("boom"), want: WorkerReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyWorkerReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddItems(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newWorkerMetrics(registry, Config{ServiceName: "paysync", Environment: "test"})

	m.AddItems(JobReconcile, "applied", 3)
	m.AddItems(JobReconcile, "applied", 0)

	got := testutil.ToFloat64(m.itemsHandled.WithLabelValues(JobReconcile, "applied"))
	if got != 3 {
		t.Fatalf("expected applied count 3, got %v", got)
	}
}

func TestHTTPMetricsObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := newHTTPMetrics(registry, Config{ServiceName: "paysync"})
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	m.Observe("/webhook", "post", 200, 0)
	m.Observe("/webhook", "POST", 200, 0)

	got := testutil.ToFloat64(m.requests.WithLabelValues("/webhook", "POST", "200"))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
}
