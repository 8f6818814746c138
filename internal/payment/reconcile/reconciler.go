package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/paysync/internal/clock"
	"github.com/smallbiznis/paysync/internal/config"
	obsmetrics "github.com/smallbiznis/paysync/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/paysync/internal/order/domain"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockKey = "paysync:lock:reconcile"

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Events     paymentdomain.EventStore
	Orders     orderdomain.Service
	Locker     *ratelimit.Locker         `optional:"true"`
	Workers    *obsmetrics.WorkerMetrics `optional:"true"`
	ObsMetrics *obsmetrics.Metrics       `optional:"true"`
}

// Result summarises one reconcile pass.
type Result struct {
	Scanned int  `json:"scanned"`
	Applied int  `json:"applied"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped"`
}

// Reconciler re-applies webhook events that were recorded but never applied
// to their order, e.g. because the request timed out after the insert.
type Reconciler struct {
	log        *zap.Logger
	clock      clock.Clock
	events     paymentdomain.EventStore
	orders     orderdomain.Service
	locker     *ratelimit.Locker
	workers    *obsmetrics.WorkerMetrics
	obsMetrics *obsmetrics.Metrics

	enabled   bool
	interval  time.Duration
	batchSize int
	lockTTL   time.Duration

	mu sync.Mutex
}

func New(p Params) *Reconciler {
	cfg := p.Cfg.Reconcile
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Reconciler{
		log:        p.Log.Named("payment.reconcile").With(zap.String("component", "reconciler")),
		clock:      p.Clock,
		events:     p.Events,
		orders:     p.Orders,
		locker:     p.Locker,
		workers:    p.Workers,
		obsMetrics: p.ObsMetrics,
		enabled:    cfg.Enabled,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		lockTTL:    cfg.LockTTL,
	}
}

func (r *Reconciler) Enabled() bool { return r != nil && r.enabled }

// Schedule registers the periodic pass on c. Overlapping runs are skipped.
func (r *Reconciler) Schedule(c *cron.Cron) (cron.EntryID, error) {
	return c.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.lockTTL)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Warn("reconcile run failed", zap.Error(err))
		}
	})
}

// RunOnce processes at most one batch of pending events. When redis is
// configured only one replica runs at a time; the others report Skipped.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.clock.Now()
	r.workers.IncJobRun(obsmetrics.JobReconcile)

	var result Result
	err := r.locker.WithLock(ctx, lockKey, r.lockTTL, func(ctx context.Context) error {
		var runErr error
		result, runErr = r.run(ctx)
		return runErr
	})
	r.workers.ObserveJobDuration(obsmetrics.JobReconcile, r.clock.Now().Sub(start))

	if errors.Is(err, ratelimit.ErrLockNotAcquired) {
		r.log.Debug("reconcile lock held elsewhere")
		return Result{Skipped: true}, nil
	}
	if err != nil {
		r.workers.IncJobError(obsmetrics.JobReconcile, err)
		return result, err
	}

	r.workers.AddItems(obsmetrics.JobReconcile, "applied", result.Applied)
	r.workers.AddItems(obsmetrics.JobReconcile, "failed", result.Failed)
	if result.Scanned > 0 {
		r.log.Info("reconcile run finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("applied", result.Applied),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (r *Reconciler) run(ctx context.Context) (Result, error) {
	pending, err := r.events.ListPending(ctx, r.batchSize)
	if err != nil {
		return Result{}, err
	}

	result := Result{Scanned: len(pending)}
	for _, event := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		log := r.log.With(
			zap.String("event_id", event.EventID),
			zap.String("order_ref", event.ProviderOrderRef),
			zap.Int("attempt", event.ApplyAttempts+1),
		)
		if _, err := r.orders.Apply(ctx, event.ProviderOrderRef, event.EventType, event.ProviderPaymentRef); err != nil {
			result.Failed++
			log.Warn("reconcile apply failed", zap.Error(err))
			r.obsMetrics.RecordReconciledEvent(ctx, "failed")
			reason := paymentdomain.MessageOf(err)
			if reason == "" {
				reason = "apply failed"
			}
			if err := r.events.MarkFailed(ctx, event.ID, reason); err != nil {
				return result, err
			}
			continue
		}

		if err := r.events.MarkProcessed(ctx, event.ID); err != nil {
			return result, err
		}
		result.Applied++
		r.obsMetrics.RecordReconciledEvent(ctx, "applied")
	}
	return result, nil
}
