package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/paysync/internal/clock"
	"github.com/smallbiznis/paysync/internal/config"
	obsmetrics "github.com/smallbiznis/paysync/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	claimLease     = 30 * time.Second
	maxRetryDelay  = time.Minute
	maxRetryExpo   = 6
	defaultBatch   = 50
	defaultTimeout = 5 * time.Second
	defaultPoll    = 2 * time.Second
)

type DispatcherParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Cfg       config.Config
	Publisher Publisher                `optional:"true"`
	Workers   *obsmetrics.WorkerMetrics `optional:"true"`
}

// Dispatcher drains order_outbox to the broker. Rows are claimed with a lease
// so a crashed dispatcher's rows become claimable again once it expires.
type Dispatcher struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	publisher      Publisher
	workers        *obsmetrics.WorkerMetrics
	interval       time.Duration
	batchSize      int
	publishTimeout time.Duration
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	batch := p.Cfg.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatch
	}
	timeout := p.Cfg.Outbox.PublishTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	interval := p.Cfg.Outbox.PollInterval
	if interval <= 0 {
		interval = defaultPoll
	}
	return &Dispatcher{
		db:             p.DB,
		log:            p.Log.Named("outbox.dispatcher"),
		clock:          p.Clock,
		publisher:      p.Publisher,
		workers:        p.Workers,
		interval:       interval,
		batchSize:      batch,
		publishTimeout: timeout,
	}
}

func (d *Dispatcher) Enabled() bool {
	return d != nil && d.publisher != nil
}

func (d *Dispatcher) RunForever(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil {
			d.log.Warn("outbox dispatch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce claims one batch and publishes it, returning how many rows were sent.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	start := time.Now()
	d.workers.IncJobRun(obsmetrics.JobOutboxDispatch)
	defer func() {
		d.workers.ObserveJobDuration(obsmetrics.JobOutboxDispatch, time.Since(start))
	}()

	rows, err := d.claim(ctx)
	if err != nil {
		d.workers.IncJobError(obsmetrics.JobOutboxDispatch, err)
		return 0, fmt.Errorf("claim outbox rows: %w", err)
	}

	sent := 0
	for _, row := range rows {
		if err := d.publishOne(ctx, row); err != nil {
			d.workers.IncJobError(obsmetrics.JobOutboxDispatch, err)
			d.log.Warn("publish outbox message failed",
				zap.String("outbox_id", row.ID.String()),
				zap.Int("attempts", row.Attempts+1),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	d.workers.AddItems(obsmetrics.JobOutboxDispatch, "sent", sent)
	d.workers.AddItems(obsmetrics.JobOutboxDispatch, "failed", len(rows)-sent)

	if backlog, err := d.Backlog(ctx); err == nil {
		d.workers.SetOutboxBacklog(int(backlog))
	}
	return sent, nil
}

func (d *Dispatcher) Backlog(ctx context.Context) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&Message{}).Where("status <> ?", StatusSent).Count(&count).Error
	return count, err
}

func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	now := d.clock.Now()
	var rows []Message

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&Message{}).
			Where("status IN ? AND next_retry <= ?", []string{StatusPending, StatusProcessing}, now).
			Order("id").
			Limit(d.batchSize)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]any, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		return tx.Model(&Message{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     StatusProcessing,
				"next_retry": now.Add(claimLease),
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *Dispatcher) publishOne(ctx context.Context, row Message) error {
	pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(pubCtx, row.EventType, row.Payload); err != nil {
		return d.markFailure(ctx, row, err)
	}

	return d.db.WithContext(ctx).Exec(
		`UPDATE order_outbox SET status = ?, updated_at = ? WHERE id = ?`,
		StatusSent, d.clock.Now(), row.ID,
	).Error
}

func (d *Dispatcher) markFailure(ctx context.Context, row Message, publishErr error) error {
	now := d.clock.Now()
	err := d.db.WithContext(ctx).Exec(
		`UPDATE order_outbox
		 SET status = ?, attempts = attempts + 1, next_retry = ?, updated_at = ?
		 WHERE id = ?`,
		StatusPending, now.Add(retryDelay(row.Attempts+1)), now, row.ID,
	).Error
	if err != nil {
		return fmt.Errorf("update retry: %w", err)
	}
	return publishErr
}

func retryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxRetryExpo {
		attempts = maxRetryExpo
	}
	delay := time.Duration(1<<attempts) * time.Second
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
