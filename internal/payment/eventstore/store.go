package eventstore

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysync/internal/clock"
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/pkg/db"
	"github.com/smallbiznis/paysync/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize  = pagination.DefaultPageSize
	// Admin listings ask for one row past the page to compute has_more.
	maxPageSize      = pagination.MaxPageSize + 1
	maxLastErrorSize = 512
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Cfg   config.Config
}

type Store struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	grace       time.Duration
	maxAttempts int
}

func New(p Params) *Store {
	return &Store{
		db:          p.DB,
		log:         p.Log.Named("payment.eventstore"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		grace:       p.Cfg.Reconcile.Grace,
		maxAttempts: p.Cfg.Reconcile.MaxAttempts,
	}
}

func (s *Store) HasProcessed(ctx context.Context, source domain.Source, eventID string) (bool, error) {
	exists, err := s.repo.ExistsEvent(ctx, s.db, source, eventID)
	if err != nil {
		return false, storageErr(err)
	}
	return exists, nil
}

// Record persists event and reports whether this call inserted it. Exactly one
// of any number of concurrent callers for the same (source, event_id) sees true.
func (s *Store) Record(ctx context.Context, event *domain.EventRecord) (bool, error) {
	if event == nil || !event.Source.Valid() || strings.TrimSpace(event.EventID) == "" {
		return false, domain.ErrInvalidEvent
	}
	if event.ID == 0 {
		event.ID = s.genID.Generate()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.clock.Now()
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, event)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, storageErr(err)
	}
	return inserted, nil
}

func (s *Store) Find(ctx context.Context, source domain.Source, eventID string) (*domain.EventRecord, error) {
	record, err := s.repo.FindEvent(ctx, s.db, source, eventID)
	if err != nil {
		return nil, storageErr(err)
	}
	if record == nil {
		return nil, domain.ErrEventNotFound
	}
	return record, nil
}

func (s *Store) MarkProcessed(ctx context.Context, id snowflake.ID) error {
	if err := s.repo.MarkProcessed(ctx, s.db, id, s.clock.Now()); err != nil {
		return storageErr(err)
	}
	return nil
}

// MarkFailed counts an unsuccessful apply attempt and keeps a short reason.
func (s *Store) MarkFailed(ctx context.Context, id snowflake.ID, reason string) error {
	reason = truncateReason(reason, maxLastErrorSize)
	if err := s.repo.RecordAttempt(ctx, s.db, id, reason); err != nil {
		return storageErr(err)
	}
	return nil
}

// ListPending returns webhook events that were recorded but never applied,
// older than the reconcile grace period and under the attempt ceiling.
func (s *Store) ListPending(ctx context.Context, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	before := s.clock.Now().Add(-s.grace)
	items, err := s.repo.ListPending(ctx, s.db, before, s.maxAttempts, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	return items, nil
}

func (s *Store) List(ctx context.Context, filter domain.ListEventsFilter) ([]domain.EventRecord, error) {
	if filter.Source != "" && !filter.Source.Valid() {
		return nil, domain.ErrInvalidEvent
	}
	filter.PageSize = clampPageSize(filter.PageSize)
	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, storageErr(err)
	}
	return items, nil
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n > maxPageSize:
		return maxPageSize
	}
	return n
}

// truncateReason cuts s to at most limit bytes without splitting a rune.
func truncateReason(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func storageErr(err error) error {
	return domain.Wrap(domain.ErrStorageUnavailable, err)
}
