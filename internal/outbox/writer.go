package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysync/internal/clock"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type WriterParams struct {
	fx.In

	GenID *snowflake.Node
	Clock clock.Clock
}

// Writer inserts outbox rows on the caller's transaction handle so the row
// commits or rolls back with the state change it describes.
type Writer struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewWriter(p WriterParams) *Writer {
	return &Writer{genID: p.GenID, clock: p.Clock}
}

func (w *Writer) Enqueue(ctx context.Context, tx *gorm.DB, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}

	now := w.clock.Now()
	return tx.WithContext(ctx).Exec(
		`INSERT INTO order_outbox (id, event_type, payload, status, attempts, next_retry, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		w.genID.Generate(),
		eventType,
		string(body),
		StatusPending,
		now,
		now,
		now,
	).Error
}
