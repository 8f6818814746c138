package outbox

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
)

// Message is one row of order_outbox.
type Message struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventType string         `json:"event_type" gorm:"type:text;not null"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Status    string         `json:"status" gorm:"type:text;not null"`
	Attempts  int            `json:"attempts" gorm:"not null;default:0"`
	NextRetry time.Time      `json:"next_retry" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Message) TableName() string { return "order_outbox" }
