// models/escrow_event.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// EscrowEvent is the persisted form of one state transition. Seq orders
// events across all matches and is the cursor for streaming readers.
type EscrowEvent struct {
	Seq          uint64         `gorm:"primaryKey;autoIncrement" json:"seq"`
	ID           string         `gorm:"type:uuid;uniqueIndex;not null" json:"id"`
	InvocationID string         `gorm:"type:uuid;not null;index" json:"invocation_id"`
	Type         string         `gorm:"type:varchar(32);not null;index" json:"type"`
	GameID       *uint64        `gorm:"index" json:"game_id,omitempty"`
	Actor        string         `gorm:"type:varchar(128)" json:"actor"`
	Payload      datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
}
