// services/event_sink.go
package services

import (
	"encoding/json"
	"fmt"

	"stake-escrow/escrow"
	"stake-escrow/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormEventSink writes events into the invocation's transaction, so they
// commit or roll back with the state they describe.
type GormEventSink struct {
	tx           *gorm.DB
	invocationID string
	emitted      []models.EscrowEvent
}

func NewGormEventSink(tx *gorm.DB, invocationID string) *GormEventSink {
	return &GormEventSink{tx: tx, invocationID: invocationID}
}

func (s *GormEventSink) Emit(e escrow.Event) error {
	payload, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	row := models.EscrowEvent{
		ID:           uuid.NewString(),
		InvocationID: s.invocationID,
		Type:         string(e.Type),
		GameID:       e.GameID,
		Actor:        e.Actor.String(),
		Payload:      datatypes.JSON(payload),
		CreatedAt:    e.At,
	}
	if err := s.tx.Create(&row).Error; err != nil {
		return fmt.Errorf("record %s event: %w", e.Type, err)
	}
	s.emitted = append(s.emitted, row)
	return nil
}
