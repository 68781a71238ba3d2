// services/escrow_store.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"stake-escrow/escrow"
	"stake-escrow/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the escrow key space over kv_entries rows. It is bound to
// the transaction of one invocation.
type GormStore struct {
	tx *gorm.DB
}

func NewGormStore(tx *gorm.DB) *GormStore {
	return &GormStore{tx: tx}
}

func (s *GormStore) Has(k escrow.Key) (bool, error) {
	var n int64
	if err := s.tx.Model(&models.KVEntry{}).Where("key = ?", k.String()).Count(&n).Error; err != nil {
		return false, fmt.Errorf("store has %s: %w", k, err)
	}
	return n > 0, nil
}

func (s *GormStore) Get(k escrow.Key) ([]byte, bool, error) {
	var e models.KVEntry
	err := s.tx.Where("key = ?", k.String()).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store get %s: %w", k, err)
	}
	return []byte(e.Value), true, nil
}

func (s *GormStore) Set(k escrow.Key, value []byte) error {
	e := models.KVEntry{
		Key:   k.String(),
		Kind:  string(k.Kind()),
		Value: datatypes.JSON(value),
	}
	err := s.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("store set %s: %w", k, err)
	}
	return nil
}

func (s *GormStore) Remove(k escrow.Key) error {
	if err := s.tx.Where("key = ?", k.String()).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("store remove %s: %w", k, err)
	}
	return nil
}

// activeMatches decodes every match record still accepting stakes.
func activeMatches(db *gorm.DB) ([]escrow.GameMatch, error) {
	var rows []models.KVEntry
	err := db.
		Where("kind = ?", string(escrow.KindGameMatch)).
		Where(datatypes.JSONQuery("value").Equals("true", "is_active")).
		Order("key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]escrow.GameMatch, 0, len(rows))
	for _, r := range rows {
		m, err := decodeMatch(r.Value)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.Key, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeMatch(raw []byte) (escrow.GameMatch, error) {
	var m escrow.GameMatch
	err := json.Unmarshal(raw, &m)
	return m, err
}
