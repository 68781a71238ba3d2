// models/kv_entry.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntry is one record of the escrow key space (config, stake pointers,
// match records). Value holds the record's JSON encoding.
// Table name: kv_entries
type KVEntry struct {
	Key       string         `gorm:"primaryKey;type:varchar(200)" json:"key"`
	Kind      string         `gorm:"type:varchar(32);not null;index" json:"kind"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null" json:"value"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
