// models/deposit_receipt.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositReceipt records a deposit reported by the wallet sync service.
// A receipt is written at most once; its ledger credit happens in the same
// transaction as the insert.
// Table name: deposit_receipts
type DepositReceipt struct {
	ID          string          `gorm:"primaryKey;type:varchar(128)" json:"id"` // External deposit ID
	Asset       string          `gorm:"type:varchar(128);not null;index" json:"asset"`
	Account     string          `gorm:"type:varchar(128);not null;index" json:"account"`
	Amount      decimal.Decimal `gorm:"type:numeric(39,0);not null" json:"amount"`
	TxHash      string          `gorm:"type:varchar(128)" json:"tx_hash"`
	DepositedAt time.Time       `gorm:"not null" json:"deposited_at"`
	CreditedAt  time.Time       `gorm:"autoCreateTime" json:"credited_at"`
}
