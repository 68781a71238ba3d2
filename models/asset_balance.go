// models/asset_balance.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetBalance is the holding of one account in one asset.
type AssetBalance struct {
	Asset     string          `gorm:"primaryKey;type:varchar(128)" json:"asset"`
	Account   string          `gorm:"primaryKey;type:varchar(128)" json:"account"`
	Amount    decimal.Decimal `gorm:"type:numeric(39,0);not null" json:"amount"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Transfer reasons recorded in the journal.
const (
	TransferReasonStake   = "stake"
	TransferReasonPayout  = "payout"
	TransferReasonDeposit = "deposit"
	TransferReasonOther   = "transfer"
)

// LedgerTransfer journals every balance movement. InvocationID ties the
// transfers of one escrow invocation to the events it emitted. Deposits
// have no source account and no invocation.
type LedgerTransfer struct {
	ID           string          `gorm:"primaryKey;type:uuid" json:"id"`
	InvocationID *string         `gorm:"type:uuid;index" json:"invocation_id,omitempty"`
	Asset        string          `gorm:"type:varchar(128);not null;index" json:"asset"`
	FromAccount  string          `gorm:"type:varchar(128);index" json:"from_account"`
	ToAccount    string          `gorm:"type:varchar(128);not null;index" json:"to_account"`
	Amount       decimal.Decimal `gorm:"type:numeric(39,0);not null" json:"amount"`
	Reason       string          `gorm:"type:varchar(16);not null" json:"reason"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
