// services/asset_ledger.go
package services

import (
	"errors"
	"fmt"
	"time"

	"stake-escrow/escrow"
	"stake-escrow/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger is the escrow asset ledger over asset_balances rows. Both
// balances of a transfer are locked FOR UPDATE for the rest of the
// invocation's transaction.
type GormLedger struct {
	tx           *gorm.DB
	assets       escrow.AssetAllowList
	custody      escrow.Address
	invocationID string
}

func NewGormLedger(tx *gorm.DB, assets escrow.AssetAllowList, custody escrow.Address, invocationID string) *GormLedger {
	return &GormLedger{tx: tx, assets: assets, custody: custody, invocationID: invocationID}
}

func (l *GormLedger) Transfer(asset, from, to escrow.Address, amount escrow.Amount) error {
	if err := l.assets.Check(asset); err != nil {
		return err
	}
	if amount.IsNegative() {
		return escrow.ErrNegativeTransfer
	}

	src, err := lockBalance(l.tx, asset, from)
	if err != nil {
		return err
	}
	if src.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", escrow.ErrInsufficientBalance, from, src.String(), amount.String())
	}
	if amount.IsZero() || from == to {
		return nil
	}

	err = l.tx.Model(&models.AssetBalance{}).
		Where("asset = ? AND account = ?", asset.String(), from.String()).
		Updates(map[string]interface{}{
			"amount":     gorm.Expr("amount - ?", amount),
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if err := upsertBalance(l.tx, asset, to, amount); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}

	inv := l.invocationID
	return l.tx.Create(&models.LedgerTransfer{
		ID:           uuid.NewString(),
		InvocationID: &inv,
		Asset:        asset.String(),
		FromAccount:  from.String(),
		ToAccount:    to.String(),
		Amount:       amount,
		Reason:       l.reason(from, to),
	}).Error
}

func (l *GormLedger) reason(from, to escrow.Address) string {
	switch {
	case to == l.custody:
		return models.TransferReasonStake
	case from == l.custody:
		return models.TransferReasonPayout
	default:
		return models.TransferReasonOther
	}
}

// CreditDeposit adds amount to account from outside the ledger and
// journals it as a deposit. tx must be the caller's transaction.
func CreditDeposit(tx *gorm.DB, asset, account escrow.Address, amount escrow.Amount) error {
	if err := escrow.ValidateAmount(amount); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: deposit must be positive", escrow.ErrInvalidAmount)
	}
	if err := upsertBalance(tx, asset, account, amount); err != nil {
		return err
	}
	return tx.Create(&models.LedgerTransfer{
		ID:        uuid.NewString(),
		Asset:     asset.String(),
		ToAccount: account.String(),
		Amount:    amount,
		Reason:    models.TransferReasonDeposit,
	}).Error
}

// BalanceOf reads a balance without locking. Missing rows are zero.
func BalanceOf(db *gorm.DB, asset, account escrow.Address) (escrow.Amount, error) {
	var b models.AssetBalance
	err := db.Where("asset = ? AND account = ?", asset.String(), account.String()).Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return b.Amount, nil
}

func lockBalance(tx *gorm.DB, asset, account escrow.Address) (escrow.Amount, error) {
	var b models.AssetBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset = ? AND account = ?", asset.String(), account.String()).
		Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock balance %s/%s: %w", asset, account, err)
	}
	return b.Amount, nil
}

func upsertBalance(tx *gorm.DB, asset, account escrow.Address, amount escrow.Amount) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset"}, {Name: "account"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":     gorm.Expr("asset_balances.amount + EXCLUDED.amount"),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&models.AssetBalance{
		Asset:   asset.String(),
		Account: account.String(),
		Amount:  amount,
	}).Error
}
