package workers

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"stake-escrow/escrow"
	"stake-escrow/models"
	"stake-escrow/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	const schema = "escrow_workers_test"

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	admin, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, admin.Exec("CREATE SCHEMA IF NOT EXISTS "+schema).Error)
	if sqlDB, err := admin.DB(); err == nil {
		sqlDB.Close()
	}

	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "search_path=" + schema
	} else {
		dsn += " search_path=" + schema
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	require.NoError(t, db.AutoMigrate(&models.AssetBalance{}, &models.LedgerTransfer{}, &models.DepositReceipt{}))
	require.NoError(t, db.Exec("TRUNCATE asset_balances, ledger_transfers, deposit_receipts").Error)
	return db
}

func TestApplyCreditsEachDepositOnce(t *testing.T) {
	db := openTestDB(t)
	c := NewDepositSyncClient(db, "http://unused", "svc-token")
	ctx := context.Background()
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	batch := []models.DepositReceipt{
		{ID: "dep-1", Asset: "native", Account: "GP1", Amount: decimal.NewFromInt(300), DepositedAt: at},
		{ID: "dep-2", Asset: "native", Account: "GP1", Amount: decimal.NewFromInt(200), DepositedAt: at},
	}
	credited, err := c.Apply(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, credited)

	// The sync service replays overlapping windows.
	credited, err = c.Apply(ctx, batch)
	require.NoError(t, err)
	assert.Zero(t, credited)

	b, err := services.BalanceOf(db, "native", "GP1")
	require.NoError(t, err)
	assert.Equal(t, "500", b.String())

	var journaled int64
	require.NoError(t, db.Model(&models.LedgerTransfer{}).Where("reason = ?", models.TransferReasonDeposit).Count(&journaled).Error)
	assert.Equal(t, int64(2), journaled)
}

func TestApplySkipsMalformedDepositsInBatch(t *testing.T) {
	db := openTestDB(t)
	c := NewDepositSyncClient(db, "http://unused", "svc-token")
	ctx := context.Background()
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	credited, err := c.Apply(ctx, []models.DepositReceipt{
		{ID: "dep-bad", Asset: "native", Account: "GP1", Amount: decimal.RequireFromString("0.5"), DepositedAt: at},
		{ID: "dep-ok", Asset: "native", Account: "GP2", Amount: decimal.NewFromInt(75), DepositedAt: at},
		{ID: "dep-neg", Asset: "native", Account: "GP2", Amount: decimal.NewFromInt(-75), DepositedAt: at},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, credited)

	b, err := services.BalanceOf(db, escrow.Address("native"), "GP2")
	require.NoError(t, err)
	assert.Equal(t, "75", b.String())

	var receipts int64
	require.NoError(t, db.Model(&models.DepositReceipt{}).Count(&receipts).Error)
	assert.Equal(t, int64(1), receipts, "malformed receipts are not recorded")
}
