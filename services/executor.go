// services/executor.go
package services

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"

	"stake-escrow/escrow"
	"stake-escrow/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// escrowLockKey is the postgres advisory lock serializing invocations
// across service replicas.
const escrowLockKey int64 = 0x65736372 // "escr"

// GormExecutor runs each escrow invocation in one database transaction
// holding the escrow advisory lock. Store writes, ledger transfers and
// events commit together or not at all.
type GormExecutor struct {
	DB      *gorm.DB
	Custody escrow.Address
	Assets  escrow.AssetAllowList

	mu sync.Mutex
}

func NewGormExecutor(db *gorm.DB, custody escrow.Address, assets escrow.AssetAllowList) *GormExecutor {
	return &GormExecutor{DB: db, Custody: custody, Assets: assets}
}

func (x *GormExecutor) Execute(ctx context.Context, caller escrow.Address, fn func(c *escrow.Contract) error) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	invocationID := uuid.NewString()
	var emitted []models.EscrowEvent

	err := x.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", escrowLockKey).Error; err != nil {
			return err
		}
		sink := NewGormEventSink(tx, invocationID)
		c := escrow.New(escrow.Host{
			Store:   NewGormStore(tx),
			Auth:    escrow.CallerAuthorizer{Caller: caller},
			Assets:  NewGormLedger(tx, x.Assets, x.Custody, invocationID),
			Events:  sink,
			Custody: x.Custody,
		})
		if err := fn(c); err != nil {
			return err
		}
		emitted = sink.emitted
		return nil
	})
	if err != nil {
		return err
	}

	for _, e := range emitted {
		log.Printf("📣 [ESCROW] #%d %s actor=%s game=%s %s", e.Seq, e.Type, e.Actor, formatGameID(e.GameID), string(e.Payload))
	}
	return nil
}

func (x *GormExecutor) Balance(ctx context.Context, asset, account escrow.Address) (escrow.Amount, error) {
	return BalanceOf(x.DB.WithContext(ctx), asset, account)
}

func (x *GormExecutor) Events(ctx context.Context, q EventQuery) ([]EventRecord, error) {
	db := x.DB.WithContext(ctx).Where("seq > ?", q.AfterSeq)
	if q.GameID != nil {
		db = db.Where("game_id = ?", *q.GameID)
	}
	var rows []models.EscrowEvent
	if err := db.Order("seq ASC").Limit(q.limit()).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]EventRecord, 0, len(rows))
	for _, r := range rows {
		attrs := map[string]string{}
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &attrs); err != nil {
				return nil, err
			}
		}
		out = append(out, EventRecord{
			Seq:        r.Seq,
			Type:       escrow.EventType(r.Type),
			GameID:     r.GameID,
			Actor:      escrow.Address(r.Actor),
			Attributes: attrs,
			At:         r.CreatedAt,
		})
	}
	return out, nil
}

func (x *GormExecutor) ActiveMatches(ctx context.Context) ([]escrow.GameMatch, error) {
	return activeMatches(x.DB.WithContext(ctx))
}

func formatGameID(id *uint64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatUint(*id, 10)
}
