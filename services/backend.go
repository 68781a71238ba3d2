// services/backend.go
package services

import (
	"context"
	"time"

	"stake-escrow/escrow"
)

// EscrowBackend is an escrow executor plus the read paths the HTTP surface
// and the custody audit need outside of an invocation.
type EscrowBackend interface {
	escrow.Executor
	Balance(ctx context.Context, asset, account escrow.Address) (escrow.Amount, error)
	Events(ctx context.Context, q EventQuery) ([]EventRecord, error)
	ActiveMatches(ctx context.Context) ([]escrow.GameMatch, error)
}

// EventQuery selects committed events with Seq > AfterSeq, oldest first.
type EventQuery struct {
	GameID   *uint64
	AfterSeq uint64
	Limit    int
}

const (
	defaultEventLimit = 100
	maxEventLimit     = 500
)

func (q EventQuery) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultEventLimit
	case q.Limit > maxEventLimit:
		return maxEventLimit
	}
	return q.Limit
}

// EventRecord is a committed event with its journal position.
type EventRecord struct {
	Seq        uint64            `json:"seq"`
	Type       escrow.EventType  `json:"type"`
	GameID     *uint64           `json:"game_id,omitempty"`
	Actor      escrow.Address    `json:"actor"`
	Attributes map[string]string `json:"attributes"`
	At         time.Time         `json:"at"`
}

// MemoryBackend serves an in-process MemoryExecutor. Used for local runs
// (STORE_BACKEND=memory) and handler tests.
type MemoryBackend struct {
	*escrow.MemoryExecutor
}

func NewMemoryBackend(custody escrow.Address, opts ...escrow.MemoryOption) *MemoryBackend {
	return &MemoryBackend{MemoryExecutor: escrow.NewMemoryExecutor(custody, opts...)}
}

func (b *MemoryBackend) Balance(ctx context.Context, asset, account escrow.Address) (escrow.Amount, error) {
	if err := ctx.Err(); err != nil {
		return escrow.Amount{}, err
	}
	return b.MemoryExecutor.Balance(asset, account), nil
}

func (b *MemoryBackend) Events(ctx context.Context, q EventQuery) ([]EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []EventRecord{}
	for i, e := range b.MemoryExecutor.Events() {
		seq := uint64(i + 1)
		if seq <= q.AfterSeq {
			continue
		}
		if q.GameID != nil && (e.GameID == nil || *e.GameID != *q.GameID) {
			continue
		}
		out = append(out, EventRecord{
			Seq:        seq,
			Type:       e.Type,
			GameID:     e.GameID,
			Actor:      e.Actor,
			Attributes: e.Attributes,
			At:         e.At,
		})
		if len(out) == q.limit() {
			break
		}
	}
	return out, nil
}

func (b *MemoryBackend) ActiveMatches(ctx context.Context) ([]escrow.GameMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.MemoryExecutor.ActiveMatches()
}
