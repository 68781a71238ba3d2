// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"stake-escrow/escrow"

	"github.com/go-co-op/gocron/v2"
	"github.com/shopspring/decimal"
)

// CustodyAuditor compares what active matches owe their players with what
// the custody account holds.
type CustodyAuditor struct {
	Backend EscrowBackend
	Custody escrow.Address
	Assets  []escrow.Address
}

type AuditReport struct {
	ActiveMatches int           `json:"active_matches"`
	Pooled        escrow.Amount `json:"pooled"`
	Held          escrow.Amount `json:"held"`
	Shortfall     escrow.Amount `json:"shortfall"`
}

// Run sums the pools of all active matches and the custody balances of
// the audited assets. Shortfall is positive when custody holds less than
// it owes.
func (a *CustodyAuditor) Run(ctx context.Context) (AuditReport, error) {
	matches, err := a.Backend.ActiveMatches(ctx)
	if err != nil {
		return AuditReport{}, err
	}
	r := AuditReport{ActiveMatches: len(matches), Pooled: decimal.Zero, Held: decimal.Zero}
	for _, m := range matches {
		r.Pooled = r.Pooled.Add(m.TotalPool)
	}
	for _, asset := range a.Assets {
		b, err := a.Backend.Balance(ctx, asset, a.Custody)
		if err != nil {
			return AuditReport{}, err
		}
		r.Held = r.Held.Add(b)
	}
	r.Shortfall = decimal.Max(r.Pooled.Sub(r.Held), decimal.Zero)
	return r, nil
}

// StartCustodyAudit runs the auditor every interval until the returned
// scheduler is shut down.
func StartCustodyAudit(a *CustodyAuditor, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			r, err := a.Run(ctx)
			if err != nil {
				log.Printf("[AUDIT] custody audit failed: %v", err)
				return
			}
			if r.Shortfall.IsPositive() {
				log.Printf("🚨 [AUDIT] custody %s short by %s: %d active match(es) pool %s, held %s",
					a.Custody, r.Shortfall.String(), r.ActiveMatches, r.Pooled.String(), r.Held.String())
				return
			}
			log.Printf("✅ [AUDIT] custody %s covers %d active match(es): pool %s, held %s",
				a.Custody, r.ActiveMatches, r.Pooled.String(), r.Held.String())
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
