package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	applog "smokehouse/internal/log"
	"smokehouse/internal/store"
)

// Reconciliation compares a lot's stored balance with what its active
// allocations and audit trail imply.
type Reconciliation struct {
	LotID            string   `json:"lot_id"`
	LotNumber        string   `json:"lot_number"`
	MaterialID       string   `json:"material_id"`
	Status           string   `json:"status"`
	Unit             string   `json:"unit"`
	ReceivedQuantity float64  `json:"received_quantity"`
	CurrentBalance   float64  `json:"current_balance"`
	Allocated        float64  `json:"allocated"`
	Expected         float64  `json:"expected_balance"`
	Drift            float64  `json:"drift"`
	Allocations      int      `json:"allocations"`
	Events           int      `json:"events"`
	InvalidDigests   []string `json:"invalid_digests"`
	LastEventBalance *float64 `json:"last_event_balance,omitempty"`
	// BalanceConsistent is the central invariant: received minus balance equals
	// the sum of active allocations.
	BalanceConsistent bool `json:"balance_consistent"`
	AuditConsistent   bool `json:"audit_consistent"`
}

// Consistent reports whether both the balance and the audit trail check out.
func (r Reconciliation) Consistent() bool {
	return r.BalanceConsistent && r.AuditConsistent
}

// Reconcile recomputes the balance of lotID from its allocations and verifies the
// digest of every lot event.
func (l *Ledger) Reconcile(ctx context.Context, lotID string) (*Reconciliation, error) {
	lot, err := l.loadLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	allocations, err := l.store.ListAllocationsByLot(ctx, lot.ID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	events, err := l.store.ListLotEvents(ctx, lot.ID)
	if err != nil {
		return nil, fmt.Errorf("list lot events: %w", err)
	}

	allocated := decimal.Zero
	for _, allocation := range allocations {
		q, err := l.toLotUnit(allocation.Quantity, allocation.Unit, lot.Unit)
		if err != nil {
			return nil, fmt.Errorf("allocation %s: %w", allocation.ID, err)
		}
		allocated = allocated.Add(decimal.NewFromFloat(q))
	}
	received := decimal.NewFromFloat(lot.ReceivedQuantity)
	balance := decimal.NewFromFloat(lot.CurrentBalance)
	expected := received.Sub(allocated)
	drift := balance.Sub(expected)
	eps := decimal.NewFromFloat(l.cfg.Epsilon)

	rec := &Reconciliation{
		LotID:             lot.ID,
		LotNumber:         lot.LotNumber,
		MaterialID:        lot.MaterialID,
		Status:            lot.Status,
		Unit:              lot.Unit,
		ReceivedQuantity:  lot.ReceivedQuantity,
		CurrentBalance:    lot.CurrentBalance,
		Allocated:         allocated.InexactFloat64(),
		Expected:          expected.InexactFloat64(),
		Drift:             drift.InexactFloat64(),
		Allocations:       len(allocations),
		Events:            len(events),
		InvalidDigests:    []string{},
		BalanceConsistent: drift.Abs().LessThanOrEqual(eps) && !balance.IsNegative(),
		AuditConsistent:   true,
	}

	for i := range events {
		if !l.audit.verify(&events[i]) {
			rec.InvalidDigests = append(rec.InvalidDigests, events[i].ID)
			rec.AuditConsistent = false
		}
	}
	if n := len(events); n > 0 {
		last := events[n-1].ResultingBalance
		rec.LastEventBalance = &last
		if decimal.NewFromFloat(last).Sub(balance).Abs().GreaterThan(eps) {
			rec.AuditConsistent = false
		}
	}

	if !rec.Consistent() {
		applog.Warn(ctx, "lot reconciliation mismatch",
			"lotID", lot.ID,
			"drift", rec.Drift,
			"invalidDigests", len(rec.InvalidDigests),
		)
	}
	return rec, nil
}

// ReconcileAll reconciles every lot in receipt order.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	lots, err := l.store.ListLots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	out := make([]Reconciliation, 0, len(lots))
	for _, lot := range lots {
		rec, err := l.Reconcile(ctx, lot.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// RemoveLot deletes a lot together with its allocations, events and recalls in a
// single database transaction.
func (l *Ledger) RemoveLot(ctx context.Context, lotID string) error {
	return l.exec(ctx, "remove_lot", lotID, func(ctx context.Context) error {
		err := l.store.DeleteLotCascade(ctx, lotID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: lot %s", ErrNotFound, lotID)
		}
		if err != nil {
			return fmt.Errorf("remove lot %s: %w", lotID, err)
		}
		applog.Info(ctx, "lot removed", "lotID", lotID)
		return nil
	})
}
