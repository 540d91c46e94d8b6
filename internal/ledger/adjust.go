package ledger

import (
	"context"
	"fmt"
	"math"

	applog "smokehouse/internal/log"
	"smokehouse/internal/saga"
	"smokehouse/internal/units"
	"smokehouse/models"
)

// AdjustRequest replaces the quantity of an allocation.
type AdjustRequest struct {
	AllocationID string
	Quantity     float64
	// Unit defaults to the allocation's current unit.
	Unit   string
	Reason string
}

// AdjustResult reports the balance movement an adjustment caused.
type AdjustResult struct {
	AllocationID string  `json:"allocation_id"`
	LotID        string  `json:"lot_id"`
	Delta        float64 `json:"delta"`
	Balance      float64 `json:"balance"`
	Unit         string  `json:"unit"`
	LotStatus    string  `json:"lot_status"`
	// AuditRecorded is true only when an adjust event was written. It stays
	// false when the change was within epsilon and the balance did not move, or
	// when the event write failed after the balance moved.
	AuditRecorded bool   `json:"audit_recorded"`
	EventID       string `json:"event_id,omitempty"`
}

// Adjust corrects the quantity of an existing allocation, moving the lot balance
// by the difference. The allocation write is a compare-and-set on its version
// and is the step that commits the adjustment: a larger draw debits the lot
// first, a smaller one rewrites the allocation first and then credits the lot.
func (l *Ledger) Adjust(ctx context.Context, req AdjustRequest) (*AdjustResult, error) {
	if !validQuantity(req.Quantity) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuantity, req.Quantity)
	}
	current, err := l.loadAllocation(ctx, req.AllocationID)
	if err != nil {
		return nil, err
	}

	var result *AdjustResult
	err = l.exec(ctx, "adjust", current.LotID, func(ctx context.Context) error {
		return l.retry(ctx, "adjust", current.LotID, func() error {
			allocation, err := l.loadAllocation(ctx, req.AllocationID)
			if err != nil {
				return err
			}
			lot, err := l.loadLot(ctx, allocation.LotID)
			if err != nil {
				return err
			}

			unit := req.Unit
			if unit == "" {
				unit = allocation.Unit
			}
			unit = units.Normalize(unit)
			next, err := l.toLotUnit(req.Quantity, unit, lot.Unit)
			if err != nil {
				return err
			}
			if !validQuantity(next) {
				return fmt.Errorf("%w: %v %s", ErrInvalidQuantity, next, lot.Unit)
			}
			previous, err := l.toLotUnit(allocation.Quantity, allocation.Unit, lot.Unit)
			if err != nil {
				return err
			}
			delta := next - previous

			result = &AdjustResult{AllocationID: allocation.ID, LotID: lot.ID, Unit: lot.Unit}

			rewrite := saga.Step{
				Name: "update allocation",
				Do: func(ctx context.Context) error {
					return l.store.UpdateAllocation(ctx, allocation.ID, allocation.Version, req.Quantity, unit)
				},
				Undo: func(ctx context.Context) error {
					return l.store.UpdateAllocation(ctx, allocation.ID, allocation.Version+1, allocation.Quantity, allocation.Unit)
				},
			}

			if math.Abs(delta) <= l.cfg.Epsilon {
				if err := rewrite.Do(ctx); err != nil {
					return fmt.Errorf("update allocation: %w", err)
				}
				result.Balance = lot.CurrentBalance
				result.LotStatus = lot.Status
				return nil
			}

			var steps []saga.Step
			if delta > 0 {
				if lot.Status == models.LotStatusRecalled {
					return fmt.Errorf("%w: %s", ErrLotRecalled, lot.LotNumber)
				}
				if lot.CurrentBalance-delta < -l.cfg.Epsilon {
					return &InsufficientBalanceError{LotID: lot.ID, Requested: delta, Available: lot.CurrentBalance, Unit: lot.Unit}
				}
				result.Balance, result.LotStatus = l.settle(lot, lot.CurrentBalance-delta)
				rewrite.Undo = nil
				steps = []saga.Step{
					{
						Name: "move lot balance",
						Do: func(ctx context.Context) error {
							return l.store.UpdateLotBalance(ctx, lot.ID, lot.Version, result.Balance, result.LotStatus)
						},
						Undo: func(ctx context.Context) error {
							balance, _, err := l.credit(ctx, lot.ID, delta)
							if err != nil {
								return err
							}
							// The last event must carry the current balance.
							event := l.newEvent(lot, models.LotEventAdjust, -delta, balance, allocation.BatchID, allocation.ID, "rolled back: "+req.Reason)
							if err := l.store.CreateLotEvent(ctx, event); err != nil {
								applog.Error(ctx, "adjust rollback event not recorded", "lotID", lot.ID, "allocationID", allocation.ID, "error", err)
							}
							return nil
						},
					},
					rewrite,
				}
			} else {
				steps = []saga.Step{
					rewrite,
					{
						Name: "move lot balance",
						Do: func(ctx context.Context) error {
							var err error
							result.Balance, result.LotStatus, err = l.credit(ctx, lot.ID, -delta)
							return err
						},
					},
				}
			}
			if err := saga.Run(ctx, steps, l.undoHook("adjust")); err != nil {
				return err
			}
			result.Delta = delta

			event := l.newEvent(lot, models.LotEventAdjust, delta, result.Balance, allocation.BatchID, allocation.ID, req.Reason)
			if err := l.store.CreateLotEvent(ctx, event); err != nil {
				applog.Error(ctx, "adjust event not recorded", "lotID", lot.ID, "allocationID", allocation.ID, "delta", delta, "error", err)
				return nil
			}
			result.AuditRecorded = true
			result.EventID = event.ID
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
