package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"smokehouse/internal/saga"
	"smokehouse/internal/store"
	"smokehouse/internal/units"
	"smokehouse/models"
)

// AllocateRequest draws Quantity of Unit from LotID for BatchID. An empty Unit
// means the lot's unit; an empty MaterialID skips the material check.
type AllocateRequest struct {
	BatchID    string
	LotID      string
	MaterialID string
	Quantity   float64
	Unit       string
	Reason     string
}

// AllocationResult identifies the new allocation and the lot balance after it.
type AllocationResult struct {
	AllocationID string  `json:"allocation_id"`
	EventID      string  `json:"event_id"`
	LotID        string  `json:"lot_id"`
	Consumed     float64 `json:"consumed"`
	Balance      float64 `json:"balance"`
	Unit         string  `json:"unit"`
	LotStatus    string  `json:"lot_status"`
}

// Allocate consumes req.Quantity from a lot on behalf of a batch. The allocation
// row, its consume event and the balance decrement are applied together or not at all.
func (l *Ledger) Allocate(ctx context.Context, req AllocateRequest) (*AllocationResult, error) {
	if !validQuantity(req.Quantity) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuantity, req.Quantity)
	}

	var result *AllocationResult
	err := l.exec(ctx, "allocate", req.LotID, func(ctx context.Context) error {
		if _, err := l.store.GetBatch(ctx, req.BatchID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: batch %s", ErrNotFound, req.BatchID)
			}
			return fmt.Errorf("load batch %s: %w", req.BatchID, err)
		}

		return l.retry(ctx, "allocate", req.LotID, func() error {
			lot, err := l.loadLot(ctx, req.LotID)
			if err != nil {
				return err
			}
			if lot.Status == models.LotStatusRecalled {
				return fmt.Errorf("%w: %s", ErrLotRecalled, lot.LotNumber)
			}
			if req.MaterialID != "" && req.MaterialID != lot.MaterialID {
				return fmt.Errorf("%w: lot %s holds %s, requested %s", ErrMaterialMismatch, lot.ID, lot.MaterialID, req.MaterialID)
			}

			consumed, err := l.toLotUnit(req.Quantity, req.Unit, lot.Unit)
			if err != nil {
				return err
			}
			if !validQuantity(consumed) {
				return fmt.Errorf("%w: %v %s", ErrInvalidQuantity, consumed, lot.Unit)
			}
			if consumed > lot.CurrentBalance+l.cfg.Epsilon {
				return &InsufficientBalanceError{LotID: lot.ID, Requested: consumed, Available: lot.CurrentBalance, Unit: lot.Unit}
			}
			balance, status := l.settle(lot, lot.CurrentBalance-consumed)

			unit := req.Unit
			if unit == "" {
				unit = lot.Unit
			}
			allocation := &models.Allocation{
				ID:         uuid.NewString(),
				BatchID:    req.BatchID,
				LotID:      lot.ID,
				MaterialID: lot.MaterialID,
				Quantity:   req.Quantity,
				Unit:       units.Normalize(unit),
				CreatedAt:  l.now(),
			}
			event := l.newEvent(lot, models.LotEventConsume, consumed, balance, req.BatchID, allocation.ID, req.Reason)

			err = saga.Run(ctx, []saga.Step{
				{
					Name: "insert allocation",
					Do:   func(ctx context.Context) error { return l.store.CreateAllocation(ctx, allocation) },
					Undo: func(ctx context.Context) error { return l.store.PurgeAllocation(ctx, allocation.ID) },
				},
				{
					Name: "record consume event",
					Do:   func(ctx context.Context) error { return l.store.CreateLotEvent(ctx, event) },
					Undo: func(ctx context.Context) error { return l.store.DeleteLotEvent(ctx, event.ID) },
				},
				{
					Name: "decrement lot balance",
					Do: func(ctx context.Context) error {
						return l.store.UpdateLotBalance(ctx, lot.ID, lot.Version, balance, status)
					},
				},
			}, l.undoHook("allocate"))
			if err != nil {
				return err
			}

			result = &AllocationResult{
				AllocationID: allocation.ID,
				EventID:      event.ID,
				LotID:        lot.ID,
				Consumed:     consumed,
				Balance:      balance,
				Unit:         lot.Unit,
				LotStatus:    status,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
