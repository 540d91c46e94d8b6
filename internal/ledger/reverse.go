package ledger

import (
	"context"

	applog "smokehouse/internal/log"
	"smokehouse/internal/saga"
	"smokehouse/models"
)

// ReverseRequest identifies the allocation to delete.
type ReverseRequest struct {
	AllocationID string
	Reason       string
}

// ReverseResult reports the quantity returned to the lot.
type ReverseResult struct {
	AllocationID  string  `json:"allocation_id"`
	LotID         string  `json:"lot_id"`
	Restored      float64 `json:"restored"`
	Balance       float64 `json:"balance"`
	Unit          string  `json:"unit"`
	LotStatus     string  `json:"lot_status"`
	AuditRecorded bool    `json:"audit_recorded"`
}

// Reverse deletes an allocation and returns its quantity to the lot. The delete
// is a compare-and-set on the allocation version, so the restored quantity is
// the one that was deleted. A failed balance restore undeletes the same row.
func (l *Ledger) Reverse(ctx context.Context, req ReverseRequest) (*ReverseResult, error) {
	current, err := l.loadAllocation(ctx, req.AllocationID)
	if err != nil {
		return nil, err
	}

	var result *ReverseResult
	err = l.exec(ctx, "reverse", current.LotID, func(ctx context.Context) error {
		return l.retry(ctx, "reverse", current.LotID, func() error {
			allocation, err := l.loadAllocation(ctx, req.AllocationID)
			if err != nil {
				return err
			}
			lot, err := l.loadLot(ctx, allocation.LotID)
			if err != nil {
				return err
			}
			restored, err := l.toLotUnit(allocation.Quantity, allocation.Unit, lot.Unit)
			if err != nil {
				return err
			}
			var balance float64
			var status string

			err = saga.Run(ctx, []saga.Step{
				{
					Name: "delete allocation",
					Do: func(ctx context.Context) error {
						return l.store.DeleteAllocation(ctx, allocation.ID, allocation.Version)
					},
					Undo: func(ctx context.Context) error { return l.store.RestoreAllocation(ctx, allocation.ID) },
				},
				{
					Name: "restore lot balance",
					Do: func(ctx context.Context) error {
						var err error
						balance, status, err = l.credit(ctx, lot.ID, restored)
						return err
					},
				},
			}, l.undoHook("reverse"))
			if err != nil {
				return err
			}

			result = &ReverseResult{
				AllocationID: allocation.ID,
				LotID:        lot.ID,
				Restored:     restored,
				Balance:      balance,
				Unit:         lot.Unit,
				LotStatus:    status,
			}
			event := l.newEvent(lot, models.LotEventRestore, -restored, balance, allocation.BatchID, allocation.ID, req.Reason)
			if err := l.store.CreateLotEvent(ctx, event); err != nil {
				applog.Error(ctx, "restore event not recorded", "lotID", lot.ID, "allocationID", allocation.ID, "error", err)
				return nil
			}
			result.AuditRecorded = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
