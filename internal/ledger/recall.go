package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	applog "smokehouse/internal/log"
	"smokehouse/internal/notify"
	"smokehouse/internal/saga"
	"smokehouse/internal/store"
	"smokehouse/models"
)

// RecallRequest names the lot to recall.
type RecallRequest struct {
	LotID  string
	Reason string
}

// RecallResult carries the recall record and the batches it flagged.
type RecallResult struct {
	Recall           *models.Recall `json:"recall,omitempty"`
	AffectedBatchIDs []string       `json:"affected_batch_ids"`
	AlreadyRecalled  bool           `json:"already_recalled"`
	Notified         bool           `json:"notified"`
}

// RecallLot marks a lot recalled and flags every batch that consumed it. The
// balance is left untouched. Recalling an already recalled lot returns the
// latest recall without writing anything.
func (l *Ledger) RecallLot(ctx context.Context, req RecallRequest) (*RecallResult, error) {
	var (
		result *RecallResult
		lot    *models.Lot
	)
	err := l.exec(ctx, "recall", req.LotID, func(ctx context.Context) error {
		return l.retry(ctx, "recall", req.LotID, func() error {
			var err error
			lot, err = l.loadLot(ctx, req.LotID)
			if err != nil {
				return err
			}
			if lot.Status == models.LotStatusRecalled {
				result, err = l.existingRecall(ctx, lot.ID)
				return err
			}

			allocations, err := l.store.ListAllocationsByLot(ctx, lot.ID)
			if err != nil {
				return fmt.Errorf("list allocations of lot %s: %w", lot.ID, err)
			}

			recall := &models.Recall{ID: uuid.NewString(), LotID: lot.ID, Reason: req.Reason}
			seen := make(map[string]bool)
			for _, allocation := range allocations {
				if seen[allocation.BatchID] {
					continue
				}
				seen[allocation.BatchID] = true
				previous, err := l.releaseStatus(ctx, allocation)
				if err != nil {
					return err
				}
				recall.Batches = append(recall.Batches, models.RecallBatch{
					RecallID:              recall.ID,
					BatchID:               allocation.BatchID,
					PreviousReleaseStatus: previous,
				})
			}
			event := l.newEvent(lot, models.LotEventRecall, 0, lot.CurrentBalance, "", "", req.Reason)

			previousStatus := lot.Status
			steps := []saga.Step{
				{
					Name: "mark lot recalled",
					Do: func(ctx context.Context) error {
						return l.store.UpdateLotStatus(ctx, lot.ID, lot.Version, models.LotStatusRecalled)
					},
					Undo: func(ctx context.Context) error {
						return l.store.UpdateLotStatus(ctx, lot.ID, lot.Version+1, previousStatus)
					},
				},
				{
					Name: "insert recall",
					Do:   func(ctx context.Context) error { return l.store.CreateRecall(ctx, recall) },
					Undo: func(ctx context.Context) error { return l.store.DeleteRecall(ctx, recall.ID) },
				},
				{
					Name: "record recall event",
					Do:   func(ctx context.Context) error { return l.store.CreateLotEvent(ctx, event) },
					Undo: func(ctx context.Context) error { return l.store.DeleteLotEvent(ctx, event.ID) },
				},
			}
			for _, rb := range recall.Batches {
				steps = append(steps, saga.Step{
					Name: "flag batch " + rb.BatchID,
					Do: func(ctx context.Context) error {
						return l.store.SetBatchReleaseStatus(ctx, rb.BatchID, models.ReleaseStatusRecalled)
					},
					// A batch another recall still lists keeps its flag.
					Undo: func(ctx context.Context) error {
						return l.store.UnflagBatchRecall(ctx, rb.BatchID, recall.ID, rb.PreviousReleaseStatus)
					},
				})
			}
			if err := saga.Run(ctx, steps, l.undoHook("recall")); err != nil {
				return err
			}

			result = &RecallResult{Recall: recall, AffectedBatchIDs: batchIDs(recall)}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyRecalled || result.Recall == nil {
		return result, nil
	}

	notice := notify.RecallNotice{
		RecallID:   result.Recall.ID,
		LotID:      lot.ID,
		LotNumber:  lot.LotNumber,
		MaterialID: lot.MaterialID,
		Reason:     req.Reason,
		BatchIDs:   result.AffectedBatchIDs,
		RecalledAt: l.now(),
	}
	if err := l.notifier.PublishRecall(ctx, notice); err != nil {
		applog.Warn(ctx, "recall notice not published", "lotID", lot.ID, "recallID", notice.RecallID, "error", err)
	} else {
		result.Notified = true
	}
	return result, nil
}

func (l *Ledger) existingRecall(ctx context.Context, lotID string) (*RecallResult, error) {
	recall, err := l.store.LatestRecall(ctx, lotID)
	if errors.Is(err, store.ErrNotFound) {
		return &RecallResult{AlreadyRecalled: true, AffectedBatchIDs: []string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load recall of lot %s: %w", lotID, err)
	}
	return &RecallResult{Recall: recall, AffectedBatchIDs: batchIDs(recall), AlreadyRecalled: true}, nil
}

func (l *Ledger) releaseStatus(ctx context.Context, allocation models.Allocation) (string, error) {
	if allocation.Batch != nil {
		return allocation.Batch.ReleaseStatus, nil
	}
	batch, err := l.store.GetBatch(ctx, allocation.BatchID)
	if err != nil {
		return "", fmt.Errorf("load batch %s: %w", allocation.BatchID, err)
	}
	return batch.ReleaseStatus, nil
}

func batchIDs(recall *models.Recall) []string {
	ids := make([]string, 0, len(recall.Batches))
	for _, rb := range recall.Batches {
		ids = append(ids, rb.BatchID)
	}
	return ids
}
