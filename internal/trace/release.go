package trace

import (
	"context"
	"fmt"

	"smokehouse/internal/targets"
	"smokehouse/models"
)

const (
	BlockerBatchRecalled  = "batch_recalled"
	BlockerBatchCancelled = "batch_cancelled"
	BlockerRemaining      = "critical_remaining"
	BlockerOutOfTolerance = "critical_out_of_tolerance"
)

type Blocker struct {
	Code       string `json:"code"`
	MaterialID string `json:"material_id,omitempty"`
	Message    string `json:"message"`
}

// Readiness is what a release gate needs to decide whether a batch may move to
// released. It does not perform the transition.
type Readiness struct {
	BatchID         string                     `json:"batch_id"`
	Status          string                     `json:"status"`
	ReleaseStatus   string                     `json:"release_status"`
	Ready           bool                       `json:"ready"`
	CriticalTargets []targets.IngredientTarget `json:"critical_targets"`
	Blockers        []Blocker                  `json:"blockers"`
}

// ReleaseReadiness reports whether every critical ingredient of batchID is fully
// allocated and within tolerance.
func (a *Assembler) ReleaseReadiness(ctx context.Context, batchID string) (*Readiness, error) {
	batch, _, result, err := a.targets.ResolveTargets(ctx, batchID)
	if err != nil {
		return nil, notFound(err, "batch", batchID)
	}

	r := &Readiness{
		BatchID:         batch.ID,
		Status:          batch.Status,
		ReleaseStatus:   batch.ReleaseStatus,
		CriticalTargets: []targets.IngredientTarget{},
		Blockers:        []Blocker{},
	}
	if batch.ReleaseStatus == models.ReleaseStatusRecalled {
		r.Blockers = append(r.Blockers, Blocker{Code: BlockerBatchRecalled, Message: "batch consumed a recalled lot"})
	}
	if batch.Status == models.BatchStatusCancelled {
		r.Blockers = append(r.Blockers, Blocker{Code: BlockerBatchCancelled, Message: "batch is cancelled"})
	}

	eps := a.targets.Epsilon()
	for _, t := range result.Targets {
		if !t.IsCritical {
			continue
		}
		r.CriticalTargets = append(r.CriticalTargets, t)
		if t.Remaining > eps {
			r.Blockers = append(r.Blockers, Blocker{
				Code:       BlockerRemaining,
				MaterialID: t.MaterialID,
				Message:    fmt.Sprintf("%s: %.4g %s still to allocate", t.MaterialName, t.Remaining, t.Unit),
			})
		}
		if !t.WithinTolerance {
			r.Blockers = append(r.Blockers, Blocker{
				Code:       BlockerOutOfTolerance,
				MaterialID: t.MaterialID,
				Message:    fmt.Sprintf("%s: used %.4g %s against target %.4g (±%g%%)", t.MaterialName, t.Used, t.Unit, t.Target, t.TolerancePct),
			})
		}
	}
	r.Ready = len(r.Blockers) == 0
	return r, nil
}
