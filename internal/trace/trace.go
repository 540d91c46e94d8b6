// Package trace joins batches, allocations and lots into the forward and
// backward traceability views used for recalls and release decisions.
package trace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"smokehouse/internal/store"
	"smokehouse/internal/targets"
	"smokehouse/internal/units"
	"smokehouse/models"
)

var ErrNotFound = errors.New("trace: not found")

// LotUsage is one allocation of a lot to the traced batch.
type LotUsage struct {
	AllocationID string     `json:"allocation_id"`
	LotID        string     `json:"lot_id"`
	LotNumber    string     `json:"lot_number"`
	InternalCode string     `json:"internal_code,omitempty"`
	LotStatus    string     `json:"lot_status"`
	SupplierID   string     `json:"supplier_id,omitempty"`
	SupplierName string     `json:"supplier_name,omitempty"`
	ReceivedAt   time.Time  `json:"received_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Quantity     float64    `json:"quantity"`
	Unit         string     `json:"unit"`
}

type MaterialTrace struct {
	MaterialID   string                    `json:"material_id"`
	MaterialName string                    `json:"material_name"`
	Category     string                    `json:"category,omitempty"`
	Target       *targets.IngredientTarget `json:"target,omitempty"`
	Lots         []LotUsage                `json:"lots"`
}

// BatchTrace is the forward view of a batch: every material it consumed and the
// lots that material came from.
type BatchTrace struct {
	Batch         *models.Batch              `json:"batch"`
	Recipe        *models.Recipe             `json:"recipe,omitempty"`
	ScaleFactor   float64                    `json:"scale_factor"`
	BaseMassGrams float64                    `json:"base_mass_grams"`
	Materials     []MaterialTrace            `json:"materials"`
	Extras        []MaterialTrace            `json:"extras"`
	TotalsByUnit  map[string]decimal.Decimal `json:"totals_by_unit"`
}

// AffectedBatch is one batch that consumed the traced lot.
type AffectedBatch struct {
	BatchID       string  `json:"batch_id"`
	Code          string  `json:"code"`
	Status        string  `json:"status"`
	ReleaseStatus string  `json:"release_status"`
	Allocations   int     `json:"allocations"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
}

// LotImpact is the backward view of a lot, used to scope a recall.
type LotImpact struct {
	Lot             *models.Lot      `json:"lot"`
	Supplier        *models.Supplier `json:"supplier,omitempty"`
	AffectedBatches []AffectedBatch  `json:"affected_batches"`
	TotalAllocated  float64          `json:"total_allocated"`
}

type Assembler struct {
	store   store.Reader
	targets *targets.Service
}

func NewAssembler(reader store.Reader, svc *targets.Service) *Assembler {
	return &Assembler{store: reader, targets: svc}
}

// BatchTrace assembles the forward trace of batchID.
func (a *Assembler) BatchTrace(ctx context.Context, batchID string) (*BatchTrace, error) {
	snap, err := a.targets.Snapshot(ctx, batchID)
	if err != nil {
		return nil, notFound(err, "batch", batchID)
	}

	usage := make(map[string][]LotUsage)
	names := make(map[string]*models.Material)
	totals := make(map[string]decimal.Decimal)
	for _, allocation := range snap.Allocations {
		usage[allocation.MaterialID] = append(usage[allocation.MaterialID], lotUsage(allocation))
		if allocation.Material != nil {
			names[allocation.MaterialID] = allocation.Material
		}
		qty, base := units.ToBase(allocation.Quantity, allocation.Unit)
		totals[base] = totals[base].Add(decimal.NewFromFloat(qty))
	}

	out := &BatchTrace{
		Batch:         snap.Batch,
		Recipe:        snap.Recipe,
		ScaleFactor:   snap.Result.ScaleFactor,
		BaseMassGrams: snap.Result.BaseMassGrams,
		Materials:     make([]MaterialTrace, 0, len(snap.Result.Targets)),
		Extras:        make([]MaterialTrace, 0, len(snap.Result.Extras)),
		TotalsByUnit:  totals,
	}
	for i := range snap.Result.Targets {
		target := snap.Result.Targets[i]
		out.Materials = append(out.Materials, MaterialTrace{
			MaterialID:   target.MaterialID,
			MaterialName: target.MaterialName,
			Category:     target.Category,
			Target:       &target,
			Lots:         nonNil(usage[target.MaterialID]),
		})
	}
	for _, extra := range snap.Result.Extras {
		mt := MaterialTrace{
			MaterialID:   extra.MaterialID,
			MaterialName: extra.MaterialName,
			Lots:         nonNil(usage[extra.MaterialID]),
		}
		if m := names[extra.MaterialID]; m != nil {
			mt.Category = m.Category
		}
		out.Extras = append(out.Extras, mt)
	}
	return out, nil
}

// LotImpact lists every batch holding an active allocation against lotID.
// Quantities are expressed in the lot's unit.
func (a *Assembler) LotImpact(ctx context.Context, lotID string) (*LotImpact, error) {
	lot, err := a.store.GetLot(ctx, lotID)
	if err != nil {
		return nil, notFound(err, "lot", lotID)
	}
	allocations, err := a.store.ListAllocationsByLot(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("list allocations of lot %s: %w", lotID, err)
	}

	impact := &LotImpact{Lot: lot, Supplier: lot.Supplier, AffectedBatches: []AffectedBatch{}}
	index := make(map[string]int)
	total := decimal.Zero
	for _, allocation := range allocations {
		qty := units.Convert(allocation.Quantity, allocation.Unit, lot.Unit)
		total = total.Add(decimal.NewFromFloat(qty))

		i, ok := index[allocation.BatchID]
		if !ok {
			affected := AffectedBatch{BatchID: allocation.BatchID, Unit: lot.Unit}
			if allocation.Batch != nil {
				affected.Code = allocation.Batch.Code
				affected.Status = allocation.Batch.Status
				affected.ReleaseStatus = allocation.Batch.ReleaseStatus
			}
			i = len(impact.AffectedBatches)
			index[allocation.BatchID] = i
			impact.AffectedBatches = append(impact.AffectedBatches, affected)
		}
		impact.AffectedBatches[i].Allocations++
		impact.AffectedBatches[i].Quantity += qty
	}
	impact.TotalAllocated = total.InexactFloat64()
	return impact, nil
}

func lotUsage(allocation models.Allocation) LotUsage {
	u := LotUsage{
		AllocationID: allocation.ID,
		LotID:        allocation.LotID,
		Quantity:     allocation.Quantity,
		Unit:         allocation.Unit,
	}
	if lot := allocation.Lot; lot != nil {
		u.LotNumber = lot.LotNumber
		u.InternalCode = lot.InternalCode
		u.LotStatus = lot.Status
		u.ReceivedAt = lot.ReceivedAt
		u.ExpiresAt = lot.ExpiresAt
		if lot.Supplier != nil {
			u.SupplierID = lot.Supplier.ID
			u.SupplierName = lot.Supplier.Name
		}
	}
	return u
}

func nonNil(lots []LotUsage) []LotUsage {
	if lots == nil {
		return []LotUsage{}
	}
	return lots
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return err
}
