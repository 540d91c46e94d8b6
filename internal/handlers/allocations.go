package handlers

import (
	"net/http"

	"smokehouse/internal/ledger"
	applog "smokehouse/internal/log"
)

type allocationRequest struct {
	BatchID    string  `json:"batch_id" validate:"required"`
	LotID      string  `json:"lot_id" validate:"required"`
	MaterialID string  `json:"material_id"`
	Quantity   float64 `json:"quantity" validate:"gt=0"`
	Unit       string  `json:"unit" validate:"max=16"`
	Reason     string  `json:"reason" validate:"max=500"`
}

type adjustmentRequest struct {
	Quantity float64 `json:"quantity" validate:"gt=0"`
	Unit     string  `json:"unit" validate:"max=16"`
	Reason   string  `json:"reason" validate:"max=500"`
}

type reversalRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CreateAllocation handles POST /api/allocations.
func CreateAllocation(w http.ResponseWriter, r *http.Request) {
	if unavailable(w, r, lots != nil) {
		return
	}
	var req allocationRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	res, err := lots.Allocate(r.Context(), ledger.AllocateRequest{
		BatchID:    req.BatchID,
		LotID:      req.LotID,
		MaterialID: req.MaterialID,
		Quantity:   req.Quantity,
		Unit:       req.Unit,
		Reason:     req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.Info(r.Context(), "allocation created", "allocationID", res.AllocationID, "lotID", res.LotID, "batchID", req.BatchID)
	writeJSON(w, http.StatusCreated, res)
}

// UpdateAllocation handles PUT /api/allocations/{id}.
func UpdateAllocation(w http.ResponseWriter, r *http.Request) {
	if unavailable(w, r, lots != nil) {
		return
	}
	var req adjustmentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	res, err := lots.Adjust(r.Context(), ledger.AdjustRequest{
		AllocationID: r.PathValue("id"),
		Quantity:     req.Quantity,
		Unit:         req.Unit,
		Reason:       req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !res.AuditRecorded {
		applog.Warn(r.Context(), "allocation adjusted without audit event", "allocationID", res.AllocationID)
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteAllocation handles DELETE /api/allocations/{id}. The body is optional.
func DeleteAllocation(w http.ResponseWriter, r *http.Request) {
	if unavailable(w, r, lots != nil) {
		return
	}
	var req reversalRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	res, err := lots.Reverse(r.Context(), ledger.ReverseRequest{AllocationID: r.PathValue("id"), Reason: req.Reason})
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.Info(r.Context(), "allocation reversed", "allocationID", res.AllocationID, "restored", res.Restored)
	writeJSON(w, http.StatusOK, res)
}
