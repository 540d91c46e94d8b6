package handlers

import (
	"net/http"

	"smokehouse/internal/ledger"
	applog "smokehouse/internal/log"
)

type recallRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// RecallLot handles POST /api/lots/{id}/recall.
func RecallLot(w http.ResponseWriter, r *http.Request) {
	if unavailable(w, r, lots != nil) {
		return
	}
	var req recallRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	res, err := lots.RecallLot(r.Context(), ledger.RecallRequest{LotID: r.PathValue("id"), Reason: req.Reason})
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyRecalled {
		status = http.StatusOK
	}
	applog.Info(r.Context(), "lot recalled", "lotID", r.PathValue("id"), "batches", len(res.AffectedBatchIDs), "alreadyRecalled", res.AlreadyRecalled)
	writeJSON(w, status, res)
}

// LotImpact handles GET /api/lots/{id}/impact.
func LotImpact(w http.ResponseWriter, r *http.Request) {
	if unavailable(w, r, assembler != nil) {
		return
	}
	impact, err := assembler.LotImpact(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, impact)
}

// LotReconciliation handles GET /api/lots/{id}/reconciliation.
func LotReconciliation(w http.ResponseWriter, r *http.Request) {
	if unavailable(w, r, lots != nil) {
		return
	}
	rec, err := lots.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteLot handles DELETE /api/lots/{id}.
func DeleteLot(w http.ResponseWriter, r *http.Request) {
	if unavailable(w, r, lots != nil) {
		return
	}
	if err := lots.RemoveLot(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
