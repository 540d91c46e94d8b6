package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"smokehouse/internal/export"
	applog "smokehouse/internal/log"
	"smokehouse/internal/targets"
)

type batchTargetsResponse struct {
	BatchID  string `json:"batch_id"`
	RecipeID string `json:"recipe_id,omitempty"`
	targets.Result
}

// BatchTargets handles GET /api/batches/{id}/targets.
func BatchTargets(w http.ResponseWriter, r *http.Request) {
	if unavailable(w, r, resolver != nil) {
		return
	}
	batch, recipe, result, err := resolver.ResolveTargets(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := batchTargetsResponse{BatchID: batch.ID, Result: result}
	if recipe != nil {
		resp.RecipeID = recipe.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// BatchTrace handles GET /api/batches/{id}/trace. With ?format=xlsx the trace is
// returned as a workbook attachment.
func BatchTrace(w http.ResponseWriter, r *http.Request) {
	if unavailable(w, r, assembler != nil) {
		return
	}
	tr, err := assembler.BatchTrace(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, tr)
	case "xlsx":
		var buf bytes.Buffer
		if err := export.WriteBatchTrace(&buf, tr); err != nil {
			applog.Error(r.Context(), "failed to render trace workbook", "batchID", tr.Batch.ID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to render workbook")
			return
		}
		w.Header().Set("Content-Type", export.ContentType)
		w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(export.Filename(tr)))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			applog.Error(r.Context(), "failed to write trace workbook", "error", err)
		}
	default:
		writeJSONError(w, http.StatusBadRequest, "unsupported format")
	}
}

// ReleaseReadiness handles GET /api/batches/{id}/release-readiness.
func ReleaseReadiness(w http.ResponseWriter, r *http.Request) {
	if unavailable(w, r, assembler != nil) {
		return
	}
	readiness, err := assembler.ReleaseReadiness(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readiness)
}
