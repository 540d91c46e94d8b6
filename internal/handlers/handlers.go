package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"smokehouse/internal/ledger"
	applog "smokehouse/internal/log"
	"smokehouse/internal/store"
	"smokehouse/internal/targets"
	"smokehouse/internal/trace"
)

const maxBodyBytes = 1 << 20

// Dependencies are the services the HTTP handlers delegate to.
type Dependencies struct {
	Database  *gorm.DB
	Ledger    *ledger.Ledger
	Targets   *targets.Service
	Assembler *trace.Assembler
}

var (
	database  *gorm.DB
	lots      *ledger.Ledger
	resolver  *targets.Service
	assembler *trace.Assembler
	validate  = validator.New()
)

// Configure installs the shared dependencies used by the HTTP handlers.
func Configure(deps Dependencies) {
	database = deps.Database
	lots = deps.Ledger
	resolver = deps.Targets
	assembler = deps.Assembler
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(context.Background(), "failed to encode json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a request body into dst and validates it. An empty body is
// accepted when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		applog.Debug(r.Context(), "invalid json payload", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid json payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": fields})
		return false
	}
	return true
}

// writeError maps ledger, trace and store errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *ledger.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     err.Error(),
			"lot_id":    insufficient.LotID,
			"requested": insufficient.Requested,
			"available": insufficient.Available,
			"unit":      insufficient.Unit,
		})
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, trace.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrConcurrentModification), errors.Is(err, ledger.ErrLotRecalled):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrMaterialMismatch), errors.Is(err, ledger.ErrInvalidQuantity):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrPartialFailureUncompensated):
		applog.Error(r.Context(), "write left partial state", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("partial failure, manual follow-up required: %v", err))
	case errors.Is(err, ledger.ErrPartialFailureCompensated):
		applog.Error(r.Context(), "write rolled back", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("partial failure, rolled back: %v", err))
	default:
		applog.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func unavailable(w http.ResponseWriter, r *http.Request, ready bool) bool {
	if ready {
		return false
	}
	applog.Debug(r.Context(), "request without configured dependencies", "path", r.URL.Path)
	writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
	return true
}
