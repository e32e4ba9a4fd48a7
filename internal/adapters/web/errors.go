package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"sklad-ledger/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorDetails(w, r, message, code, status, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, message, code string, status int, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
		Details:   details,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type insufficientStockDetails struct {
	NomenclatureID string `json:"nomenclature_id"`
	WarehouseID    string `json:"warehouse_id"`
	Available      int    `json:"available"`
	Required       int    `json:"required"`
}

// writeServiceError maps a classified core error onto an HTTP status.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch core.KindOf(err) {
	case core.ErrValidation:
		writeError(w, r, err.Error(), "VALIDATION_ERROR", http.StatusBadRequest)
	case core.ErrNotFound:
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case core.ErrInsufficientStock:
		var details any
		var ise *core.InsufficientStockError
		if errors.As(err, &ise) {
			details = insufficientStockDetails{
				NomenclatureID: ise.NomenclatureID.String(),
				WarehouseID:    ise.WarehouseID.String(),
				Available:      ise.Available,
				Required:       ise.Required,
			}
		}
		writeErrorDetails(w, r, err.Error(), "INSUFFICIENT_STOCK", http.StatusUnprocessableEntity, details)
	case core.ErrConflict:
		writeError(w, r, err.Error(), "CONFLICT", http.StatusConflict)
	case core.ErrPersistence:
		h.logger.Error("storage failure", "request_id", requestIDFromContext(r.Context()), "error", err)
		w.Header().Set("Retry-After", "1")
		writeError(w, r, "storage temporarily unavailable, retry the request", "PERSISTENCE_ERROR", http.StatusServiceUnavailable)
	default:
		h.logger.Error("unclassified error", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
