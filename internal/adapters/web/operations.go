package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sklad-ledger/internal/core"
	"sklad-ledger/internal/report"

	"github.com/google/uuid"
)

type applyOperationRequest struct {
	OperationType   string         `json:"operation_type" validate:"required"`
	NomenclatureID  uuid.UUID      `json:"nomenclature_id" validate:"required"`
	Quantity        int            `json:"quantity"`
	FromWarehouseID *uuid.UUID     `json:"from_warehouse_id"`
	ToWarehouseID   *uuid.UUID     `json:"to_warehouse_id"`
	Comment         *string        `json:"comment" validate:"omitempty,max=500"`
	Metadata        map[string]any `json:"metadata"`
}

// applyOperation handles POST /api/operations.
func (h *Handler) applyOperation(w http.ResponseWriter, r *http.Request) {
	var body applyOperationRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}
	id := identityFromContext(r.Context())

	req := core.OperationRequest{
		Type:            core.OperationType(body.OperationType),
		NomenclatureID:  body.NomenclatureID,
		Quantity:        body.Quantity,
		FromWarehouseID: body.FromWarehouseID,
		ToWarehouseID:   body.ToWarehouseID,
		Comment:         body.Comment,
		Metadata:        body.Metadata,
	}
	op, err := core.RetryApply(r.Context(), h.svc.Ledger, h.svc.RetryAttempts, req, id.OrganizationID, id.ActorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

// listOperations handles GET /api/operations.
func (h *Handler) listOperations(w http.ResponseWriter, r *http.Request) {
	filter := core.OperationFilter{OrganizationID: identityFromContext(r.Context()).OrganizationID}

	if t := r.URL.Query().Get("operation_type"); t != "" {
		opType := core.OperationType(t)
		filter.Type = &opType
	}
	var ok bool
	if filter.NomenclatureID, ok = queryUUID(w, r, "nomenclature_id"); !ok {
		return
	}
	if filter.WarehouseID, ok = queryUUID(w, r, "warehouse_id"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}
	if filter.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}

	ops, err := h.svc.Operations.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if ops == nil {
		ops = []core.StockOperation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

// getOperation handles GET /api/operations/{operationID}.
func (h *Handler) getOperation(w http.ResponseWriter, r *http.Request) {
	opID, ok := pathUUID(w, r, "operationID")
	if !ok {
		return
	}
	op, err := h.svc.Operations.Get(r.Context(), identityFromContext(r.Context()).OrganizationID, opID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// ── Balances ──────────────────────────────────────────────────────────────────

type balanceResponse struct {
	core.Balance
	Available    int  `json:"available"`
	BelowMinimum bool `json:"below_minimum"`
}

func toBalanceResponse(b core.Balance) balanceResponse {
	return balanceResponse{Balance: b, Available: b.Available(), BelowMinimum: b.BelowMinimum()}
}

// listBalances handles GET /api/balances.
func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	var filter core.BalanceFilter
	var ok bool
	if filter.WarehouseID, ok = queryUUID(w, r, "warehouse_id"); !ok {
		return
	}
	if filter.NomenclatureID, ok = queryUUID(w, r, "nomenclature_id"); !ok {
		return
	}
	filter.LowStockOnly = r.URL.Query().Get("low_stock") == "true"

	balances, err := h.svc.Balances.ListBalances(r.Context(), identityFromContext(r.Context()).OrganizationID, filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		resp = append(resp, toBalanceResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getBalance handles GET /api/balances/{nomenclatureID}/{warehouseID}.
func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	nomenclatureID, ok := pathUUID(w, r, "nomenclatureID")
	if !ok {
		return
	}
	warehouseID, ok := pathUUID(w, r, "warehouseID")
	if !ok {
		return
	}
	b, err := h.svc.Balances.GetBalance(r.Context(), identityFromContext(r.Context()).OrganizationID, nomenclatureID, warehouseID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(*b))
}

type thresholdsRequest struct {
	Reserved    *int `json:"reserved" validate:"omitempty,min=0"`
	MinQuantity *int `json:"min_quantity" validate:"omitempty,min=0"`
}

// updateThresholds handles PATCH /api/balances/{nomenclatureID}/{warehouseID}/thresholds.
func (h *Handler) updateThresholds(w http.ResponseWriter, r *http.Request) {
	nomenclatureID, ok := pathUUID(w, r, "nomenclatureID")
	if !ok {
		return
	}
	warehouseID, ok := pathUUID(w, r, "warehouseID")
	if !ok {
		return
	}
	var body thresholdsRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}

	b, err := h.svc.Ledger.UpdateThresholds(r.Context(), identityFromContext(r.Context()).OrganizationID,
		nomenclatureID, warehouseID, core.Thresholds{Reserved: body.Reserved, MinQuantity: body.MinQuantity})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(*b))
}

// stockReport handles GET /api/reports/stock.xlsx.
func (h *Handler) stockReport(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := queryUUID(w, r, "warehouse_id")
	if !ok {
		return
	}
	orgID := identityFromContext(r.Context()).OrganizationID

	var warehouse *core.Warehouse
	if warehouseID != nil {
		wh, err := h.svc.Catalog.GetWarehouse(r.Context(), orgID, *warehouseID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		warehouse = wh
	}

	rows, err := h.svc.Balances.StockSummary(r.Context(), orgID, warehouseID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	now := time.Now()
	buf := &bytes.Buffer{}
	if err := report.WriteStockSummary(buf, report.StockTitle(warehouse), rows, now); err != nil {
		if errors.Is(err, report.ErrEmpty) {
			writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
			return
		}
		h.logger.Error("stock report failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, r, "failed to build report", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="stock_%s.xlsx"`, now.Format("20060102_150405")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
