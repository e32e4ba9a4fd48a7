package web

import (
	"net/http"

	"sklad-ledger/internal/core"
)

type createWarehouseRequest struct {
	Name     string         `json:"name" validate:"required,min=3,max=100"`
	Code     string         `json:"code" validate:"required,min=3,max=50"`
	Type     string         `json:"type" validate:"required,oneof=MAIN RETAIL TRANSIT QUARANTINE"`
	Address  map[string]any `json:"address"`
	Settings map[string]any `json:"settings"`
}

// listWarehouses handles GET /api/warehouses.
func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Catalog.ListWarehouses(r.Context(), identityFromContext(r.Context()).OrganizationID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []core.Warehouse{}
	}
	writeJSON(w, http.StatusOK, list)
}

// createWarehouse handles POST /api/warehouses.
func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var body createWarehouseRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}
	wh, err := h.svc.Catalog.CreateWarehouse(r.Context(), identityFromContext(r.Context()).OrganizationID, core.CreateWarehouseInput{
		Name:     body.Name,
		Code:     body.Code,
		Type:     core.WarehouseType(body.Type),
		Address:  body.Address,
		Settings: body.Settings,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

// getWarehouse handles GET /api/warehouses/{warehouseID}.
func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "warehouseID")
	if !ok {
		return
	}
	wh, err := h.svc.Catalog.GetWarehouse(r.Context(), identityFromContext(r.Context()).OrganizationID, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

// deleteWarehouse handles DELETE /api/warehouses/{warehouseID}.
func (h *Handler) deleteWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "warehouseID")
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeleteWarehouse(r.Context(), identityFromContext(r.Context()).OrganizationID, id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createNomenclatureRequest struct {
	Name       string         `json:"name" validate:"required,max=255"`
	Article    string         `json:"article" validate:"required,max=50"`
	Barcode    *string        `json:"barcode" validate:"omitempty,max=64"`
	Unit       string         `json:"unit" validate:"omitempty,max=20"`
	Category   *string        `json:"category" validate:"omitempty,max=100"`
	Properties map[string]any `json:"properties"`
}

// listNomenclature handles GET /api/nomenclature.
func (h *Handler) listNomenclature(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Catalog.ListNomenclature(r.Context(), identityFromContext(r.Context()).OrganizationID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []core.Nomenclature{}
	}
	writeJSON(w, http.StatusOK, list)
}

// createNomenclature handles POST /api/nomenclature.
func (h *Handler) createNomenclature(w http.ResponseWriter, r *http.Request) {
	var body createNomenclatureRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}
	n, err := h.svc.Catalog.CreateNomenclature(r.Context(), identityFromContext(r.Context()).OrganizationID, core.CreateNomenclatureInput{
		Name:       body.Name,
		Article:    body.Article,
		Barcode:    body.Barcode,
		Unit:       body.Unit,
		Category:   body.Category,
		Properties: body.Properties,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// getNomenclature handles GET /api/nomenclature/{nomenclatureID}.
func (h *Handler) getNomenclature(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "nomenclatureID")
	if !ok {
		return
	}
	n, err := h.svc.Catalog.GetNomenclature(r.Context(), identityFromContext(r.Context()).OrganizationID, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// deleteNomenclature handles DELETE /api/nomenclature/{nomenclatureID}.
func (h *Handler) deleteNomenclature(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "nomenclatureID")
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeleteNomenclature(r.Context(), identityFromContext(r.Context()).OrganizationID, id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
