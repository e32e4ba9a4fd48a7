package web

import (
	"net/http"

	"sklad-ledger/internal/core"

	"github.com/google/uuid"
)

type createDocumentRequest struct {
	WarehouseIDs []uuid.UUID   `json:"warehouse_ids" validate:"required,min=1"`
	DocType      string        `json:"doc_type" validate:"required,oneof=outgoing incoming inventory"`
	Number       string        `json:"number" validate:"required,max=100"`
	Description  *string       `json:"description" validate:"omitempty,max=1000"`
	AddressFrom  *core.Address `json:"address_from"`
	AddressTo    *core.Address `json:"address_to"`
}

type updateDocumentRequest struct {
	WarehouseIDs []uuid.UUID   `json:"warehouse_ids" validate:"omitempty,min=1"`
	DocType      *string       `json:"doc_type" validate:"omitempty,oneof=outgoing incoming inventory"`
	Number       *string       `json:"number" validate:"omitempty,max=100"`
	Description  *string       `json:"description" validate:"omitempty,max=1000"`
	AddressFrom  *core.Address `json:"address_from"`
	AddressTo    *core.Address `json:"address_to"`
}

type documentItemRequest struct {
	NomenclatureID     *uuid.UUID      `json:"nomenclature_id"`
	Name               *string         `json:"name" validate:"omitempty,max=255"`
	Unit               *string         `json:"unit" validate:"omitempty,max=20"`
	Packaging          *core.Packaging `json:"packaging"`
	QuantityDocumental *int            `json:"quantity_documental" validate:"omitempty,min=0"`
	QuantityActual     *int            `json:"quantity_actual" validate:"omitempty,min=0"`
}

type itemResponse struct {
	core.SkladDocumentItem
	Discrepancy *int `json:"discrepancy,omitempty"`
}

func toItemResponse(it core.SkladDocumentItem) itemResponse {
	return itemResponse{SkladDocumentItem: it, Discrepancy: it.Discrepancy()}
}

// listDocuments handles GET /api/documents.
func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := queryUUID(w, r, "warehouse_id")
	if !ok {
		return
	}
	docs, err := h.svc.Documents.ListDocuments(r.Context(), identityFromContext(r.Context()).OrganizationID, warehouseID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if docs == nil {
		docs = []core.SkladDocument{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// createDocument handles POST /api/documents.
func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var body createDocumentRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}
	id := identityFromContext(r.Context())
	doc, err := h.svc.Documents.CreateDocument(r.Context(), id.OrganizationID, id.ActorID, core.CreateDocumentInput{
		WarehouseIDs: body.WarehouseIDs,
		Type:         core.DocumentType(body.DocType),
		Number:       body.Number,
		Description:  body.Description,
		AddressFrom:  body.AddressFrom,
		AddressTo:    body.AddressTo,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// getDocument handles GET /api/documents/{documentID}.
func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	doc, err := h.svc.Documents.GetDocument(r.Context(), identityFromContext(r.Context()).OrganizationID, docID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// updateDocument handles PATCH /api/documents/{documentID}.
func (h *Handler) updateDocument(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	var body updateDocumentRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}
	in := core.UpdateDocumentInput{
		WarehouseIDs: body.WarehouseIDs,
		Number:       body.Number,
		Description:  body.Description,
		AddressFrom:  body.AddressFrom,
		AddressTo:    body.AddressTo,
	}
	if body.DocType != nil {
		t := core.DocumentType(*body.DocType)
		in.Type = &t
	}
	doc, err := h.svc.Documents.UpdateDocument(r.Context(), identityFromContext(r.Context()).OrganizationID, docID, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// deleteDocument handles DELETE /api/documents/{documentID}.
func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	if err := h.svc.Documents.DeleteDocument(r.Context(), identityFromContext(r.Context()).OrganizationID, docID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listItems handles GET /api/documents/{documentID}/items.
func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	items, err := h.svc.Documents.ListItems(r.Context(), identityFromContext(r.Context()).OrganizationID, docID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := make([]itemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, toItemResponse(it))
	}
	writeJSON(w, http.StatusOK, resp)
}

// addItem handles POST /api/documents/{documentID}/items.
func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	var body documentItemRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}
	if body.NomenclatureID == nil || body.QuantityDocumental == nil {
		writeError(w, r, "nomenclature_id and quantity_documental are required", "VALIDATION_ERROR", http.StatusBadRequest)
		return
	}

	item, err := h.svc.Documents.AddItem(r.Context(), identityFromContext(r.Context()).OrganizationID, docID, core.AddItemInput{
		NomenclatureID:     *body.NomenclatureID,
		Name:               body.Name,
		Unit:               body.Unit,
		Packaging:          body.Packaging,
		QuantityDocumental: *body.QuantityDocumental,
		QuantityActual:     body.QuantityActual,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(*item))
}

// getItem handles GET /api/items/{itemID}.
func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	item, err := h.svc.Documents.GetItem(r.Context(), identityFromContext(r.Context()).OrganizationID, itemID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(*item))
}

// updateItem handles PATCH /api/items/{itemID}.
func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	var body documentItemRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}
	item, err := h.svc.Documents.UpdateItem(r.Context(), identityFromContext(r.Context()).OrganizationID, itemID, core.UpdateItemInput{
		NomenclatureID:     body.NomenclatureID,
		Name:               body.Name,
		Unit:               body.Unit,
		Packaging:          body.Packaging,
		QuantityDocumental: body.QuantityDocumental,
		QuantityActual:     body.QuantityActual,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(*item))
}

// deleteItem handles DELETE /api/items/{itemID}.
func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	if err := h.svc.Documents.DeleteItem(r.Context(), identityFromContext(r.Context()).OrganizationID, itemID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
