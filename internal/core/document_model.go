package core

import (
	"time"

	"github.com/google/uuid"
)

type DocumentType string

const (
	DocumentOutgoing  DocumentType = "outgoing"
	DocumentIncoming  DocumentType = "incoming"
	DocumentInventory DocumentType = "inventory"
)

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentOutgoing, DocumentIncoming, DocumentInventory:
		return true
	}
	return false
}

// Address is the optional shipping address attached to a document.
type Address struct {
	Country    string `json:"country,omitempty"`
	City       string `json:"city,omitempty"`
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Building   string `json:"building,omitempty"`
}

// SkladDocument groups line items of a planned movement or an inventory count.
// IsVerified is derived from the items and is never written by callers.
type SkladDocument struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID OrganizationID `json:"organization_id"`
	CreatedBy      *ActorID       `json:"created_by,omitempty"`
	WarehouseIDs   []uuid.UUID    `json:"warehouse_ids"`
	Type           DocumentType   `json:"doc_type"`
	Number         string         `json:"number"`
	Description    *string        `json:"description,omitempty"`
	AddressFrom    *Address       `json:"address_from,omitempty"`
	AddressTo      *Address       `json:"address_to,omitempty"`
	IsVerified     bool           `json:"is_verified"`
	IsDeleted      bool           `json:"is_deleted"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Packaging describes how an item is packed; BaseUnits is the count of
// nomenclature units per package.
type Packaging struct {
	Name      string  `json:"name"`
	BaseUnits int     `json:"base_units"`
	Barcode   *string `json:"barcode,omitempty"`
}

// SkladDocumentItem pairs the documented quantity with the counted one.
type SkladDocumentItem struct {
	ID                 uuid.UUID  `json:"id"`
	DocumentID         uuid.UUID  `json:"document_id"`
	NomenclatureID     uuid.UUID  `json:"nomenclature_id"`
	Name               *string    `json:"name,omitempty"`
	Unit               *string    `json:"unit,omitempty"`
	Packaging          *Packaging `json:"packaging,omitempty"`
	QuantityDocumental int        `json:"quantity_documental"`
	QuantityActual     *int       `json:"quantity_actual,omitempty"`
	IsVerified         bool       `json:"is_verified"`
	IsDeleted          bool       `json:"is_deleted"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Discrepancy is the counted minus documented quantity, or nil while the
// item has not been counted.
func (i SkladDocumentItem) Discrepancy() *int {
	if i.QuantityActual == nil {
		return nil
	}
	d := *i.QuantityActual - i.QuantityDocumental
	return &d
}

type CreateDocumentInput struct {
	WarehouseIDs []uuid.UUID
	Type         DocumentType
	Number       string
	Description  *string
	AddressFrom  *Address
	AddressTo    *Address
}

// UpdateDocumentInput is a partial update; nil fields are left unchanged.
type UpdateDocumentInput struct {
	WarehouseIDs []uuid.UUID
	Type         *DocumentType
	Number       *string
	Description  *string
	AddressFrom  *Address
	AddressTo    *Address
}

type AddItemInput struct {
	NomenclatureID     uuid.UUID
	Name               *string
	Unit               *string
	Packaging          *Packaging
	QuantityDocumental int
	QuantityActual     *int
}

// UpdateItemInput is a partial update; nil fields are left unchanged.
type UpdateItemInput struct {
	NomenclatureID     *uuid.UUID
	Name               *string
	Unit               *string
	Packaging          *Packaging
	QuantityDocumental *int
	QuantityActual     *int
}
