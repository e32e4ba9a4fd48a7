package core

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// OrganizationID scopes every catalog, balance and document row.
type OrganizationID = uuid.UUID

// ActorID identifies the authenticated user performing a write.
type ActorID = uuid.UUID

type WarehouseType string

const (
	WarehouseMain       WarehouseType = "MAIN"
	WarehouseRetail     WarehouseType = "RETAIL"
	WarehouseTransit    WarehouseType = "TRANSIT"
	WarehouseQuarantine WarehouseType = "QUARANTINE"
)

func (t WarehouseType) Valid() bool {
	switch t {
	case WarehouseMain, WarehouseRetail, WarehouseTransit, WarehouseQuarantine:
		return true
	}
	return false
}

// Warehouse ("sklad") is a storage location owned by one organization.
type Warehouse struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID OrganizationID `json:"organization_id"`
	Name           string         `json:"name"`
	Code           string         `json:"code"`
	Type           WarehouseType  `json:"type"`
	Address        map[string]any `json:"address"`
	Settings       map[string]any `json:"settings"`
	IsDeleted      bool           `json:"is_deleted"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Nomenclature is a catalog item (SKU). Its quantity lives in Balance rows.
type Nomenclature struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID OrganizationID `json:"organization_id"`
	Name           string         `json:"name"`
	Article        string         `json:"article"`
	Barcode        *string        `json:"barcode,omitempty"`
	Unit           string         `json:"unit"`
	Category       *string        `json:"category,omitempty"`
	Properties     map[string]any `json:"properties"`
	IsDeleted      bool           `json:"is_deleted"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Balance is the on-hand snapshot of one nomenclature at one warehouse.
// Reserved is advisory: nothing ties it to Quantity.
type Balance struct {
	NomenclatureID uuid.UUID  `json:"nomenclature_id"`
	WarehouseID    uuid.UUID  `json:"warehouse_id"`
	Quantity       int        `json:"quantity"`
	Reserved       int        `json:"reserved"`
	MinQuantity    *int       `json:"min_quantity,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// Available is the quantity not earmarked by a reservation.
func (b Balance) Available() int {
	return b.Quantity - b.Reserved
}

// BelowMinimum reports whether the reorder threshold has been crossed.
func (b Balance) BelowMinimum() bool {
	return b.MinQuantity != nil && b.Quantity < *b.MinQuantity
}

// BalanceFilter narrows ListBalances. Zero values mean "any".
type BalanceFilter struct {
	WarehouseID    *uuid.UUID
	NomenclatureID *uuid.UUID
	LowStockOnly   bool
}

// StockSummaryRow aggregates quantities of one nomenclature across the
// selected warehouses.
type StockSummaryRow struct {
	NomenclatureID uuid.UUID `json:"nomenclature_id"`
	Name           string    `json:"name"`
	Article        string    `json:"article"`
	Unit           string    `json:"unit"`
	Quantity       int       `json:"quantity"`
	Reserved       int       `json:"reserved"`
}

// Thresholds carries the advisory fields of a balance that are not moved by
// stock operations. Nil fields are left unchanged.
type Thresholds struct {
	Reserved    *int `json:"reserved,omitempty"`
	MinQuantity *int `json:"min_quantity,omitempty"`
}

type OperationType string

const (
	OperationTransfer   OperationType = "TRANSFER"
	OperationSale       OperationType = "SALE"
	OperationDisposal   OperationType = "DISPOSAL"
	OperationAdjustment OperationType = "ADJUSTMENT"
	OperationReceipt    OperationType = "RECEIPT"
	OperationReturn     OperationType = "RETURN"
)

// OperationTypes lists every kind the ledger accepts.
var OperationTypes = []OperationType{
	OperationTransfer, OperationSale, OperationDisposal,
	OperationAdjustment, OperationReceipt, OperationReturn,
}

func (t OperationType) Valid() bool {
	for _, known := range OperationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// OperationRequest is the caller's intent. Quantity is signed for ADJUSTMENT
// and strictly positive for every other kind.
type OperationRequest struct {
	Type            OperationType  `json:"operation_type"`
	NomenclatureID  uuid.UUID      `json:"nomenclature_id"`
	Quantity        int            `json:"quantity"`
	FromWarehouseID *uuid.UUID     `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *uuid.UUID     `json:"to_warehouse_id,omitempty"`
	Comment         *string        `json:"comment,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// StockOperation is one immutable row of the operation log.
type StockOperation struct {
	ID              uuid.UUID      `json:"id"`
	Seq             int64          `json:"seq"`
	OrganizationID  OrganizationID `json:"organization_id"`
	Type            OperationType  `json:"operation_type"`
	FromWarehouseID *uuid.UUID     `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *uuid.UUID     `json:"to_warehouse_id,omitempty"`
	NomenclatureID  uuid.UUID      `json:"nomenclature_id"`
	Quantity        int            `json:"quantity"`
	PerformedBy     ActorID        `json:"performed_by"`
	Comment         *string        `json:"comment,omitempty"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
}

// OperationFilter drives OperationLog.List. WarehouseID matches either side
// of an operation.
type OperationFilter struct {
	OrganizationID OrganizationID
	Type           *OperationType
	NomenclatureID *uuid.UUID
	WarehouseID    *uuid.UUID
	Offset         int
	Limit          int
}

const (
	defaultOperationPageSize = 100
	maxOperationPageSize     = 1000
	maxCommentLength         = 500

	// maxQuantity is the largest value an INTEGER quantity column holds.
	maxQuantity = math.MaxInt32
)
