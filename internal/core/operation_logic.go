package core

import (
	"bytes"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Normalize trims the comment and drops it when blank.
func (r *OperationRequest) Normalize() {
	if r.Comment != nil {
		c := strings.TrimSpace(*r.Comment)
		if c == "" {
			r.Comment = nil
		} else {
			r.Comment = &c
		}
	}
}

// Validate enforces the shape rules of each operation kind. It never touches
// storage; reference checks happen inside the apply transaction.
func (r *OperationRequest) Validate() error {
	if !r.Type.Valid() {
		return validationErrorf("unknown operation type %q", r.Type)
	}
	if r.NomenclatureID == uuid.Nil {
		return validationErrorf("nomenclature_id is required")
	}
	if r.Comment != nil && len([]rune(*r.Comment)) > maxCommentLength {
		return validationErrorf("comment must be at most %d characters", maxCommentLength)
	}

	switch r.Type {
	case OperationAdjustment:
		if r.Quantity == 0 {
			return validationErrorf("adjustment quantity must not be zero")
		}
	default:
		if r.Quantity <= 0 {
			return validationErrorf("%s quantity must be positive, got %d", r.Type, r.Quantity)
		}
	}
	if r.Quantity > maxQuantity || r.Quantity < -maxQuantity {
		return validationErrorf("quantity must be between -%d and %d, got %d", maxQuantity, maxQuantity, r.Quantity)
	}

	from, to := presentID(r.FromWarehouseID), presentID(r.ToWarehouseID)
	switch r.Type {
	case OperationTransfer:
		if from == nil || to == nil {
			return validationErrorf("TRANSFER requires both from_warehouse_id and to_warehouse_id")
		}
		if *from == *to {
			return validationErrorf("TRANSFER source and destination warehouses must differ")
		}
	case OperationSale, OperationDisposal:
		if from == nil {
			return validationErrorf("%s requires from_warehouse_id", r.Type)
		}
	case OperationReceipt, OperationReturn:
		if to == nil {
			return validationErrorf("%s requires to_warehouse_id", r.Type)
		}
	case OperationAdjustment:
		if from == nil && to == nil {
			return validationErrorf("ADJUSTMENT requires from_warehouse_id or to_warehouse_id")
		}
	}
	return nil
}

func presentID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

// movement is a signed quantity change of one balance row.
type movement struct {
	WarehouseID uuid.UUID
	Delta       int
}

// planMovements translates a validated request into balance changes, sorted
// in lock order.
func planMovements(r OperationRequest) []movement {
	var moves []movement
	switch r.Type {
	case OperationTransfer:
		moves = []movement{
			{WarehouseID: *r.FromWarehouseID, Delta: -r.Quantity},
			{WarehouseID: *r.ToWarehouseID, Delta: r.Quantity},
		}
	case OperationSale, OperationDisposal:
		moves = []movement{{WarehouseID: *r.FromWarehouseID, Delta: -r.Quantity}}
	case OperationReceipt, OperationReturn:
		moves = []movement{{WarehouseID: *r.ToWarehouseID, Delta: r.Quantity}}
	case OperationAdjustment:
		moves = []movement{{WarehouseID: *adjustmentTarget(r), Delta: r.Quantity}}
	}
	sortByLockOrder(moves)
	return moves
}

// adjustmentTarget prefers to over from when both are given.
func adjustmentTarget(r OperationRequest) *uuid.UUID {
	if to := presentID(r.ToWarehouseID); to != nil {
		return to
	}
	return presentID(r.FromWarehouseID)
}

// sortByLockOrder orders balance rows by warehouse id. All rows of one
// operation share the nomenclature, so this is the global
// (warehouse_id, nomenclature_id) order every apply locks in.
func sortByLockOrder(moves []movement) {
	slices.SortFunc(moves, func(a, b movement) int {
		return bytes.Compare(a.WarehouseID[:], b.WarehouseID[:])
	})
}

// record builds the log row for a validated request. Sides the kind does not
// use are dropped; ADJUSTMENT keeps both as supplied.
func (r OperationRequest) record(orgID OrganizationID, actorID ActorID) StockOperation {
	op := StockOperation{
		OrganizationID:  orgID,
		Type:            r.Type,
		NomenclatureID:  r.NomenclatureID,
		Quantity:        r.Quantity,
		PerformedBy:     actorID,
		Comment:         r.Comment,
		Metadata:        r.Metadata,
		FromWarehouseID: presentID(r.FromWarehouseID),
		ToWarehouseID:   presentID(r.ToWarehouseID),
	}
	switch r.Type {
	case OperationSale, OperationDisposal:
		op.ToWarehouseID = nil
	case OperationReceipt, OperationReturn:
		op.FromWarehouseID = nil
	}
	if op.Metadata == nil {
		op.Metadata = map[string]any{}
	}
	return op
}

// referencedWarehouses lists the distinct warehouses the log row will point at.
func (op StockOperation) referencedWarehouses() []uuid.UUID {
	var ids []uuid.UUID
	if op.FromWarehouseID != nil {
		ids = append(ids, *op.FromWarehouseID)
	}
	if op.ToWarehouseID != nil {
		ids = append(ids, *op.ToWarehouseID)
	}
	return dedupeIDs(ids)
}
