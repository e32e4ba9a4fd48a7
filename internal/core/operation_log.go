package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OperationLog is the append-only journal of applied stock operations.
// Rows are never updated or deleted.
type OperationLog interface {
	// RecordTx appends op within tx and returns it with id, seq and created_at filled.
	RecordTx(ctx context.Context, tx pgx.Tx, op StockOperation) (*StockOperation, error)
	Get(ctx context.Context, orgID OrganizationID, operationID uuid.UUID) (*StockOperation, error)
	// List returns operations newest first; ties on created_at break by seq.
	List(ctx context.Context, filter OperationFilter) ([]StockOperation, error)
}

type operationLog struct {
	pool *pgxpool.Pool
}

func NewOperationLog(pool *pgxpool.Pool) OperationLog {
	return &operationLog{pool: pool}
}

const operationColumns = `id, seq, organization_id, operation_type, from_warehouse_id, to_warehouse_id,
	nomenclature_id, quantity, performed_by, comment, metadata, created_at`

func scanOperation(row pgx.Row) (*StockOperation, error) {
	var op StockOperation
	if err := row.Scan(&op.ID, &op.Seq, &op.OrganizationID, &op.Type, &op.FromWarehouseID, &op.ToWarehouseID,
		&op.NomenclatureID, &op.Quantity, &op.PerformedBy, &op.Comment, &op.Metadata, &op.CreatedAt); err != nil {
		return nil, err
	}
	return &op, nil
}

func (l *operationLog) RecordTx(ctx context.Context, tx pgx.Tx, op StockOperation) (*StockOperation, error) {
	metadata := op.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	saved, err := scanOperation(tx.QueryRow(ctx, `
		INSERT INTO stock_operations (organization_id, operation_type, from_warehouse_id, to_warehouse_id,
		                              nomenclature_id, quantity, performed_by, comment, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+operationColumns,
		op.OrganizationID, string(op.Type), op.FromWarehouseID, op.ToWarehouseID,
		op.NomenclatureID, op.Quantity, op.PerformedBy, op.Comment, metadata))
	if err != nil {
		return nil, storageError("failed to record stock operation", err)
	}
	return saved, nil
}

func (l *operationLog) Get(ctx context.Context, orgID OrganizationID, operationID uuid.UUID) (*StockOperation, error) {
	op, err := scanOperation(l.pool.QueryRow(ctx, `
		SELECT `+operationColumns+`
		FROM stock_operations
		WHERE id = $1 AND organization_id = $2
	`, operationID, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundf("stock operation %s not found", operationID)
	}
	if err != nil {
		return nil, storageError("failed to fetch stock operation", err)
	}
	return op, nil
}

func (l *operationLog) List(ctx context.Context, filter OperationFilter) ([]StockOperation, error) {
	if filter.Offset < 0 {
		return nil, validationErrorf("offset must not be negative, got %d", filter.Offset)
	}
	if filter.Limit < 0 {
		return nil, validationErrorf("limit must not be negative, got %d", filter.Limit)
	}
	limit := filter.Limit
	if limit == 0 {
		limit = defaultOperationPageSize
	}
	if limit > maxOperationPageSize {
		limit = maxOperationPageSize
	}

	conds := []string{"organization_id = $1"}
	args := []any{filter.OrganizationID}
	if filter.Type != nil {
		if !filter.Type.Valid() {
			return nil, validationErrorf("unknown operation type %q", *filter.Type)
		}
		args = append(args, string(*filter.Type))
		conds = append(conds, fmt.Sprintf("operation_type = $%d", len(args)))
	}
	if filter.NomenclatureID != nil {
		args = append(args, *filter.NomenclatureID)
		conds = append(conds, fmt.Sprintf("nomenclature_id = $%d", len(args)))
	}
	if filter.WarehouseID != nil {
		args = append(args, *filter.WarehouseID)
		conds = append(conds, fmt.Sprintf("(from_warehouse_id = $%[1]d OR to_warehouse_id = $%[1]d)", len(args)))
	}
	args = append(args, limit, filter.Offset)

	rows, err := l.pool.Query(ctx, fmt.Sprintf(`
		SELECT `+operationColumns+`
		FROM stock_operations
		WHERE %s
		ORDER BY created_at DESC, seq DESC
		LIMIT $%d OFFSET $%d
	`, strings.Join(conds, " AND "), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, storageError("failed to query stock operations", err)
	}
	defer rows.Close()

	var ops []StockOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, storageError("failed to scan stock operation", err)
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("error iterating stock operations", err)
	}
	return ops, nil
}
