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

// BalanceStore owns the balances table. It exposes reads and the locked
// get-or-create used by the Ledger; quantities are only written through the
// Ledger inside its transaction.
type BalanceStore interface {
	// GetOrCreateTx returns the balance row locked FOR UPDATE within tx,
	// inserting a zero row first when the pair has never been stocked.
	GetOrCreateTx(ctx context.Context, tx pgx.Tx, nomenclatureID, warehouseID uuid.UUID) (*Balance, error)
	// CheckAvailable reports whether quantity >= required. A missing balance counts as 0.
	CheckAvailable(ctx context.Context, nomenclatureID, warehouseID uuid.UUID, required int) (bool, error)

	GetBalance(ctx context.Context, orgID OrganizationID, nomenclatureID, warehouseID uuid.UUID) (*Balance, error)
	ListBalances(ctx context.Context, orgID OrganizationID, filter BalanceFilter) ([]Balance, error)
	// StockSummary totals quantity and reserved per nomenclature, optionally
	// restricted to one warehouse.
	StockSummary(ctx context.Context, orgID OrganizationID, warehouseID *uuid.UUID) ([]StockSummaryRow, error)
}

type balanceStore struct {
	pool *pgxpool.Pool
}

func NewBalanceStore(pool *pgxpool.Pool) BalanceStore {
	return &balanceStore{pool: pool}
}

const balanceColumns = `nomenclature_id, warehouse_id, quantity, reserved, min_quantity, created_at, updated_at`

func scanBalance(row pgx.Row) (*Balance, error) {
	var b Balance
	if err := row.Scan(&b.NomenclatureID, &b.WarehouseID, &b.Quantity, &b.Reserved,
		&b.MinQuantity, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (s *balanceStore) GetOrCreateTx(ctx context.Context, tx pgx.Tx, nomenclatureID, warehouseID uuid.UUID) (*Balance, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO balances (nomenclature_id, warehouse_id, quantity, reserved)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (nomenclature_id, warehouse_id) DO NOTHING
	`, nomenclatureID, warehouseID)
	if err != nil {
		return nil, storageError("failed to create balance", err)
	}

	b, err := scanBalance(tx.QueryRow(ctx, `
		SELECT `+balanceColumns+`
		FROM balances
		WHERE nomenclature_id = $1 AND warehouse_id = $2
		FOR UPDATE
	`, nomenclatureID, warehouseID))
	if err != nil {
		return nil, storageError("failed to lock balance", err)
	}
	return b, nil
}

// setQuantityTx writes a new quantity for a row the caller already holds locked.
func (s *balanceStore) setQuantityTx(ctx context.Context, tx pgx.Tx, nomenclatureID, warehouseID uuid.UUID, quantity int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE balances SET quantity = $3, updated_at = NOW()
		WHERE nomenclature_id = $1 AND warehouse_id = $2
	`, nomenclatureID, warehouseID, quantity)
	if err != nil {
		return storageError("failed to update balance", err)
	}
	if tag.RowsAffected() != 1 {
		return &Error{Kind: ErrPersistence, Detail: fmt.Sprintf("balance row for nomenclature %s at warehouse %s vanished", nomenclatureID, warehouseID)}
	}
	return nil
}

func (s *balanceStore) setThresholdsTx(ctx context.Context, tx pgx.Tx, nomenclatureID, warehouseID uuid.UUID, th Thresholds) (*Balance, error) {
	b, err := scanBalance(tx.QueryRow(ctx, `
		UPDATE balances
		SET reserved     = COALESCE($3, reserved),
		    min_quantity = COALESCE($4, min_quantity),
		    updated_at   = NOW()
		WHERE nomenclature_id = $1 AND warehouse_id = $2
		RETURNING `+balanceColumns,
		nomenclatureID, warehouseID, th.Reserved, th.MinQuantity))
	if err != nil {
		return nil, storageError("failed to update balance thresholds", err)
	}
	return b, nil
}

// ── Standalone reads ──────────────────────────────────────────────────────────

func (s *balanceStore) CheckAvailable(ctx context.Context, nomenclatureID, warehouseID uuid.UUID, required int) (bool, error) {
	var quantity int
	err := s.pool.QueryRow(ctx, `
		SELECT quantity FROM balances WHERE nomenclature_id = $1 AND warehouse_id = $2
	`, nomenclatureID, warehouseID).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return required <= 0, nil
	}
	if err != nil {
		return false, storageError("failed to check available stock", err)
	}
	return quantity >= required, nil
}

func (s *balanceStore) GetBalance(ctx context.Context, orgID OrganizationID, nomenclatureID, warehouseID uuid.UUID) (*Balance, error) {
	b, err := scanBalance(s.pool.QueryRow(ctx, `
		SELECT b.nomenclature_id, b.warehouse_id, b.quantity, b.reserved, b.min_quantity, b.created_at, b.updated_at
		FROM balances b
		JOIN warehouses w   ON w.id = b.warehouse_id
		JOIN nomenclature n ON n.id = b.nomenclature_id
		WHERE b.nomenclature_id = $1 AND b.warehouse_id = $2
		  AND w.organization_id = $3 AND NOT w.is_deleted
		  AND n.organization_id = $3
	`, nomenclatureID, warehouseID, orgID))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, storageError("failed to fetch balance", err)
	}

	// A never-stocked pair reads as zero, but only for references the
	// organization owns.
	if err := requireWarehousesTx(ctx, s.pool, orgID, []uuid.UUID{warehouseID}); err != nil {
		return nil, err
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM nomenclature WHERE id = $1 AND organization_id = $2 AND NOT is_deleted)
	`, nomenclatureID, orgID).Scan(&exists); err != nil {
		return nil, storageError("failed to resolve nomenclature", err)
	}
	if !exists {
		return nil, notFoundf("nomenclature %s not found", nomenclatureID)
	}
	return &Balance{NomenclatureID: nomenclatureID, WarehouseID: warehouseID}, nil
}

func (s *balanceStore) ListBalances(ctx context.Context, orgID OrganizationID, filter BalanceFilter) ([]Balance, error) {
	conds := []string{"w.organization_id = $1", "NOT w.is_deleted", "n.organization_id = $1"}
	args := []any{orgID}
	if filter.WarehouseID != nil {
		args = append(args, *filter.WarehouseID)
		conds = append(conds, fmt.Sprintf("b.warehouse_id = $%d", len(args)))
	}
	if filter.NomenclatureID != nil {
		args = append(args, *filter.NomenclatureID)
		conds = append(conds, fmt.Sprintf("b.nomenclature_id = $%d", len(args)))
	}
	if filter.LowStockOnly {
		conds = append(conds, "b.min_quantity IS NOT NULL", "b.quantity < b.min_quantity")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT b.nomenclature_id, b.warehouse_id, b.quantity, b.reserved, b.min_quantity, b.created_at, b.updated_at
		FROM balances b
		JOIN warehouses w   ON w.id = b.warehouse_id
		JOIN nomenclature n ON n.id = b.nomenclature_id
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY w.code, n.article
	`, args...)
	if err != nil {
		return nil, storageError("failed to query balances", err)
	}
	defer rows.Close()

	var balances []Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, storageError("failed to scan balance", err)
		}
		balances = append(balances, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("error iterating balances", err)
	}
	return balances, nil
}

func (s *balanceStore) StockSummary(ctx context.Context, orgID OrganizationID, warehouseID *uuid.UUID) ([]StockSummaryRow, error) {
	args := []any{orgID}
	warehouseCond := ""
	if warehouseID != nil {
		args = append(args, *warehouseID)
		warehouseCond = "AND b.warehouse_id = $2"
	}

	rows, err := s.pool.Query(ctx, `
		SELECT n.id, n.name, n.article, n.unit,
		       COALESCE(SUM(b.quantity), 0), COALESCE(SUM(b.reserved), 0)
		FROM balances b
		JOIN warehouses w   ON w.id = b.warehouse_id
		JOIN nomenclature n ON n.id = b.nomenclature_id
		WHERE w.organization_id = $1 AND NOT w.is_deleted
		  AND n.organization_id = $1 AND NOT n.is_deleted
		  `+warehouseCond+`
		GROUP BY n.id, n.name, n.article, n.unit
		ORDER BY n.article
	`, args...)
	if err != nil {
		return nil, storageError("failed to query stock summary", err)
	}
	defer rows.Close()

	var summary []StockSummaryRow
	for rows.Next() {
		var r StockSummaryRow
		if err := rows.Scan(&r.NomenclatureID, &r.Name, &r.Article, &r.Unit, &r.Quantity, &r.Reserved); err != nil {
			return nil, storageError("failed to scan stock summary row", err)
		}
		summary = append(summary, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("error iterating stock summary", err)
	}
	return summary, nil
}
