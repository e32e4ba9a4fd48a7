package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so read helpers can
// run standalone or inside the caller's unit of work.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CatalogService manages the warehouses and nomenclature that stock
// operations and documents reference.
type CatalogService interface {
	CreateWarehouse(ctx context.Context, orgID OrganizationID, in CreateWarehouseInput) (*Warehouse, error)
	GetWarehouse(ctx context.Context, orgID OrganizationID, id uuid.UUID) (*Warehouse, error)
	ListWarehouses(ctx context.Context, orgID OrganizationID) ([]Warehouse, error)
	// DeleteWarehouse soft-deletes; deleted warehouses are invisible to the ledger.
	DeleteWarehouse(ctx context.Context, orgID OrganizationID, id uuid.UUID) error

	CreateNomenclature(ctx context.Context, orgID OrganizationID, in CreateNomenclatureInput) (*Nomenclature, error)
	GetNomenclature(ctx context.Context, orgID OrganizationID, id uuid.UUID) (*Nomenclature, error)
	ListNomenclature(ctx context.Context, orgID OrganizationID) ([]Nomenclature, error)
	DeleteNomenclature(ctx context.Context, orgID OrganizationID, id uuid.UUID) error
}

type CreateWarehouseInput struct {
	Name     string
	Code     string
	Type     WarehouseType
	Address  map[string]any
	Settings map[string]any
}

type CreateNomenclatureInput struct {
	Name       string
	Article    string
	Barcode    *string
	Unit       string
	Category   *string
	Properties map[string]any
}

type catalogService struct {
	pool *pgxpool.Pool
}

func NewCatalogService(pool *pgxpool.Pool) CatalogService {
	return &catalogService{pool: pool}
}

func defaultWarehouseSettings() map[string]any {
	return map[string]any{
		"allowNegativeStock": false,
		"requireApproval":    true,
		"autoPrintLabels":    true,
		"barcodeType":        "EAN13",
	}
}

const warehouseColumns = `id, organization_id, name, code, type, address, settings, is_deleted, created_at, updated_at`

func scanWarehouse(row pgx.Row) (*Warehouse, error) {
	var w Warehouse
	if err := row.Scan(&w.ID, &w.OrganizationID, &w.Name, &w.Code, &w.Type,
		&w.Address, &w.Settings, &w.IsDeleted, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *catalogService) CreateWarehouse(ctx context.Context, orgID OrganizationID, in CreateWarehouseInput) (*Warehouse, error) {
	name := strings.TrimSpace(in.Name)
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if l := len([]rune(name)); l < 3 || l > 100 {
		return nil, validationErrorf("warehouse name must be 3-100 characters")
	}
	if l := len([]rune(code)); l < 3 || l > 50 {
		return nil, validationErrorf("warehouse code must be 3-50 characters")
	}
	if !in.Type.Valid() {
		return nil, validationErrorf("unknown warehouse type %q", in.Type)
	}
	address := in.Address
	if address == nil {
		address = map[string]any{}
	}
	settings := in.Settings
	if settings == nil {
		settings = defaultWarehouseSettings()
	}

	w, err := scanWarehouse(s.pool.QueryRow(ctx, `
		INSERT INTO warehouses (organization_id, name, code, type, address, settings)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+warehouseColumns,
		orgID, name, code, string(in.Type), address, settings))
	if err != nil {
		err = storageError("failed to create warehouse", err)
		if errors.Is(err, ErrConflict) {
			return nil, conflictf("warehouse code %s already exists", code)
		}
		return nil, err
	}
	return w, nil
}

func (s *catalogService) GetWarehouse(ctx context.Context, orgID OrganizationID, id uuid.UUID) (*Warehouse, error) {
	w, err := scanWarehouse(s.pool.QueryRow(ctx, `
		SELECT `+warehouseColumns+`
		FROM warehouses
		WHERE id = $1 AND organization_id = $2 AND NOT is_deleted
	`, id, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundf("warehouse %s not found", id)
	}
	if err != nil {
		return nil, storageError("failed to fetch warehouse", err)
	}
	return w, nil
}

func (s *catalogService) ListWarehouses(ctx context.Context, orgID OrganizationID) ([]Warehouse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+warehouseColumns+`
		FROM warehouses
		WHERE organization_id = $1 AND NOT is_deleted
		ORDER BY code
	`, orgID)
	if err != nil {
		return nil, storageError("failed to query warehouses", err)
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, storageError("failed to scan warehouse", err)
		}
		warehouses = append(warehouses, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("error iterating warehouses", err)
	}
	return warehouses, nil
}

func (s *catalogService) DeleteWarehouse(ctx context.Context, orgID OrganizationID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE warehouses SET is_deleted = true, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND NOT is_deleted
	`, id, orgID)
	if err != nil {
		return storageError("failed to delete warehouse", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundf("warehouse %s not found", id)
	}
	return nil
}

const nomenclatureColumns = `id, organization_id, name, article, barcode, unit, category, properties, is_deleted, created_at, updated_at`

func scanNomenclature(row pgx.Row) (*Nomenclature, error) {
	var n Nomenclature
	if err := row.Scan(&n.ID, &n.OrganizationID, &n.Name, &n.Article, &n.Barcode, &n.Unit,
		&n.Category, &n.Properties, &n.IsDeleted, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *catalogService) CreateNomenclature(ctx context.Context, orgID OrganizationID, in CreateNomenclatureInput) (*Nomenclature, error) {
	name := strings.TrimSpace(in.Name)
	article := strings.ToUpper(strings.TrimSpace(in.Article))
	if name == "" {
		return nil, validationErrorf("nomenclature name is required")
	}
	if article == "" || len([]rune(article)) > 50 {
		return nil, validationErrorf("nomenclature article must be 1-50 characters")
	}
	var barcode *string
	if in.Barcode != nil {
		if b := strings.TrimSpace(*in.Barcode); b != "" {
			barcode = &b
		}
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = "pcs"
	}
	properties := in.Properties
	if properties == nil {
		properties = map[string]any{}
	}

	n, err := scanNomenclature(s.pool.QueryRow(ctx, `
		INSERT INTO nomenclature (organization_id, name, article, barcode, unit, category, properties)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+nomenclatureColumns,
		orgID, name, article, barcode, unit, in.Category, properties))
	if err != nil {
		err = storageError("failed to create nomenclature", err)
		if errors.Is(err, ErrConflict) {
			return nil, conflictf("nomenclature with article %s or the same barcode already exists", article)
		}
		return nil, err
	}
	return n, nil
}

func (s *catalogService) GetNomenclature(ctx context.Context, orgID OrganizationID, id uuid.UUID) (*Nomenclature, error) {
	n, err := scanNomenclature(s.pool.QueryRow(ctx, `
		SELECT `+nomenclatureColumns+`
		FROM nomenclature
		WHERE id = $1 AND organization_id = $2 AND NOT is_deleted
	`, id, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundf("nomenclature %s not found", id)
	}
	if err != nil {
		return nil, storageError("failed to fetch nomenclature", err)
	}
	return n, nil
}

func (s *catalogService) ListNomenclature(ctx context.Context, orgID OrganizationID) ([]Nomenclature, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+nomenclatureColumns+`
		FROM nomenclature
		WHERE organization_id = $1 AND NOT is_deleted
		ORDER BY article
	`, orgID)
	if err != nil {
		return nil, storageError("failed to query nomenclature", err)
	}
	defer rows.Close()

	var items []Nomenclature
	for rows.Next() {
		n, err := scanNomenclature(rows)
		if err != nil {
			return nil, storageError("failed to scan nomenclature", err)
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("error iterating nomenclature", err)
	}
	return items, nil
}

func (s *catalogService) DeleteNomenclature(ctx context.Context, orgID OrganizationID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE nomenclature SET is_deleted = true, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND NOT is_deleted
	`, id, orgID)
	if err != nil {
		return storageError("failed to delete nomenclature", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundf("nomenclature %s not found", id)
	}
	return nil
}

// requireNomenclatureTx resolves a live nomenclature of the organization and
// holds a share lock on it until the caller's transaction ends.
func requireNomenclatureTx(ctx context.Context, q querier, orgID OrganizationID, id uuid.UUID) (*Nomenclature, error) {
	n, err := scanNomenclature(q.QueryRow(ctx, `
		SELECT `+nomenclatureColumns+`
		FROM nomenclature
		WHERE id = $1 AND organization_id = $2 AND NOT is_deleted
		FOR SHARE
	`, id, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundf("nomenclature %s not found or does not belong to the organization", id)
	}
	if err != nil {
		return nil, storageError("failed to resolve nomenclature", err)
	}
	return n, nil
}

// requireWarehousesTx checks that every id is a live warehouse of the
// organization, share-locking the rows. ids must already be deduplicated.
func requireWarehousesTx(ctx context.Context, q querier, orgID OrganizationID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := q.Query(ctx, `
		SELECT id
		FROM warehouses
		WHERE id = ANY($1) AND organization_id = $2 AND NOT is_deleted
		ORDER BY id
		FOR SHARE
	`, ids, orgID)
	if err != nil {
		return storageError("failed to resolve warehouses", err)
	}
	found := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return storageError("failed to scan warehouse id", err)
		}
		found[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return storageError("error iterating warehouses", err)
	}

	for _, id := range ids {
		if !found[id] {
			return notFoundf("warehouse %s not found or does not belong to the organization", id)
		}
	}
	return nil
}

// dedupeIDs keeps the first occurrence of each id, preserving order.
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func describeIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}
