package core

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentService manages sklad documents and their line items. Every item
// write locks the parent document and recomputes its verification flag in
// the same transaction.
type DocumentService interface {
	CreateDocument(ctx context.Context, orgID OrganizationID, actorID ActorID, in CreateDocumentInput) (*SkladDocument, error)
	GetDocument(ctx context.Context, orgID OrganizationID, docID uuid.UUID) (*SkladDocument, error)
	// ListDocuments returns live documents, optionally only those that include warehouseID.
	ListDocuments(ctx context.Context, orgID OrganizationID, warehouseID *uuid.UUID) ([]SkladDocument, error)
	UpdateDocument(ctx context.Context, orgID OrganizationID, docID uuid.UUID, in UpdateDocumentInput) (*SkladDocument, error)
	// DeleteDocument soft-deletes the document and all of its items atomically.
	DeleteDocument(ctx context.Context, orgID OrganizationID, docID uuid.UUID) error

	AddItem(ctx context.Context, orgID OrganizationID, docID uuid.UUID, in AddItemInput) (*SkladDocumentItem, error)
	UpdateItem(ctx context.Context, orgID OrganizationID, itemID uuid.UUID, in UpdateItemInput) (*SkladDocumentItem, error)
	DeleteItem(ctx context.Context, orgID OrganizationID, itemID uuid.UUID) error
	GetItem(ctx context.Context, orgID OrganizationID, itemID uuid.UUID) (*SkladDocumentItem, error)
	ListItems(ctx context.Context, orgID OrganizationID, docID uuid.UUID) ([]SkladDocumentItem, error)
}

type documentService struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *Metrics
}

func NewDocumentService(pool *pgxpool.Pool, logger *slog.Logger, metrics *Metrics) DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentService{pool: pool, logger: logger.With("component", "documents"), metrics: metrics}
}

const documentColumns = `id, organization_id, created_by, warehouse_ids, doc_type, number, description,
	address_from, address_to, is_verified, is_deleted, created_at, updated_at`

func scanDocument(row pgx.Row) (*SkladDocument, error) {
	var d SkladDocument
	if err := row.Scan(&d.ID, &d.OrganizationID, &d.CreatedBy, &d.WarehouseIDs, &d.Type, &d.Number, &d.Description,
		&d.AddressFrom, &d.AddressTo, &d.IsVerified, &d.IsDeleted, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

const itemColumns = `id, document_id, nomenclature_id, name, unit, packaging, quantity_documental,
	quantity_actual, is_verified, is_deleted, created_at, updated_at`

func scanItem(row pgx.Row) (*SkladDocumentItem, error) {
	var it SkladDocumentItem
	if err := row.Scan(&it.ID, &it.DocumentID, &it.NomenclatureID, &it.Name, &it.Unit, &it.Packaging,
		&it.QuantityDocumental, &it.QuantityActual, &it.IsVerified, &it.IsDeleted, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// ── Documents ─────────────────────────────────────────────────────────────────

func (s *documentService) CreateDocument(ctx context.Context, orgID OrganizationID, actorID ActorID, in CreateDocumentInput) (*SkladDocument, error) {
	if !in.Type.Valid() {
		return nil, validationErrorf("unknown document type %q", in.Type)
	}
	number := strings.TrimSpace(in.Number)
	if number == "" {
		return nil, validationErrorf("document number is required")
	}
	warehouseIDs := dedupeIDs(in.WarehouseIDs)
	if len(warehouseIDs) == 0 {
		return nil, validationErrorf("document must reference at least one warehouse")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := requireWarehousesTx(ctx, tx, orgID, warehouseIDs); err != nil {
		return nil, err
	}

	var createdBy *ActorID
	if actorID != uuid.Nil {
		createdBy = &actorID
	}
	doc, err := scanDocument(tx.QueryRow(ctx, `
		INSERT INTO sklad_documents (organization_id, created_by, warehouse_ids, doc_type, number, description, address_from, address_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+documentColumns,
		orgID, createdBy, warehouseIDs, string(in.Type), number, trimmedOrNil(in.Description), in.AddressFrom, in.AddressTo))
	if err != nil {
		return nil, storageError("failed to create document", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("failed to commit document", err)
	}
	s.logger.Info("document created", "document_id", doc.ID, "organization_id", orgID,
		"doc_type", doc.Type, "warehouses", describeIDs(doc.WarehouseIDs))
	return doc, nil
}

func (s *documentService) GetDocument(ctx context.Context, orgID OrganizationID, docID uuid.UUID) (*SkladDocument, error) {
	return getDocument(ctx, s.pool, orgID, docID, "")
}

// lockDocumentTx loads a live document FOR UPDATE. Item writers take this
// lock before touching any item so verification recomputes serially.
func lockDocumentTx(ctx context.Context, tx pgx.Tx, orgID OrganizationID, docID uuid.UUID) (*SkladDocument, error) {
	return getDocument(ctx, tx, orgID, docID, "FOR UPDATE")
}

func getDocument(ctx context.Context, q querier, orgID OrganizationID, docID uuid.UUID, lockClause string) (*SkladDocument, error) {
	doc, err := scanDocument(q.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM sklad_documents
		WHERE id = $1 AND organization_id = $2 AND NOT is_deleted
		`+lockClause, docID, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundf("document %s not found", docID)
	}
	if err != nil {
		return nil, storageError("failed to fetch document", err)
	}
	return doc, nil
}

func (s *documentService) ListDocuments(ctx context.Context, orgID OrganizationID, warehouseID *uuid.UUID) ([]SkladDocument, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM sklad_documents
		WHERE organization_id = $1 AND NOT is_deleted`
	args := []any{orgID}
	if warehouseID != nil {
		query += ` AND $2 = ANY(warehouse_ids)`
		args = append(args, *warehouseID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError("failed to query documents", err)
	}
	defer rows.Close()

	var docs []SkladDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, storageError("failed to scan document", err)
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("error iterating documents", err)
	}
	return docs, nil
}

func (s *documentService) UpdateDocument(ctx context.Context, orgID OrganizationID, docID uuid.UUID, in UpdateDocumentInput) (*SkladDocument, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	doc, err := lockDocumentTx(ctx, tx, orgID, docID)
	if err != nil {
		return nil, err
	}

	if in.WarehouseIDs != nil {
		ids := dedupeIDs(in.WarehouseIDs)
		if len(ids) == 0 {
			return nil, validationErrorf("document must reference at least one warehouse")
		}
		if err := requireWarehousesTx(ctx, tx, orgID, ids); err != nil {
			return nil, err
		}
		doc.WarehouseIDs = ids
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return nil, validationErrorf("unknown document type %q", *in.Type)
		}
		doc.Type = *in.Type
	}
	if in.Number != nil {
		number := strings.TrimSpace(*in.Number)
		if number == "" {
			return nil, validationErrorf("document number must not be empty")
		}
		doc.Number = number
	}
	if in.Description != nil {
		doc.Description = trimmedOrNil(in.Description)
	}
	if in.AddressFrom != nil {
		doc.AddressFrom = in.AddressFrom
	}
	if in.AddressTo != nil {
		doc.AddressTo = in.AddressTo
	}

	updated, err := scanDocument(tx.QueryRow(ctx, `
		UPDATE sklad_documents
		SET warehouse_ids = $2, doc_type = $3, number = $4, description = $5,
		    address_from = $6, address_to = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING `+documentColumns,
		doc.ID, doc.WarehouseIDs, string(doc.Type), doc.Number, doc.Description, doc.AddressFrom, doc.AddressTo))
	if err != nil {
		return nil, storageError("failed to update document", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("failed to commit document update", err)
	}
	return updated, nil
}

func (s *documentService) DeleteDocument(ctx context.Context, orgID OrganizationID, docID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE sklad_documents SET is_deleted = true, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND NOT is_deleted
	`, docID, orgID)
	if err != nil {
		return storageError("failed to delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundf("document %s not found", docID)
	}

	items, err := tx.Exec(ctx, `
		UPDATE sklad_document_items SET is_deleted = true, updated_at = NOW()
		WHERE document_id = $1 AND NOT is_deleted
	`, docID)
	if err != nil {
		return storageError("failed to delete document items", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageError("failed to commit document deletion", err)
	}
	s.logger.Info("document deleted", "document_id", docID, "organization_id", orgID, "items", items.RowsAffected())
	return nil
}

// ── Items ─────────────────────────────────────────────────────────────────────

func validatePackaging(p *Packaging) error {
	if p == nil {
		return nil
	}
	if strings.TrimSpace(p.Name) == "" {
		return validationErrorf("packaging name is required")
	}
	if p.BaseUnits <= 0 {
		return validationErrorf("packaging base_units must be positive, got %d", p.BaseUnits)
	}
	return nil
}

func validateItemQuantity(field string, q *int) error {
	if q == nil {
		return nil
	}
	if *q < 0 || *q > maxQuantity {
		return validationErrorf("%s must be between 0 and %d, got %d", field, maxQuantity, *q)
	}
	return nil
}

func (s *documentService) AddItem(ctx context.Context, orgID OrganizationID, docID uuid.UUID, in AddItemInput) (*SkladDocumentItem, error) {
	if err := validateItemQuantity("quantity_documental", &in.QuantityDocumental); err != nil {
		return nil, err
	}
	if err := validateItemQuantity("quantity_actual", in.QuantityActual); err != nil {
		return nil, err
	}
	if err := validatePackaging(in.Packaging); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	doc, err := lockDocumentTx(ctx, tx, orgID, docID)
	if err != nil {
		return nil, err
	}
	n, err := requireNomenclatureTx(ctx, tx, orgID, in.NomenclatureID)
	if err != nil {
		return nil, err
	}
	name, unit := trimmedOrNil(in.Name), trimmedOrNil(in.Unit)
	if name == nil {
		name = &n.Name
	}
	if unit == nil {
		unit = &n.Unit
	}

	item, err := scanItem(tx.QueryRow(ctx, `
		INSERT INTO sklad_document_items (document_id, nomenclature_id, name, unit, packaging,
		                                  quantity_documental, quantity_actual, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+itemColumns,
		doc.ID, n.ID, name, unit, in.Packaging, in.QuantityDocumental, in.QuantityActual, in.QuantityActual != nil))
	if err != nil {
		return nil, storageError("failed to add document item", err)
	}

	becameVerified, err := recomputeVerificationTx(ctx, tx, doc)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("failed to commit document item", err)
	}
	s.afterItemWrite(doc, becameVerified)
	return item, nil
}

// lockItemTx resolves the item's document, locks the document and then the
// item, in that order.
func lockItemTx(ctx context.Context, tx pgx.Tx, orgID OrganizationID, itemID uuid.UUID) (*SkladDocument, *SkladDocumentItem, error) {
	var docID uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT i.document_id
		FROM sklad_document_items i
		JOIN sklad_documents d ON d.id = i.document_id
		WHERE i.id = $1 AND d.organization_id = $2 AND NOT i.is_deleted
	`, itemID, orgID).Scan(&docID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, notFoundf("document item %s not found", itemID)
	}
	if err != nil {
		return nil, nil, storageError("failed to resolve document item", err)
	}

	doc, err := lockDocumentTx(ctx, tx, orgID, docID)
	if err != nil {
		return nil, nil, err
	}

	item, err := scanItem(tx.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM sklad_document_items
		WHERE id = $1 AND document_id = $2 AND NOT is_deleted
		FOR UPDATE
	`, itemID, docID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, notFoundf("document item %s not found", itemID)
	}
	if err != nil {
		return nil, nil, storageError("failed to lock document item", err)
	}
	return doc, item, nil
}

func (s *documentService) UpdateItem(ctx context.Context, orgID OrganizationID, itemID uuid.UUID, in UpdateItemInput) (*SkladDocumentItem, error) {
	if err := validateItemQuantity("quantity_documental", in.QuantityDocumental); err != nil {
		return nil, err
	}
	if err := validateItemQuantity("quantity_actual", in.QuantityActual); err != nil {
		return nil, err
	}
	if err := validatePackaging(in.Packaging); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	doc, item, err := lockItemTx(ctx, tx, orgID, itemID)
	if err != nil {
		return nil, err
	}

	if in.NomenclatureID != nil && *in.NomenclatureID != item.NomenclatureID {
		if _, err := requireNomenclatureTx(ctx, tx, orgID, *in.NomenclatureID); err != nil {
			return nil, err
		}
		item.NomenclatureID = *in.NomenclatureID
	}
	if name := trimmedOrNil(in.Name); name != nil {
		item.Name = name
	}
	if unit := trimmedOrNil(in.Unit); unit != nil {
		item.Unit = unit
	}
	if in.Packaging != nil {
		item.Packaging = in.Packaging
	}
	if in.QuantityDocumental != nil {
		item.QuantityDocumental = *in.QuantityDocumental
	}
	if in.QuantityActual != nil {
		item.QuantityActual = in.QuantityActual
		item.IsVerified = true
	}

	updated, err := scanItem(tx.QueryRow(ctx, `
		UPDATE sklad_document_items
		SET nomenclature_id = $2, name = $3, unit = $4, packaging = $5,
		    quantity_documental = $6, quantity_actual = $7, is_verified = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns,
		item.ID, item.NomenclatureID, item.Name, item.Unit, item.Packaging,
		item.QuantityDocumental, item.QuantityActual, item.IsVerified))
	if err != nil {
		return nil, storageError("failed to update document item", err)
	}

	becameVerified, err := recomputeVerificationTx(ctx, tx, doc)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("failed to commit document item update", err)
	}
	s.afterItemWrite(doc, becameVerified)
	return updated, nil
}

func (s *documentService) DeleteItem(ctx context.Context, orgID OrganizationID, itemID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	doc, item, err := lockItemTx(ctx, tx, orgID, itemID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE sklad_document_items SET is_deleted = true, updated_at = NOW()
		WHERE id = $1
	`, item.ID); err != nil {
		return storageError("failed to delete document item", err)
	}

	becameVerified, err := recomputeVerificationTx(ctx, tx, doc)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storageError("failed to commit document item deletion", err)
	}
	s.afterItemWrite(doc, becameVerified)
	return nil
}

func (s *documentService) GetItem(ctx context.Context, orgID OrganizationID, itemID uuid.UUID) (*SkladDocumentItem, error) {
	item, err := scanItem(s.pool.QueryRow(ctx, `
		SELECT i.id, i.document_id, i.nomenclature_id, i.name, i.unit, i.packaging, i.quantity_documental,
		       i.quantity_actual, i.is_verified, i.is_deleted, i.created_at, i.updated_at
		FROM sklad_document_items i
		JOIN sklad_documents d ON d.id = i.document_id
		WHERE i.id = $1 AND d.organization_id = $2 AND NOT i.is_deleted AND NOT d.is_deleted
	`, itemID, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundf("document item %s not found", itemID)
	}
	if err != nil {
		return nil, storageError("failed to fetch document item", err)
	}
	return item, nil
}

func (s *documentService) ListItems(ctx context.Context, orgID OrganizationID, docID uuid.UUID) ([]SkladDocumentItem, error) {
	if _, err := s.GetDocument(ctx, orgID, docID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM sklad_document_items
		WHERE document_id = $1 AND NOT is_deleted
		ORDER BY created_at, id
	`, docID)
	if err != nil {
		return nil, storageError("failed to query document items", err)
	}
	defer rows.Close()

	var items []SkladDocumentItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, storageError("failed to scan document item", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("error iterating document items", err)
	}
	return items, nil
}

// recomputeVerificationTx re-derives doc.is_verified from every live item.
// The caller must hold the document lock. It reports whether the flag turned
// from false to true.
func recomputeVerificationTx(ctx context.Context, tx pgx.Tx, doc *SkladDocument) (bool, error) {
	var total, verified int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_verified)
		FROM sklad_document_items
		WHERE document_id = $1 AND NOT is_deleted
	`, doc.ID).Scan(&total, &verified)
	if err != nil {
		return false, storageError("failed to count document items", err)
	}

	isVerified := total > 0 && verified == total
	if isVerified == doc.IsVerified {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE sklad_documents SET is_verified = $2, updated_at = NOW() WHERE id = $1
	`, doc.ID, isVerified); err != nil {
		return false, storageError("failed to update document verification", err)
	}
	wasVerified := doc.IsVerified
	doc.IsVerified = isVerified
	return isVerified && !wasVerified, nil
}

func (s *documentService) afterItemWrite(doc *SkladDocument, becameVerified bool) {
	if !becameVerified {
		return
	}
	s.metrics.documentVerified()
	s.logger.Info("document verified", "document_id", doc.ID, "organization_id", doc.OrganizationID)
}
