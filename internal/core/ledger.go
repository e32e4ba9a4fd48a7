package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

type LedgerService interface {
	// Apply runs one stock operation as a single atomic transition: balances
	// and the log row commit together or not at all.
	Apply(ctx context.Context, req OperationRequest, orgID OrganizationID, actorID ActorID) (*StockOperation, error)
	// UpdateThresholds sets the advisory reserved and min_quantity fields of a balance.
	UpdateThresholds(ctx context.Context, orgID OrganizationID, nomenclatureID, warehouseID uuid.UUID, th Thresholds) (*Balance, error)
}

type LedgerOptions struct {
	Logger  *slog.Logger
	Metrics *Metrics
	// LockTimeout bounds each wait for a balance row lock. Zero keeps the server default.
	LockTimeout time.Duration
	// ApplyTimeout bounds a whole Apply call. Zero means the caller's deadline only.
	ApplyTimeout time.Duration
}

// Ledger is the only writer of balance rows and the only creator of
// stock_operations rows.
type Ledger struct {
	pool         *pgxpool.Pool
	balances     *balanceStore
	log          *operationLog
	logger       *slog.Logger
	metrics      *Metrics
	lockTimeout  time.Duration
	applyTimeout time.Duration
}

func NewLedger(pool *pgxpool.Pool, opts LedgerOptions) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		pool:         pool,
		balances:     &balanceStore{pool: pool},
		log:          &operationLog{pool: pool},
		logger:       logger.With("component", "ledger"),
		metrics:      opts.Metrics,
		lockTimeout:  opts.LockTimeout,
		applyTimeout: opts.ApplyTimeout,
	}
}

func (l *Ledger) Apply(ctx context.Context, req OperationRequest, orgID OrganizationID, actorID ActorID) (*StockOperation, error) {
	start := time.Now()
	if l.applyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.applyTimeout)
		defer cancel()
	}

	op, err := l.apply(ctx, req, orgID, actorID)
	l.metrics.observeApply(req.Type, err, time.Since(start))
	if err != nil {
		l.logRejection(req, orgID, err)
		return nil, err
	}

	l.logger.Info("stock operation applied",
		"operation_id", op.ID,
		"seq", op.Seq,
		"type", op.Type,
		"organization_id", orgID,
		"nomenclature_id", op.NomenclatureID,
		"from_warehouse_id", op.FromWarehouseID,
		"to_warehouse_id", op.ToWarehouseID,
		"quantity", op.Quantity,
		"performed_by", actorID,
		"duration", time.Since(start),
	)
	return op, nil
}

func (l *Ledger) apply(ctx context.Context, req OperationRequest, orgID OrganizationID, actorID ActorID) (*StockOperation, error) {
	// Shape errors never open a transaction.
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, storageError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	op, err := l.ApplyTx(ctx, tx, req, orgID, actorID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("failed to commit stock operation", err)
	}
	return op, nil
}

// ApplyTx applies req inside a transaction owned by the caller. Nothing is
// visible until the caller commits; on error the caller must roll back.
// When a lock timeout is configured it is set with SET LOCAL and stays in
// effect for the rest of tx.
func (l *Ledger) ApplyTx(ctx context.Context, tx pgx.Tx, req OperationRequest, orgID OrganizationID, actorID ActorID) (*StockOperation, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := l.setLockTimeoutTx(ctx, tx); err != nil {
		return nil, err
	}

	if _, err := requireNomenclatureTx(ctx, tx, orgID, req.NomenclatureID); err != nil {
		return nil, err
	}
	record := req.record(orgID, actorID)
	if err := requireWarehousesTx(ctx, tx, orgID, record.referencedWarehouses()); err != nil {
		return nil, err
	}

	// Lock every affected row first, in global order, so two operations
	// touching the same pair of balances can never wait on each other in a cycle.
	moves := planMovements(req)
	locked := make([]*Balance, len(moves))
	for i, mv := range moves {
		b, err := l.balances.GetOrCreateTx(ctx, tx, req.NomenclatureID, mv.WarehouseID)
		if err != nil {
			return nil, err
		}
		locked[i] = b
	}

	for i, mv := range moves {
		next := locked[i].Quantity + mv.Delta
		if next < 0 {
			return nil, &InsufficientStockError{
				NomenclatureID: req.NomenclatureID,
				WarehouseID:    mv.WarehouseID,
				Available:      locked[i].Quantity,
				Required:       -mv.Delta,
			}
		}
		if next > maxQuantity {
			return nil, validationErrorf("balance at warehouse %s would exceed %d (current %d, change %d)",
				mv.WarehouseID, maxQuantity, locked[i].Quantity, mv.Delta)
		}
	}

	for i, mv := range moves {
		if err := l.balances.setQuantityTx(ctx, tx, req.NomenclatureID, mv.WarehouseID, locked[i].Quantity+mv.Delta); err != nil {
			return nil, err
		}
	}

	return l.log.RecordTx(ctx, tx, record)
}

func (l *Ledger) setLockTimeoutTx(ctx context.Context, tx pgx.Tx) error {
	if l.lockTimeout <= 0 {
		return nil
	}
	// SET does not accept bind parameters; the value is an integer we format.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.lockTimeout.Milliseconds())); err != nil {
		return storageError("failed to set lock timeout", err)
	}
	return nil
}

func (l *Ledger) UpdateThresholds(ctx context.Context, orgID OrganizationID, nomenclatureID, warehouseID uuid.UUID, th Thresholds) (*Balance, error) {
	if th.Reserved == nil && th.MinQuantity == nil {
		return nil, validationErrorf("nothing to update: reserved or min_quantity is required")
	}
	if th.Reserved != nil && *th.Reserved < 0 {
		return nil, validationErrorf("reserved must not be negative, got %d", *th.Reserved)
	}
	if th.MinQuantity != nil && *th.MinQuantity < 0 {
		return nil, validationErrorf("min_quantity must not be negative, got %d", *th.MinQuantity)
	}
	if (th.Reserved != nil && *th.Reserved > maxQuantity) || (th.MinQuantity != nil && *th.MinQuantity > maxQuantity) {
		return nil, validationErrorf("thresholds must not exceed %d", maxQuantity)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, storageError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := l.setLockTimeoutTx(ctx, tx); err != nil {
		return nil, err
	}
	if _, err := requireNomenclatureTx(ctx, tx, orgID, nomenclatureID); err != nil {
		return nil, err
	}
	if err := requireWarehousesTx(ctx, tx, orgID, []uuid.UUID{warehouseID}); err != nil {
		return nil, err
	}
	if _, err := l.balances.GetOrCreateTx(ctx, tx, nomenclatureID, warehouseID); err != nil {
		return nil, err
	}
	b, err := l.balances.setThresholdsTx(ctx, tx, nomenclatureID, warehouseID, th)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("failed to commit balance thresholds", err)
	}
	return b, nil
}

func (l *Ledger) logRejection(req OperationRequest, orgID OrganizationID, err error) {
	attrs := []any{
		"type", req.Type,
		"organization_id", orgID,
		"nomenclature_id", req.NomenclatureID,
		"kind", KindName(err),
		"error", err,
	}
	var insufficient *InsufficientStockError
	if errors.As(err, &insufficient) {
		attrs = append(attrs, "warehouse_id", insufficient.WarehouseID,
			"available", insufficient.Available, "required", insufficient.Required)
	}
	if errors.Is(err, ErrPersistence) {
		l.logger.Error("stock operation failed", attrs...)
		return
	}
	l.logger.Info("stock operation rejected", attrs...)
}

// RetryBaseDelay is the first backoff step of RetryApply.
const RetryBaseDelay = 50 * time.Millisecond

// RetryApply calls svc.Apply, retrying with exponential backoff while the
// error is retryable, for at most attempts retries after the first call.
// Applies are atomic, so a retried call cannot double an effect.
func RetryApply(ctx context.Context, svc LedgerService, attempts uint64, req OperationRequest, orgID OrganizationID, actorID ActorID) (*StockOperation, error) {
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(RetryBaseDelay))

	var op *StockOperation
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := svc.Apply(ctx, req, orgID, actorID)
		if err != nil {
			if IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		op = res
		return nil
	})
	if err != nil {
		return nil, storageError("stock operation retry aborted", err)
	}
	return op, nil
}
