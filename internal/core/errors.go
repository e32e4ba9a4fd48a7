package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind sentinels. Every error returned by this package matches exactly one of
// them through errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrPersistence       = errors.New("persistence failure")
)

// Error is a classified failure: Kind is one of the sentinels above, Detail is
// the human-readable reason and Err the optional underlying cause.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// InsufficientStockError reports a movement that would drive a balance below zero.
type InsufficientStockError struct {
	NomenclatureID uuid.UUID
	WarehouseID    uuid.UUID
	Available      int
	Required       int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %d, required %d (nomenclature %s, warehouse %s)",
		e.Available, e.Required, e.NomenclatureID, e.WarehouseID)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

func validationErrorf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Detail: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Detail: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Detail: fmt.Sprintf(format, args...)}
}

// storageError classifies a driver or context error raised while doing
// action. Errors that are already classified pass through untouched.
func storageError(action string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return &Error{Kind: ErrConflict, Detail: action + ": duplicate value", Err: err}
		case pgerrcode.CheckViolation:
			if pgErr.ConstraintName == "balances_quantity_nonnegative" {
				return &Error{Kind: ErrInsufficientStock, Detail: action + ": quantity would become negative", Err: err}
			}
			return &Error{Kind: ErrValidation, Detail: action + ": constraint " + pgErr.ConstraintName, Err: err}
		case pgerrcode.NumericValueOutOfRange:
			return &Error{Kind: ErrValidation, Detail: action + ": value out of range", Err: err}
		case pgerrcode.ForeignKeyViolation:
			return &Error{Kind: ErrNotFound, Detail: action + ": referenced row missing", Err: err}
		case pgerrcode.SerializationFailure:
			return &Error{Kind: ErrConflict, Detail: action + ": concurrent modification", Err: err}
		case pgerrcode.LockNotAvailable, pgerrcode.DeadlockDetected, pgerrcode.QueryCanceled:
			return &Error{Kind: ErrPersistence, Detail: action + ": lock wait aborted", Err: err}
		}
	}
	return &Error{Kind: ErrPersistence, Detail: action, Err: err}
}

// KindOf returns the kind sentinel matched by err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrInsufficientStock, ErrConflict, ErrPersistence} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName is the short label used in metrics and transport error codes.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	case ErrInsufficientStock:
		return "insufficient_stock"
	case ErrConflict:
		return "conflict"
	case ErrPersistence:
		return "persistence"
	case nil:
		if err == nil {
			return "ok"
		}
	}
	return "unknown"
}

// IsRetryable reports whether repeating the whole call may succeed. Applies
// are atomic, so a retry never doubles an effect.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrPersistence) || (errors.Is(err, ErrConflict) && isSerializationFailure(err))
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.SerializationFailure
}
