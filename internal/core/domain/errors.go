package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is against an *Error or a wrapped one.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOverConsumption     = errors.New("consumption exceeds reserved quantity")
	ErrOverCancellation    = errors.New("cancellation exceeds reserved quantity")
	ErrOverReturn          = errors.New("return exceeds consumed quantity")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrConflict            = errors.New("conflict")
	ErrDuplicatePart       = errors.New("duplicate part")
)

// Error carries the context a caller needs to retry or correct a request.
type Error struct {
	Kind      error
	Op        string
	ItemID    string
	PartID    string
	Requested int
	Available int
	Msg       string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.PartID != "" {
		fmt.Fprintf(&b, " (part %s", e.PartID)
		if e.ItemID != "" {
			fmt.Fprintf(&b, ", item %s", e.ItemID)
		}
		b.WriteString(")")
	} else if e.ItemID != "" {
		fmt.Fprintf(&b, " (item %s)", e.ItemID)
	}
	if e.Requested > 0 {
		fmt.Fprintf(&b, " requested %d, available %d", e.Requested, e.Available)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

// Retryable is true only for lost optimistic-lock races.
func (e *Error) Retryable() bool {
	return errors.Is(e.Kind, ErrConcurrencyConflict)
}

func NewValidationError(op, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(op, format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NewConflictError(op, itemID, format string, args ...any) *Error {
	return &Error{Kind: ErrConflict, Op: op, ItemID: itemID, Msg: fmt.Sprintf(format, args...)}
}

// NewQuantityError builds one of the quantity-violation kinds.
func NewQuantityError(kind error, op string, item InventoryItem, requested, available int) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		ItemID:    item.ID,
		PartID:    item.PartID,
		Requested: requested,
		Available: available,
	}
}

// IsRetryable reports whether err is a concurrency conflict anywhere in its chain.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// KindOf returns the sentinel kind of err, or nil when err is not a domain error.
func KindOf(err error) error {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	for _, k := range []error{
		ErrValidation, ErrNotFound, ErrInsufficientStock, ErrOverConsumption,
		ErrOverCancellation, ErrOverReturn, ErrConcurrencyConflict, ErrConflict, ErrDuplicatePart,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
