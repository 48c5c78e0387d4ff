package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	item := InventoryItem{ID: "item-1", PartID: "brake-pad"}

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"validation", NewValidationError("ReserveStock", "quantity must be positive, got %d", 0),
			"ReserveStock: validation error: quantity must be positive, got 0"},
		{"quantity", NewQuantityError(ErrInsufficientStock, "ReserveStock", item, 6, 5),
			"ReserveStock: insufficient stock (part brake-pad, item item-1) requested 6, available 5"},
		{"item only", &Error{Kind: ErrNotFound, Op: "GetItem", ItemID: "item-9"},
			"GetItem: not found (item item-9)"},
		{"conflict", NewConflictError("DeleteItem", "item-1", "%d units are still reserved", 2),
			"DeleteItem: conflict: 2 units are still reserved (item item-1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewQuantityError(ErrOverReturn, "RegisterReturn", InventoryItem{}, 2, 1))
	if !errors.Is(wrapped, ErrOverReturn) {
		t.Error("expected errors.Is to see the kind through wrapping")
	}
	if KindOf(wrapped) != ErrOverReturn {
		t.Errorf("expected ErrOverReturn, got %v", KindOf(wrapped))
	}
	if KindOf(fmt.Errorf("x: %w", ErrNotFound)) != ErrNotFound {
		t.Error("expected bare sentinel to be recognised")
	}
	if KindOf(errors.New("boom")) != nil {
		t.Error("expected nil kind for foreign errors")
	}
}

func TestRetryable(t *testing.T) {
	conflict := &Error{Kind: ErrConcurrencyConflict, Op: "ReserveStock"}
	if !conflict.Retryable() || !IsRetryable(fmt.Errorf("wrap: %w", conflict)) {
		t.Error("expected concurrency conflict to be retryable")
	}
	if NewValidationError("x", "y").Retryable() {
		t.Error("validation errors are not retryable")
	}
}
