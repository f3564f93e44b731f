package order

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound  = errors.New("order: not found")
	ErrConflict  = errors.New("order: already exists")
	ErrForbidden = errors.New("order: not owned by user")

	ErrOrderNumberRequired = errors.New("order: order number is required")
	ErrUserIDRequired      = errors.New("order: user id is required")
	ErrEmptyCart           = errors.New("order: cart must contain at least one item")
	ErrInvalidQuantity     = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice        = errors.New("order: unit price must be zero or greater")

	// ErrStorage marks transient persistence faults, including order-number
	// generation exhaustion. Callers may retry with backoff; the placement
	// guarantees no reservation is left behind when it is returned.
	ErrStorage = errors.New("order: storage failure")
)

// ProductNotFoundError aborts a placement before any stock is reserved.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("order: product not found: %s", e.ProductID)
}

// StockShortage describes one line item that could not be reserved.
type StockShortage struct {
	ProductID string
	Requested int
	Available int
}

// InsufficientStockError carries every offending line item so the caller can
// correct the whole cart in one round trip.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
	}
	return "order: insufficient stock: " + strings.Join(parts, ", ")
}

// InvalidTransitionError reports a rejected fulfillment status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order: invalid status transition %s -> %s", e.From, e.To)
}
