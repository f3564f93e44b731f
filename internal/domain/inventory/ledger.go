package inventory

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("inventory: product not found")
	ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")
	// ErrUnavailable marks transient ledger faults. Callers retry with backoff
	// instead of treating them as a stock answer.
	ErrUnavailable = errors.New("inventory: ledger unavailable")
)

// InsufficientStockError reports a failed reservation together with the
// quantity that was available at the moment of the atomic check.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Reservation records stock decremented for one line item, pending either
// commit (order persisted) or release (compensation).
type Reservation struct {
	ID        string
	ProductID string
	Quantity  int
}

// Ledger owns authoritative per-product stock counts.
//
// TryReserve must be a single atomic conditional decrement: two concurrent
// reservations can never both succeed past the available stock. Release is
// idempotent per reservation; a second release never double-credits.
// CommitSale is bookkeeping only and must never roll back a reservation.
type Ledger interface {
	TryReserve(ctx context.Context, productID string, quantity int) (*Reservation, error)
	Release(ctx context.Context, res *Reservation) error
	CommitSale(ctx context.Context, res *Reservation) error
}
