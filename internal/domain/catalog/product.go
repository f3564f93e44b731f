package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("catalog: product not found")

// Product is the read-only view of a catalog entry needed for order placement.
// Prices are in cents to keep arithmetic exact.
type Product struct {
	ID         string
	Name       string
	Price      int64
	Stock      int
	SalesCount int
	UpdatedAt  time.Time
}

// Repository reads current product state. Stock mutation goes exclusively
// through the inventory ledger, never through this port.
type Repository interface {
	FindByID(ctx context.Context, productID string) (*Product, error)
}
