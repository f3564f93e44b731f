package order

import "context"

// ListFilter narrows and pages the cross-user order listing. Page is 1-based.
type ListFilter struct {
	Status Status
	Page   int
	Limit  int
}

type Repository interface {
	// Insert persists a new order. ErrConflict signals a taken order number
	// or a reused idempotency key; the unique constraint in storage is the
	// final authority on order-number uniqueness.
	Insert(ctx context.Context, order *Order) error
	FindByNumber(ctx context.Context, orderNumber string) (*Order, error)
	FindByIdempotency(ctx context.Context, userID, key string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	// List returns one page of orders, newest first, plus the total count
	// matching the filter.
	List(ctx context.Context, filter ListFilter) ([]*Order, int64, error)
	Update(ctx context.Context, order *Order) error
}
