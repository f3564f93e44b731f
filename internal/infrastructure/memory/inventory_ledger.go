package memory

import (
	"context"

	"github.com/corbyn-jpg/vinoir-orders/internal/domain/inventory"
	"github.com/google/uuid"
)

// InventoryLedger serializes stock mutations behind the store mutex, giving
// the same check-and-decrement atomicity the document store provides through
// a single conditional update.
type InventoryLedger struct {
	store *Store
}

func NewInventoryLedger(store *Store) *InventoryLedger {
	return &InventoryLedger{store: store}
}

func (l *InventoryLedger) TryReserve(ctx context.Context, productID string, quantity int) (*inventory.Reservation, error) {
	_ = ctx
	if quantity <= 0 {
		return nil, inventory.ErrInvalidQuantity
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	rec, ok := l.store.products[productID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	if rec.stock < quantity {
		return nil, &inventory.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: rec.stock,
		}
	}

	rec.stock -= quantity
	res := &inventory.Reservation{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
	}
	l.store.reservations[res.ID] = &reservationRecord{
		productID: productID,
		quantity:  quantity,
	}
	return res, nil
}

func (l *InventoryLedger) Release(ctx context.Context, res *inventory.Reservation) error {
	_ = ctx
	if res == nil {
		return nil
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	rec, ok := l.store.reservations[res.ID]
	if !ok || rec.released {
		// Unknown or already-released reservations are a no-op so retried
		// compensation never double-credits stock.
		return nil
	}
	rec.released = true
	if p, ok := l.store.products[rec.productID]; ok {
		p.stock += rec.quantity
	}
	return nil
}

func (l *InventoryLedger) CommitSale(ctx context.Context, res *inventory.Reservation) error {
	_ = ctx
	if res == nil {
		return nil
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	rec, ok := l.store.reservations[res.ID]
	if !ok || rec.released || rec.committed {
		return nil
	}
	rec.committed = true
	if p, ok := l.store.products[rec.productID]; ok {
		p.salesCount += rec.quantity
	}
	return nil
}
