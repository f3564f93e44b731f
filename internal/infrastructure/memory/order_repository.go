package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/corbyn-jpg/vinoir-orders/internal/domain/order"
)

type OrderRepository struct {
	mu          sync.RWMutex
	orders      map[string]*domain.Order
	idempotency map[string]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:      make(map[string]*domain.Order),
		idempotency: make(map[string]string),
	}
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.OrderNumber == "" {
		return fmt.Errorf("order repository: order number is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.OrderNumber]; exists {
		return domain.ErrConflict
	}
	if key := idempotencyKey(order.UserID, order.IdempotencyKey); key != "" {
		if existingID, exists := r.idempotency[key]; exists {
			if _, ok := r.orders[existingID]; ok {
				return domain.ErrConflict
			}
		}
	}

	r.orders[order.OrderNumber] = order.Clone()
	if key := idempotencyKey(order.UserID, order.IdempotencyKey); key != "" {
		r.idempotency[key] = order.OrderNumber
	}
	return nil
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderNumber]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, userID, key string) (*domain.Order, error) {
	_ = ctx
	if key == "" {
		return nil, domain.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	orderNumber, ok := r.idempotency[idempotencyKey(userID, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order, found := r.orders[orderNumber]
	if !found {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o.Clone())
		}
	}
	// Newest first, matching the storefront's order history view.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *OrderRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Order, int64, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.Order
	for _, o := range r.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*domain.Order, 0, end-start)
	for _, o := range matched[start:end] {
		out = append(out, o.Clone())
	}
	return out, total, nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.OrderNumber == "" {
		return fmt.Errorf("order repository: order number is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.OrderNumber]; !exists {
		return domain.ErrNotFound
	}
	r.orders[order.OrderNumber] = order.Clone()
	return nil
}

func idempotencyKey(userID, key string) string {
	if key == "" {
		return ""
	}
	return userID + "\x00" + key
}
