package order

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/corbyn-jpg/vinoir-orders/internal/domain/order"
	"github.com/corbyn-jpg/vinoir-orders/internal/observability"
	"github.com/corbyn-jpg/vinoir-orders/internal/observability/logctx"
)

// Service exposes the read and fulfillment operations around committed
// orders. Status transitions belong to the external fulfillment collaborator;
// this service only validates them.
type Service struct {
	repo domain.Repository
	log  observability.Logger
}

func NewService(repo domain.Repository, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		repo: repo,
		log:  tel.Logger().With(observability.F("service", orderService)),
	}
}

// Get returns one order, restricted to its owner.
func (s *Service) Get(ctx context.Context, userID, orderNumber string) (*domain.Order, error) {
	if orderNumber == "" {
		return nil, domain.ErrOrderNumberRequired
	}
	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if userID != "" && order.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

// ListByUser returns the user's order history, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}
	return s.repo.ListByUser(ctx, userID)
}

// ListAll returns one page of orders across all users, newest first, with
// the total count matching the filter. The fulfillment collaborator's
// overview listing; an empty status means no filter.
func (s *Service) ListAll(ctx context.Context, status domain.Status, page, limit int) ([]*domain.Order, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("order: unknown status %q", status)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	orders, total, err := s.repo.List(ctx, domain.ListFilter{Status: status, Page: page, Limit: limit})
	if err != nil {
		return nil, 0, storageErr(err)
	}
	return orders, total, nil
}

// UpdateStatus applies a fulfillment status transition, optionally attaching
// a tracking number. Invalid jumps are rejected before storage is touched.
func (s *Service) UpdateStatus(ctx context.Context, orderNumber string, next domain.Status, trackingNumber string) (*domain.Order, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("order: unknown status %q", next)
	}

	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if err := order.Transition(next); err != nil {
		return nil, err
	}
	if trackingNumber != "" {
		order.TrackingNumber = trackingNumber
	}

	if err := s.repo.Update(ctx, order); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, storageErr(err)
	}

	logctx.FromOr(ctx, s.log).Info("order_status_updated",
		observability.F("order_number", order.OrderNumber),
		observability.F("status", string(order.Status)),
	)
	return order, nil
}
