package order

import "time"

// PlacedLine mirrors one committed line item together with its consumed
// reservation, so downstream bookkeeping can attribute the sale.
type PlacedLine struct {
	ReservationID string
	ProductID     string
	Quantity      int
}

// OrderPlacedEvent is emitted after an order is durably persisted.
type OrderPlacedEvent struct {
	OrderNumber string
	UserID      string
	Lines       []PlacedLine
	TotalAmount int64
	OccurredAt  time.Time
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

func NewOrderPlacedEvent(o *Order, lines []PlacedLine) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Lines:       lines,
		TotalAmount: o.TotalAmount,
		OccurredAt:  time.Now().UTC(),
	}
}

// OrderPlacementFailedEvent is emitted when a placement attempt ends in the
// failed terminal state, after compensation has run.
type OrderPlacementFailedEvent struct {
	UserID     string
	Reason     string
	OccurredAt time.Time
}

func (OrderPlacementFailedEvent) EventName() string { return "order.placement_failed" }

func NewOrderPlacementFailedEvent(userID, reason string) OrderPlacementFailedEvent {
	return OrderPlacementFailedEvent{
		UserID:     userID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
