package order

import (
	"time"
)

// CartLineItem is the ephemeral input supplied by the cart collaborator.
type CartLineItem struct {
	ProductID string
	Quantity  int
}

// LineItem is embedded in an Order and immutable once created. UnitPrice is
// the catalog price in cents at the time of purchase; later catalog price
// changes never alter a committed order's totals.
type LineItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
}

// ShippingInfo is captured verbatim from the checkout form.
type ShippingInfo struct {
	FullName   string
	Street     string
	City       string
	PostalCode string
	Country    string
	Phone      string
}

type Order struct {
	OrderNumber    string
	UserID         string
	Items          []LineItem
	ShippingInfo   ShippingInfo
	PaymentRef     string
	Subtotal       int64
	ShippingFee    int64
	Tax            int64
	TotalAmount    int64
	Notes          string
	IdempotencyKey string
	Status         Status
	TrackingNumber string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Checkout pricing rules, amounts in cents.
const (
	freeShippingThreshold = 100_00
	flatShippingFee       = 15_00
	taxRatePercent        = 10
)

// New assembles an order from already-reserved line items. Totals are derived
// here so a tampered client-supplied total can never reach storage.
func New(orderNumber, userID string, items []LineItem, shipping ShippingInfo, paymentRef, notes, idempotencyKey string) (*Order, error) {
	if orderNumber == "" {
		return nil, ErrOrderNumberRequired
	}
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	var subtotal int64
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice < 0 {
			return nil, ErrInvalidPrice
		}
		subtotal += it.UnitPrice * int64(it.Quantity)
	}

	// Free shipping only above the threshold; a subtotal of exactly $100
	// still pays the flat fee.
	shippingFee := int64(flatShippingFee)
	if subtotal > freeShippingThreshold {
		shippingFee = 0
	}
	tax := subtotal * taxRatePercent / 100

	now := time.Now().UTC()
	return &Order{
		OrderNumber:    orderNumber,
		UserID:         userID,
		Items:          append([]LineItem(nil), items...),
		ShippingInfo:   shipping,
		PaymentRef:     paymentRef,
		Subtotal:       subtotal,
		ShippingFee:    shippingFee,
		Tax:            tax,
		TotalAmount:    subtotal + shippingFee + tax,
		Notes:          notes,
		IdempotencyKey: idempotencyKey,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Transition moves the order to the given fulfillment status. The status
// field is the only mutable part of a committed order.
func (o *Order) Transition(next Status) error {
	if !o.Status.CanTransition(next) {
		return &InvalidTransitionError{From: o.Status, To: next}
	}
	o.Status = next
	o.touch()
	return nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]LineItem(nil), o.Items...)
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
