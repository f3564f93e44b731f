package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/corbyn-jpg/vinoir-orders/internal/domain/order"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type orderLineDoc struct {
	ProductID string `bson:"productId"`
	Name      string `bson:"name"`
	Quantity  int    `bson:"quantity"`
	UnitPrice int64  `bson:"unitPrice"`
}

type shippingDoc struct {
	FullName   string `bson:"fullName"`
	Street     string `bson:"street"`
	City       string `bson:"city"`
	PostalCode string `bson:"postalCode"`
	Country    string `bson:"country"`
	Phone      string `bson:"phone"`
}

type orderDoc struct {
	OrderNumber    string         `bson:"_id"`
	UserID         string         `bson:"userId"`
	Items          []orderLineDoc `bson:"items"`
	Shipping       shippingDoc    `bson:"shipping"`
	PaymentRef     string         `bson:"paymentRef"`
	Subtotal       int64          `bson:"subtotal"`
	ShippingFee    int64          `bson:"shippingFee"`
	Tax            int64          `bson:"tax"`
	TotalAmount    int64          `bson:"totalAmount"`
	Notes          string         `bson:"notes,omitempty"`
	IdempotencyKey string         `bson:"idempotencyKey,omitempty"`
	Status         string         `bson:"status"`
	TrackingNumber string         `bson:"trackingNumber,omitempty"`
	CreatedAt      time.Time      `bson:"createdAt"`
	UpdatedAt      time.Time      `bson:"updatedAt"`
}

type OrderRepository struct {
	coll *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(collOrders)}
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	if order == nil || order.OrderNumber == "" {
		return fmt.Errorf("order repository: order number is required")
	}

	_, err := r.coll.InsertOne(ctx, toOrderDoc(order))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("%w: insert order: %w", domain.ErrStorage, err)
	}
	return nil
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	var doc orderDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": orderNumber}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find order: %w", domain.ErrStorage, err)
	}
	return fromOrderDoc(&doc), nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, userID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	var doc orderDoc
	err := r.coll.FindOne(ctx, bson.M{"userId": userID, "idempotencyKey": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find order by idempotency key: %w", domain.ErrStorage, err)
	}
	return fromOrderDoc(&doc), nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	cur, err := r.coll.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", domain.ErrStorage, err)
	}
	defer cur.Close(ctx)

	var out []*domain.Order
	for cur.Next(ctx) {
		var doc orderDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode order: %w", domain.ErrStorage, err)
		}
		out = append(out, fromOrderDoc(&doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", domain.ErrStorage, err)
	}
	return out, nil
}

func (r *OrderRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Order, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: count orders: %w", domain.ErrStorage, err)
	}

	cur, err := r.coll.Find(ctx, query,
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetSkip(int64((page-1)*limit)).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list orders: %w", domain.ErrStorage, err)
	}
	defer cur.Close(ctx)

	var out []*domain.Order
	for cur.Next(ctx) {
		var doc orderDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("%w: decode order: %w", domain.ErrStorage, err)
		}
		out = append(out, fromOrderDoc(&doc))
	}
	if err := cur.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: list orders: %w", domain.ErrStorage, err)
	}
	return out, total, nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	if order == nil || order.OrderNumber == "" {
		return fmt.Errorf("order repository: order number is required")
	}

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": order.OrderNumber}, toOrderDoc(order))
	if err != nil {
		return fmt.Errorf("%w: update order: %w", domain.ErrStorage, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toOrderDoc(o *domain.Order) *orderDoc {
	items := make([]orderLineDoc, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderLineDoc{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return &orderDoc{
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Items:       items,
		Shipping: shippingDoc{
			FullName:   o.ShippingInfo.FullName,
			Street:     o.ShippingInfo.Street,
			City:       o.ShippingInfo.City,
			PostalCode: o.ShippingInfo.PostalCode,
			Country:    o.ShippingInfo.Country,
			Phone:      o.ShippingInfo.Phone,
		},
		PaymentRef:     o.PaymentRef,
		Subtotal:       o.Subtotal,
		ShippingFee:    o.ShippingFee,
		Tax:            o.Tax,
		TotalAmount:    o.TotalAmount,
		Notes:          o.Notes,
		IdempotencyKey: o.IdempotencyKey,
		Status:         string(o.Status),
		TrackingNumber: o.TrackingNumber,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func fromOrderDoc(d *orderDoc) *domain.Order {
	items := make([]domain.LineItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return &domain.Order{
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		Items:       items,
		ShippingInfo: domain.ShippingInfo{
			FullName:   d.Shipping.FullName,
			Street:     d.Shipping.Street,
			City:       d.Shipping.City,
			PostalCode: d.Shipping.PostalCode,
			Country:    d.Shipping.Country,
			Phone:      d.Shipping.Phone,
		},
		PaymentRef:     d.PaymentRef,
		Subtotal:       d.Subtotal,
		ShippingFee:    d.ShippingFee,
		Tax:            d.Tax,
		TotalAmount:    d.TotalAmount,
		Notes:          d.Notes,
		IdempotencyKey: d.IdempotencyKey,
		Status:         domain.Status(d.Status),
		TrackingNumber: d.TrackingNumber,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
