package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corbyn-jpg/vinoir-orders/internal/domain/inventory"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type reservationDoc struct {
	ID        string    `bson:"_id"`
	ProductID string    `bson:"productId"`
	Quantity  int       `bson:"quantity"`
	Released  bool      `bson:"released"`
	Committed bool      `bson:"committed"`
	CreatedAt time.Time `bson:"createdAt"`
}

// InventoryLedger keeps stock on the product document and reservations in
// their own collection. The conditional $inc on TryReserve is the single
// atomic check-and-decrement; the reservation document makes Release
// idempotent across instances and restarts.
type InventoryLedger struct {
	client       *mongo.Client
	products     *mongo.Collection
	reservations *mongo.Collection
}

func NewInventoryLedger(db *mongo.Database) *InventoryLedger {
	return &InventoryLedger{
		client:       db.Client(),
		products:     db.Collection(collProducts),
		reservations: db.Collection(collReservations),
	}
}

func (l *InventoryLedger) TryReserve(ctx context.Context, productID string, quantity int) (*inventory.Reservation, error) {
	if quantity <= 0 {
		return nil, inventory.ErrInvalidQuantity
	}

	res := &inventory.Reservation{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
	}

	err := l.inTransaction(ctx, func(sc mongo.SessionContext) error {
		upd, err := l.products.UpdateOne(sc,
			bson.M{"_id": productID, "stock": bson.M{"$gte": quantity}},
			bson.M{"$inc": bson.M{"stock": -quantity}, "$currentDate": bson.M{"updatedAt": true}},
		)
		if err != nil {
			return err
		}
		if upd.MatchedCount == 0 {
			return l.classifyShortage(sc, productID, quantity)
		}
		_, err = l.reservations.InsertOne(sc, reservationDoc{
			ID:        res.ID,
			ProductID: productID,
			Quantity:  quantity,
			CreatedAt: time.Now().UTC(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (l *InventoryLedger) Release(ctx context.Context, res *inventory.Reservation) error {
	if res == nil {
		return nil
	}

	return l.inTransaction(ctx, func(sc mongo.SessionContext) error {
		upd, err := l.reservations.UpdateOne(sc,
			bson.M{"_id": res.ID, "released": false},
			bson.M{"$set": bson.M{"released": true}},
		)
		if err != nil {
			return err
		}
		if upd.MatchedCount == 0 {
			// Already released or never recorded; no stock credit.
			return nil
		}
		_, err = l.products.UpdateOne(sc,
			bson.M{"_id": res.ProductID},
			bson.M{"$inc": bson.M{"stock": res.Quantity}, "$currentDate": bson.M{"updatedAt": true}},
		)
		return err
	})
}

func (l *InventoryLedger) CommitSale(ctx context.Context, res *inventory.Reservation) error {
	if res == nil {
		return nil
	}

	upd, err := l.reservations.UpdateOne(ctx,
		bson.M{"_id": res.ID, "released": false, "committed": false},
		bson.M{"$set": bson.M{"committed": true}},
	)
	if err != nil {
		return fmt.Errorf("%w: commit sale: %w", inventory.ErrUnavailable, err)
	}
	if upd.MatchedCount == 0 {
		return nil
	}
	_, err = l.products.UpdateOne(ctx,
		bson.M{"_id": res.ProductID},
		bson.M{"$inc": bson.M{"salesCount": res.Quantity}},
	)
	if err != nil {
		return fmt.Errorf("%w: commit sale: %w", inventory.ErrUnavailable, err)
	}
	return nil
}

// classifyShortage distinguishes a missing product from an honest shortage
// after the conditional update matched nothing.
func (l *InventoryLedger) classifyShortage(ctx context.Context, productID string, requested int) error {
	var doc productDoc
	err := l.products.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return inventory.ErrNotFound
	}
	if err != nil {
		return err
	}
	return &inventory.InsufficientStockError{
		ProductID: productID,
		Requested: requested,
		Available: doc.Stock,
	}
}

func (l *InventoryLedger) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := l.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: %w", inventory.ErrUnavailable, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	if err == nil {
		return nil
	}
	// Domain outcomes pass through untouched; anything else is a transient
	// ledger fault the coordinator retries with backoff.
	var shortage *inventory.InsufficientStockError
	if errors.As(err, &shortage) || errors.Is(err, inventory.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", inventory.ErrUnavailable, err)
}
