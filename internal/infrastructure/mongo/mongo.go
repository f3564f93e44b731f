package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collProducts     = "products"
	collReservations = "reservations"
	collOrders       = "orders"

	connectTimeout = 10 * time.Second
)

// Connect opens a client, verifies connectivity, and prepares the indexes
// the adapters rely on.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	db := client.Database(database)
	if err := ensureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return db, nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	// Orders use the order number as _id, so uniqueness there is implicit.
	// The idempotency index is partial: orders placed without a key must not
	// collide with each other.
	_, err := db.Collection(collOrders).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "idempotencyKey", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"idempotencyKey": bson.M{"$gt": ""}}),
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(collReservations).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "productId", Value: 1}},
		Options: options.Index(),
	})
	return err
}
