package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corbyn-jpg/vinoir-orders/internal/domain/catalog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type productDoc struct {
	ID         string    `bson:"_id"`
	Name       string    `bson:"name"`
	Price      int64     `bson:"price"`
	Stock      int       `bson:"stock"`
	SalesCount int       `bson:"salesCount"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

type CatalogRepository struct {
	coll *mongo.Collection
}

func NewCatalogRepository(db *mongo.Database) *CatalogRepository {
	return &CatalogRepository{coll: db.Collection(collProducts)}
}

func (r *CatalogRepository) FindByID(ctx context.Context, productID string) (*catalog.Product, error) {
	var doc productDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: find product %s: %w", productID, err)
	}
	return &catalog.Product{
		ID:         doc.ID,
		Name:       doc.Name,
		Price:      doc.Price,
		Stock:      doc.Stock,
		SalesCount: doc.SalesCount,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}
