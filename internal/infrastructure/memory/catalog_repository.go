package memory

import (
	"context"

	"github.com/corbyn-jpg/vinoir-orders/internal/domain/catalog"
)

type CatalogRepository struct {
	store *Store
}

func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{store: store}
}

func (r *CatalogRepository) FindByID(ctx context.Context, productID string) (*catalog.Product, error) {
	_ = ctx

	p, ok := r.store.snapshot(productID)
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}
