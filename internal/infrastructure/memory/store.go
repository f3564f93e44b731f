package memory

import (
	"sync"
	"time"

	"github.com/corbyn-jpg/vinoir-orders/internal/domain/catalog"
)

type productRecord struct {
	name       string
	price      int64
	stock      int
	salesCount int
	updatedAt  time.Time
}

type reservationRecord struct {
	productID string
	quantity  int
	released  bool
	committed bool
}

// Store is the shared in-memory product state backing both the catalog
// repository and the inventory ledger, mirroring how the document store
// keeps price and stock on the same product document.
type Store struct {
	mu           sync.RWMutex
	products     map[string]*productRecord
	reservations map[string]*reservationRecord
}

func NewStore() *Store {
	return &Store{
		products:     make(map[string]*productRecord),
		reservations: make(map[string]*reservationRecord),
	}
}

// SeedProduct inserts or replaces a product. Test and local-run fixture hook.
func (s *Store) SeedProduct(id, name string, price int64, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = &productRecord{
		name:      name,
		price:     price,
		stock:     stock,
		updatedAt: time.Now().UTC(),
	}
}

// SetPrice changes a product's catalog price without touching stock.
func (s *Store) SetPrice(id string, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.products[id]; ok {
		rec.price = price
		rec.updatedAt = time.Now().UTC()
	}
}

// Stock reports the current stock level for assertions and fixtures.
func (s *Store) Stock(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.products[id]
	if !ok {
		return 0, false
	}
	return rec.stock, true
}

// SalesCount reports the accumulated sales counter for a product.
func (s *Store) SalesCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.products[id]; ok {
		return rec.salesCount
	}
	return 0
}

func (s *Store) snapshot(id string) (*catalog.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.products[id]
	if !ok {
		return nil, false
	}
	return &catalog.Product{
		ID:         id,
		Name:       rec.name,
		Price:      rec.price,
		Stock:      rec.stock,
		SalesCount: rec.salesCount,
		UpdatedAt:  rec.updatedAt,
	}, true
}
