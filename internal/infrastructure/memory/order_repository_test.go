package memory

import (
	"context"
	"testing"
	"time"

	domain "github.com/corbyn-jpg/vinoir-orders/internal/domain/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder(t *testing.T, number, userID, key string) *domain.Order {
	t.Helper()
	o, err := domain.New(number, userID,
		[]domain.LineItem{{ProductID: "p1", Name: "Test Scent", Quantity: 1, UnitPrice: 40_00}},
		domain.ShippingInfo{}, "pay-1", "", key)
	require.NoError(t, err)
	return o
}

func TestInsertAndFindByNumber(t *testing.T) {
	repo := NewOrderRepository()
	o := testOrder(t, "VNOA", "u1", "")

	require.NoError(t, repo.Insert(context.Background(), o))

	got, err := repo.FindByNumber(context.Background(), "VNOA")
	require.NoError(t, err)
	assert.Equal(t, o.TotalAmount, got.TotalAmount)
	assert.Equal(t, "u1", got.UserID)
}

func TestInsertDuplicateNumberConflicts(t *testing.T) {
	repo := NewOrderRepository()
	require.NoError(t, repo.Insert(context.Background(), testOrder(t, "VNOA", "u1", "")))

	err := repo.Insert(context.Background(), testOrder(t, "VNOA", "u2", ""))

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestInsertDuplicateIdempotencyKeyConflicts(t *testing.T) {
	repo := NewOrderRepository()
	require.NoError(t, repo.Insert(context.Background(), testOrder(t, "VNOA", "u1", "key-1")))

	err := repo.Insert(context.Background(), testOrder(t, "VNOB", "u1", "key-1"))

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestFindByIdempotencyScopedToUser(t *testing.T) {
	repo := NewOrderRepository()
	require.NoError(t, repo.Insert(context.Background(), testOrder(t, "VNOA", "u1", "key-1")))

	got, err := repo.FindByIdempotency(context.Background(), "u1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "VNOA", got.OrderNumber)

	// Same key from a different user must not replay another user's order.
	_, err = repo.FindByIdempotency(context.Background(), "u2", "key-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.FindByIdempotency(context.Background(), "u1", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListByUserNewestFirst(t *testing.T) {
	repo := NewOrderRepository()
	first := testOrder(t, "VNOA", "u1", "")
	first.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Insert(context.Background(), first))
	require.NoError(t, repo.Insert(context.Background(), testOrder(t, "VNOB", "u1", "")))
	require.NoError(t, repo.Insert(context.Background(), testOrder(t, "VNOC", "u2", "")))

	got, err := repo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "VNOB", got[0].OrderNumber)
	assert.Equal(t, "VNOA", got[1].OrderNumber)
}

func TestListPagesAndFilters(t *testing.T) {
	repo := NewOrderRepository()
	base := time.Now()
	for i, spec := range []struct {
		number string
		status domain.Status
	}{
		{"VNOA", domain.StatusPending},
		{"VNOB", domain.StatusProcessing},
		{"VNOC", domain.StatusPending},
		{"VNOD", domain.StatusPending},
	} {
		o := testOrder(t, spec.number, "u1", "")
		o.Status = spec.status
		o.CreatedAt = base.Add(-time.Duration(i) * time.Minute)
		require.NoError(t, repo.Insert(context.Background(), o))
	}

	got, total, err := repo.List(context.Background(), domain.ListFilter{Page: 1, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, got, 3)
	assert.Equal(t, "VNOA", got[0].OrderNumber, "newest first")

	got, total, err = repo.List(context.Background(), domain.ListFilter{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, got, 1)
	assert.Equal(t, "VNOD", got[0].OrderNumber)

	got, total, err = repo.List(context.Background(), domain.ListFilter{Status: domain.StatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, got, 1)
	assert.Equal(t, "VNOB", got[0].OrderNumber)

	// A page past the end is empty but still reports the total.
	got, total, err = repo.List(context.Background(), domain.ListFilter{Page: 9, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Empty(t, got)
}

func TestUpdateUnknownOrder(t *testing.T) {
	repo := NewOrderRepository()

	err := repo.Update(context.Background(), testOrder(t, "VNOA", "u1", ""))

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertStoresClone(t *testing.T) {
	repo := NewOrderRepository()
	o := testOrder(t, "VNOA", "u1", "")
	require.NoError(t, repo.Insert(context.Background(), o))

	o.Items[0].UnitPrice = 1

	got, err := repo.FindByNumber(context.Background(), "VNOA")
	require.NoError(t, err)
	assert.Equal(t, int64(40_00), got.Items[0].UnitPrice)
}
