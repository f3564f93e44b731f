package order_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	appOrder "github.com/corbyn-jpg/vinoir-orders/internal/application/order"
	dominv "github.com/corbyn-jpg/vinoir-orders/internal/domain/inventory"
	domain "github.com/corbyn-jpg/vinoir-orders/internal/domain/order"
	domoutbox "github.com/corbyn-jpg/vinoir-orders/internal/domain/outbox"
	"github.com/corbyn-jpg/vinoir-orders/internal/infrastructure/id"
	"github.com/corbyn-jpg/vinoir-orders/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// numberSeq hands out a fixed list of order numbers, then unique fallbacks.
type numberSeq struct {
	mu      sync.Mutex
	numbers []string
	next    int
}

func (s *numberSeq) NewOrderNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next < len(s.numbers) {
		n := s.numbers[s.next]
		s.next++
		return n
	}
	s.next++
	return fmt.Sprintf("VNOFALLBACK%d", s.next)
}

// failingOrderRepo simulates an unavailable order store.
type failingOrderRepo struct {
	domain.Repository
	insertErr error
}

func (r *failingOrderRepo) Insert(ctx context.Context, o *domain.Order) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	return r.Repository.Insert(ctx, o)
}

// stalledLedger blocks every reservation until the caller's context expires.
type stalledLedger struct {
	dominv.Ledger
}

func (l *stalledLedger) TryReserve(ctx context.Context, _ string, _ int) (*dominv.Reservation, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %w", dominv.ErrUnavailable, ctx.Err())
}

// flakyLedger injects transient faults per product.
type flakyLedger struct {
	dominv.Ledger
	reserveErr map[string]error
}

func (l *flakyLedger) TryReserve(ctx context.Context, productID string, qty int) (*dominv.Reservation, error) {
	if err, ok := l.reserveErr[productID]; ok {
		return nil, err
	}
	return l.Ledger.TryReserve(ctx, productID, qty)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *capturePublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) placed() []domain.OrderPlacedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.OrderPlacedEvent
	for _, e := range p.events {
		if evt, ok := e.(domain.OrderPlacedEvent); ok {
			out = append(out, evt)
		}
	}
	return out
}

type fixture struct {
	store     *memory.Store
	ledger    *memory.InventoryLedger
	orders    *memory.OrderRepository
	publisher *capturePublisher
	uc        *appOrder.PlaceOrderUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.SeedProduct("oud", "Midnight Oud", 89_00, 25)
	store.SeedProduct("rose", "Velvet Rose", 129_00, 12)
	store.SeedProduct("citrus", "Citrus Atlas", 45_00, 40)

	ledger := memory.NewInventoryLedger(store)
	orders := memory.NewOrderRepository()
	publisher := &capturePublisher{}

	uc := appOrder.NewPlaceOrderUseCase(
		orders,
		memory.NewCatalogRepository(store),
		ledger,
		id.NewOrderNumberGenerator(),
		publisher,
		nil,
	)
	return &fixture{store: store, ledger: ledger, orders: orders, publisher: publisher, uc: uc}
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	stock, ok := f.store.Stock(productID)
	require.True(t, ok)
	return stock
}

func TestPlaceOrderSuccess(t *testing.T) {
	f := newFixture(t)

	result, err := f.uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items: []domain.CartLineItem{
			{ProductID: "oud", Quantity: 2},
			{ProductID: "citrus", Quantity: 1},
		},
		Shipping:   domain.ShippingInfo{FullName: "A. Buyer", City: "Cape Town"},
		PaymentRef: "pay-1",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Order)
	assert.False(t, result.Replayed)

	o := result.Order
	assert.Equal(t, int64(2*89_00+45_00), o.Subtotal)
	assert.Zero(t, o.ShippingFee, "order above free-shipping threshold")
	assert.Equal(t, domain.StatusPending, o.Status)

	assert.Equal(t, 23, f.stock(t, "oud"))
	assert.Equal(t, 39, f.stock(t, "citrus"))

	persisted, err := f.orders.FindByNumber(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, o.TotalAmount, persisted.TotalAmount)

	placed := f.publisher.placed()
	require.Len(t, placed, 1)
	assert.Equal(t, o.OrderNumber, placed[0].OrderNumber)
	assert.Len(t, placed[0].Lines, 2)
	for _, line := range placed[0].Lines {
		assert.NotEmpty(t, line.ReservationID)
	}
}

func TestPlaceOrderPriceImmutableAfterCatalogChange(t *testing.T) {
	f := newFixture(t)

	result, err := f.uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items:  []domain.CartLineItem{{ProductID: "oud", Quantity: 1}},
	})
	require.NoError(t, err)

	f.store.SetPrice("oud", 999_00)

	persisted, err := f.orders.FindByNumber(context.Background(), result.Order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(89_00), persisted.Items[0].UnitPrice)
}

func TestPlaceOrderMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)

	result, err := f.uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items: []domain.CartLineItem{
			{ProductID: "oud", Quantity: 1},
			{ProductID: "oud", Quantity: 2},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Order.Items, 1)
	assert.Equal(t, 3, result.Order.Items[0].Quantity)
	assert.Equal(t, 22, f.stock(t, "oud"))
}

func TestPlaceOrderProductNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items: []domain.CartLineItem{
			{ProductID: "oud", Quantity: 1},
			{ProductID: "deleted", Quantity: 1},
		},
	})

	var notFound *domain.ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "deleted", notFound.ProductID)
	assert.Equal(t, 25, f.stock(t, "oud"), "validation failure makes zero reservations")

	history, err := f.orders.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPlaceOrderShortageNamesOnlyOffendersAndCompensates(t *testing.T) {
	f := newFixture(t)
	f.store.SeedProduct("empty", "Sold Out", 10_00, 0)

	_, err := f.uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items: []domain.CartLineItem{
			{ProductID: "oud", Quantity: 1},
			{ProductID: "empty", Quantity: 1},
		},
	})

	var short *domain.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Shortages, 1, "only the offending item is reported")
	assert.Equal(t, "empty", short.Shortages[0].ProductID)
	assert.Equal(t, 1, short.Shortages[0].Requested)
	assert.Zero(t, short.Shortages[0].Available)

	assert.Equal(t, 25, f.stock(t, "oud"), "acquired reservation was released")
	assert.Empty(t, f.publisher.placed())
}

func TestPlaceOrderReportsAllShortagesAtOnce(t *testing.T) {
	f := newFixture(t)
	f.store.SeedProduct("empty-a", "Sold Out A", 10_00, 0)
	f.store.SeedProduct("empty-b", "Sold Out B", 10_00, 1)

	_, err := f.uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items: []domain.CartLineItem{
			{ProductID: "empty-a", Quantity: 2},
			{ProductID: "oud", Quantity: 1},
			{ProductID: "empty-b", Quantity: 3},
		},
	})

	var short *domain.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Shortages, 2, "one round trip reports every offending item")
	assert.Equal(t, 25, f.stock(t, "oud"))
}

func TestPlaceOrderConcurrentContention(t *testing.T) {
	f := newFixture(t)
	f.store.SeedProduct("scarce", "Last Two", 60_00, 2)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = f.uc.Execute(context.Background(), appOrder.PlaceOrderInput{
				UserID: fmt.Sprintf("u%d", i),
				Items:  []domain.CartLineItem{{ProductID: "scarce", Quantity: 2}},
			})
		}()
	}
	wg.Wait()

	var successes, shortages int
	for _, err := range results {
		var short *domain.InsufficientStockError
		switch {
		case err == nil:
			successes++
		case errors.As(err, &short):
			shortages++
			assert.Equal(t, 2, short.Shortages[0].Requested)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one placement wins the last stock")
	assert.Equal(t, 1, shortages)
	assert.Zero(t, f.stock(t, "scarce"))
}

func TestPlaceOrderConcurrentNeverOversells(t *testing.T) {
	const stock = 5
	const attempts = 20
	f := newFixture(t)
	f.store.SeedProduct("drop", "Limited Drop", 70_00, stock)

	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.uc.Execute(context.Background(), appOrder.PlaceOrderInput{
				UserID: fmt.Sprintf("u%d", i),
				Items:  []domain.CartLineItem{{ProductID: "drop", Quantity: 1}},
			})
			if err == nil && result.Order != nil {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, committed)
	assert.Zero(t, f.stock(t, "drop"))
}

func TestPlaceOrderStorageFailureReleasesEverything(t *testing.T) {
	f := newFixture(t)
	repo := &failingOrderRepo{Repository: f.orders, insertErr: errors.New("connection reset")}
	uc := appOrder.NewPlaceOrderUseCase(
		repo, memory.NewCatalogRepository(f.store), f.ledger,
		id.NewOrderNumberGenerator(), f.publisher, nil,
	)

	_, err := uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items: []domain.CartLineItem{
			{ProductID: "oud", Quantity: 2},
			{ProductID: "citrus", Quantity: 3},
		},
	})

	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, 25, f.stock(t, "oud"))
	assert.Equal(t, 40, f.stock(t, "citrus"))
	assert.Empty(t, f.publisher.placed())

	history, err := f.orders.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, history, "no order record survives a failed persist")
}

func TestPlaceOrderLedgerUnavailableCompensates(t *testing.T) {
	f := newFixture(t)
	ledger := &flakyLedger{
		Ledger:     f.ledger,
		reserveErr: map[string]error{"citrus": fmt.Errorf("%w: timeout", dominv.ErrUnavailable)},
	}
	uc := appOrder.NewPlaceOrderUseCase(
		f.orders, memory.NewCatalogRepository(f.store), ledger,
		id.NewOrderNumberGenerator(), f.publisher, nil,
	)

	_, err := uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items: []domain.CartLineItem{
			{ProductID: "oud", Quantity: 1},
			{ProductID: "citrus", Quantity: 1},
		},
	})

	require.ErrorIs(t, err, domain.ErrStorage, "an unreachable ledger is transient, not a stock answer")
	assert.Equal(t, 25, f.stock(t, "oud"), "reservation acquired before the fault was released")
}

func TestPlaceOrderTimeoutBoundsAttempt(t *testing.T) {
	f := newFixture(t)
	uc := appOrder.NewPlaceOrderUseCase(
		f.orders, memory.NewCatalogRepository(f.store), &stalledLedger{Ledger: f.ledger},
		id.NewOrderNumberGenerator(), f.publisher, nil,
	).WithTimeout(20 * time.Millisecond)

	start := time.Now()
	_, err := uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items:  []domain.CartLineItem{{ProductID: "oud", Quantity: 1}},
	})

	require.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "the deadline cuts the stalled attempt short")
	assert.Equal(t, 25, f.stock(t, "oud"))
}

func TestPlaceOrderRetriesNumberCollision(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orders.Insert(context.Background(), mustOrder(t, "VNOTAKEN", "other")))

	uc := appOrder.NewPlaceOrderUseCase(
		f.orders, memory.NewCatalogRepository(f.store), f.ledger,
		&numberSeq{numbers: []string{"VNOTAKEN", "VNOFRESH"}}, f.publisher, nil,
	)

	result, err := uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items:  []domain.CartLineItem{{ProductID: "oud", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "VNOFRESH", result.Order.OrderNumber)
	assert.Equal(t, 24, f.stock(t, "oud"), "collision retries the write, not the reservation")
}

func TestPlaceOrderNumberExhaustionCompensates(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orders.Insert(context.Background(), mustOrder(t, "VNOTAKEN", "other")))

	uc := appOrder.NewPlaceOrderUseCase(
		f.orders, memory.NewCatalogRepository(f.store), f.ledger,
		&numberSeq{numbers: []string{"VNOTAKEN", "VNOTAKEN", "VNOTAKEN"}}, f.publisher, nil,
	).WithNumberRetries(3)

	_, err := uc.Execute(context.Background(), appOrder.PlaceOrderInput{
		UserID: "u1",
		Items:  []domain.CartLineItem{{ProductID: "oud", Quantity: 1}},
	})

	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, 25, f.stock(t, "oud"))
}

func TestPlaceOrderIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	input := appOrder.PlaceOrderInput{
		UserID:         "u1",
		Items:          []domain.CartLineItem{{ProductID: "oud", Quantity: 2}},
		IdempotencyKey: "checkout-123",
	}

	first, err := f.uc.Execute(context.Background(), input)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := f.uc.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)

	assert.Equal(t, 23, f.stock(t, "oud"), "replay must not reserve stock again")
}

func TestPlaceOrderInputValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		input   appOrder.PlaceOrderInput
		wantErr error
	}{
		{
			"missing user",
			appOrder.PlaceOrderInput{Items: []domain.CartLineItem{{ProductID: "oud", Quantity: 1}}},
			domain.ErrUserIDRequired,
		},
		{
			"empty cart",
			appOrder.PlaceOrderInput{UserID: "u1"},
			domain.ErrEmptyCart,
		},
		{
			"zero quantity",
			appOrder.PlaceOrderInput{UserID: "u1", Items: []domain.CartLineItem{{ProductID: "oud", Quantity: 0}}},
			domain.ErrInvalidQuantity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.Execute(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 25, f.stock(t, "oud"))
}

func mustOrder(t *testing.T, number, userID string) *domain.Order {
	t.Helper()
	o, err := domain.New(number, userID,
		[]domain.LineItem{{ProductID: "x", Name: "X", Quantity: 1, UnitPrice: 10_00}},
		domain.ShippingInfo{}, "", "", "")
	require.NoError(t, err)
	return o
}
