package app

import (
	"context"
	"time"

	appOrder "github.com/corbyn-jpg/vinoir-orders/internal/application/order"
	"github.com/corbyn-jpg/vinoir-orders/internal/application/sales"
	"github.com/corbyn-jpg/vinoir-orders/internal/domain/catalog"
	"github.com/corbyn-jpg/vinoir-orders/internal/domain/inventory"
	domorder "github.com/corbyn-jpg/vinoir-orders/internal/domain/order"
	"github.com/corbyn-jpg/vinoir-orders/internal/infrastructure/outbox"
	"github.com/corbyn-jpg/vinoir-orders/internal/observability"
)

// Deps are the storage and platform collaborators the application runs on.
type Deps struct {
	Orders        domorder.Repository
	Catalog       catalog.Repository
	Ledger        inventory.Ledger
	Numbers       appOrder.OrderNumberGenerator
	Tel           observability.Observability
	NumberRetries int
	// PlaceTimeout bounds one placement attempt end to end. Zero disables it.
	PlaceTimeout time.Duration
}

// App is the assembled order placement core: the coordinator, the order
// read/fulfillment service, and the bookkeeping pipeline behind them. An
// embedding transport calls PlaceOrder and Orders directly.
type App struct {
	PlaceOrder *appOrder.PlaceOrderUseCase
	Orders     *appOrder.Service

	bus   *outbox.Bus
	sales *sales.Worker
}

func New(deps Deps) *App {
	tel := deps.Tel
	if tel == nil {
		tel = observability.Nop()
	}

	bus := outbox.NewBus(tel.Logger())

	placeOrder := appOrder.NewPlaceOrderUseCase(
		deps.Orders, deps.Catalog, deps.Ledger, deps.Numbers, bus, tel,
	)
	if deps.NumberRetries > 0 {
		placeOrder = placeOrder.WithNumberRetries(deps.NumberRetries)
	}
	if deps.PlaceTimeout > 0 {
		placeOrder = placeOrder.WithTimeout(deps.PlaceTimeout)
	}

	return &App{
		PlaceOrder: placeOrder,
		Orders:     appOrder.NewService(deps.Orders, tel),
		bus:        bus,
		sales:      sales.New(bus, deps.Ledger, tel),
	}
}

// Start brings up the event bus and workers. Idempotent.
func (a *App) Start(ctx context.Context) {
	a.bus.Start(ctx)
	a.sales.Start()
}

// Stop drains the event bus. Idempotent.
func (a *App) Stop(ctx context.Context) {
	a.bus.Stop(ctx)
}
