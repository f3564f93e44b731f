package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corbyn-jpg/vinoir-orders/internal/application"
	domcatalog "github.com/corbyn-jpg/vinoir-orders/internal/domain/catalog"
	dominv "github.com/corbyn-jpg/vinoir-orders/internal/domain/inventory"
	domain "github.com/corbyn-jpg/vinoir-orders/internal/domain/order"
	domoutbox "github.com/corbyn-jpg/vinoir-orders/internal/domain/outbox"
	"github.com/corbyn-jpg/vinoir-orders/internal/observability"
	"github.com/corbyn-jpg/vinoir-orders/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService      = "order-service"
	useCasePlaceOrder = "order.place"
	spanPrefix        = "UC."
	publishPeer       = "outbox"
	publishTimeout    = 300 * time.Millisecond

	defaultNumberRetries = 5
)

var _ application.UseCase[PlaceOrderInput, *PlaceOrderResult] = (*PlaceOrderUseCase)(nil)

// PlaceOrderUseCase is the order placement coordinator: the only component
// that reserves stock and creates order records. A placement attempt walks
// validating -> reserving -> persisting, and any failure past a partial
// reservation runs the compensation phase before the error surfaces, so no
// stock is ever left decremented without a corresponding order.
type PlaceOrderUseCase struct {
	orders    domain.Repository
	catalog   domcatalog.Repository
	ledger    dominv.Ledger
	numbers   OrderNumberGenerator
	publisher domoutbox.Publisher
	tel       observability.Observability

	numberRetries int
	timeout       time.Duration

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
	reserveCount observability.Counter   // stock_reservations_total{outcome}
	releaseCount observability.Counter   // stock_released_total{reason}
}

// NewPlaceOrderUseCase wires the coordinator's collaborators.
func NewPlaceOrderUseCase(
	orders domain.Repository,
	catalogRepo domcatalog.Repository,
	ledger dominv.Ledger,
	numbers OrderNumberGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *PlaceOrderUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()

	return &PlaceOrderUseCase{
		orders:        orders,
		catalog:       catalogRepo,
		ledger:        ledger,
		numbers:       numbers,
		publisher:     publisher,
		tel:           tel,
		numberRetries: defaultNumberRetries,
		log: tel.Logger().With(
			observability.F("service", orderService),
		),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
		reserveCount: metrics.Counter(observability.MStockReservations),
		releaseCount: metrics.Counter(observability.MStockReleased),
	}
}

// WithNumberRetries overrides the bounded order-number collision retry count.
func (uc *PlaceOrderUseCase) WithNumberRetries(n int) *PlaceOrderUseCase {
	if n > 0 {
		uc.numberRetries = n
	}
	return uc
}

// WithTimeout bounds one placement attempt end to end. Compensation still
// runs to completion on a detached context when the deadline fires mid-flight.
func (uc *PlaceOrderUseCase) WithTimeout(d time.Duration) *PlaceOrderUseCase {
	if d > 0 {
		uc.timeout = d
	}
	return uc
}

type PlaceOrderInput struct {
	UserID         string
	Items          []domain.CartLineItem
	Shipping       domain.ShippingInfo
	PaymentRef     string
	Notes          string
	IdempotencyKey string
}

type PlaceOrderResult struct {
	Order    *domain.Order
	Replayed bool
}

// Execute performs one placement attempt.
func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCasePlaceOrder),
		observability.F("user_id", cmd.UserID),
	)

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"PlaceOrder",
		attribute.String("use_case", useCasePlaceOrder),
		attribute.String("order.user_id", cmd.UserID),
		attribute.Int("order.line_items", len(cmd.Items)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var orderNumber string

	defer func() {
		lat := time.Since(start).Seconds()
		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}
		uc.reqCounter.Add(1,
			observability.L("use_case", useCasePlaceOrder),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat,
			observability.L("use_case", useCasePlaceOrder),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if orderNumber != "" {
			fields = append(fields, observability.F("order_number", orderNumber))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if cmd.UserID == "" {
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return nil, domain.ErrUserIDRequired
	}
	if len(cmd.Items) == 0 {
		outcome, statusText = "error", "EMPTY_CART"
		return nil, domain.ErrEmptyCart
	}
	for _, it := range cmd.Items {
		if it.ProductID == "" || it.Quantity < 1 {
			outcome, statusText = "error", "QUANTITY_INVALID"
			return nil, domain.ErrInvalidQuantity
		}
	}
	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	// Idempotent replay: a repeated key returns the already-committed order.
	if cmd.IdempotencyKey != "" {
		existing, lookupErr := uc.orders.FindByIdempotency(ctx, cmd.UserID, cmd.IdempotencyKey)
		switch {
		case lookupErr == nil:
			orderNumber = existing.OrderNumber
			statusText = "IDEMPOTENT_REPLAY"
			span.AddEvent("order.idempotent_replay",
				trace.WithAttributes(attribute.String("order.number", orderNumber)),
			)
			return &PlaceOrderResult{Order: existing, Replayed: true}, nil
		case errors.Is(lookupErr, domain.ErrNotFound):
			// continue
		default:
			outcome, statusText = "error", "IDEMPOTENCY_LOOKUP_FAILED"
			return nil, storageErr(lookupErr)
		}
	}

	lines := mergeLines(cmd.Items)

	// Validating: every product must exist before any stock moves.
	products := make(map[string]*domcatalog.Product, len(lines))
	for _, line := range lines {
		p, ferr := uc.catalog.FindByID(ctx, line.ProductID)
		if errors.Is(ferr, domcatalog.ErrNotFound) {
			outcome, statusText = "error", "PRODUCT_NOT_FOUND"
			return nil, &domain.ProductNotFoundError{ProductID: line.ProductID}
		}
		if ferr != nil {
			outcome, statusText = "error", "CATALOG_LOOKUP_FAILED"
			return nil, storageErr(ferr)
		}
		products[line.ProductID] = p
	}

	// Reserving: probe every line even after a shortage so the caller gets
	// one complete report instead of discovering failures item by item.
	var reservations []*dominv.Reservation
	var shortages []domain.StockShortage
	for _, line := range lines {
		res, rerr := uc.ledger.TryReserve(ctx, line.ProductID, line.Quantity)
		if rerr == nil {
			reservations = append(reservations, res)
			uc.reserveCount.Add(1, observability.L("outcome", "reserved"))
			continue
		}
		var short *dominv.InsufficientStockError
		switch {
		case errors.As(rerr, &short):
			uc.reserveCount.Add(1, observability.L("outcome", "shortage"))
			shortages = append(shortages, domain.StockShortage{
				ProductID: short.ProductID,
				Requested: short.Requested,
				Available: short.Available,
			})
		case errors.Is(rerr, dominv.ErrNotFound):
			// Product vanished between validation and reservation.
			uc.compensate(ctx, logger, reservations, "product_not_found")
			outcome, statusText = "error", "PRODUCT_NOT_FOUND"
			return nil, &domain.ProductNotFoundError{ProductID: line.ProductID}
		default:
			uc.compensate(ctx, logger, reservations, "ledger_unavailable")
			outcome, statusText = "error", "LEDGER_UNAVAILABLE"
			return nil, storageErr(rerr)
		}
	}
	if len(shortages) > 0 {
		uc.compensate(ctx, logger, reservations, "insufficient_stock")
		outcome, statusText = "error", "INSUFFICIENT_STOCK"
		uc.publishFailed(ctx, cmd.UserID, "insufficient_stock")
		return nil, &domain.InsufficientStockError{Shortages: shortages}
	}

	// Persisting: copy the unit price observed during validation so later
	// catalog price changes never alter this order.
	items := make([]domain.LineItem, 0, len(lines))
	for _, line := range lines {
		p := products[line.ProductID]
		items = append(items, domain.LineItem{
			ProductID: line.ProductID,
			Name:      p.Name,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
		})
	}

	var entity *domain.Order
	for attempt := 0; attempt < uc.numberRetries; attempt++ {
		candidate := uc.numbers.NewOrderNumber()
		entity, err = domain.New(candidate, cmd.UserID, items, cmd.Shipping, cmd.PaymentRef, cmd.Notes, cmd.IdempotencyKey)
		if err != nil {
			uc.compensate(ctx, logger, reservations, "construct_failed")
			outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
			return nil, fmt.Errorf("order: construct: %w", err)
		}

		insertErr := uc.orders.Insert(ctx, entity)
		if insertErr == nil {
			orderNumber = candidate
			break
		}
		if errors.Is(insertErr, domain.ErrConflict) {
			if cmd.IdempotencyKey != "" {
				if existing, lookupErr := uc.orders.FindByIdempotency(ctx, cmd.UserID, cmd.IdempotencyKey); lookupErr == nil {
					// A concurrent retry with the same key won; our
					// reservations are surplus and must be returned.
					uc.compensate(ctx, logger, reservations, "idempotent_replay")
					orderNumber = existing.OrderNumber
					statusText = "IDEMPOTENT_REPLAY"
					return &PlaceOrderResult{Order: existing, Replayed: true}, nil
				}
			}
			// Order number collision: regenerate and retry the write only.
			continue
		}
		uc.compensate(ctx, logger, reservations, "storage_error")
		outcome, statusText = "error", "ORDER_INSERT_FAILED"
		uc.publishFailed(ctx, cmd.UserID, "storage_error")
		return nil, storageErr(insertErr)
	}
	if orderNumber == "" {
		uc.compensate(ctx, logger, reservations, "number_exhausted")
		outcome, statusText = "error", "ORDER_NUMBER_EXHAUSTED"
		return nil, fmt.Errorf("%w: order number collisions exhausted after %d attempts", domain.ErrStorage, uc.numberRetries)
	}

	// Committed: reservations now represent consumed stock and are never
	// released. Sales bookkeeping rides on the placed event, best-effort.
	placed := make([]domain.PlacedLine, 0, len(reservations))
	for _, res := range reservations {
		placed = append(placed, domain.PlacedLine{
			ReservationID: res.ID,
			ProductID:     res.ProductID,
			Quantity:      res.Quantity,
		})
	}
	uc.publish(ctx, domain.OrderPlacedEvent{}.EventName(), domain.NewOrderPlacedEvent(entity, placed))

	span.SetAttributes(attribute.String("order.number", orderNumber))
	span.AddEvent("order.placed",
		trace.WithAttributes(
			attribute.String("order.number", orderNumber),
			attribute.Int("order.reservations", len(reservations)),
		),
	)

	return &PlaceOrderResult{Order: entity}, nil
}

// compensate releases every acquired reservation. It runs on a context
// detached from the caller's cancellation: an abandoned request must never
// leave stock decremented with no corresponding order.
func (uc *PlaceOrderUseCase) compensate(ctx context.Context, logger observability.Logger, reservations []*dominv.Reservation, reason string) {
	if len(reservations) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, res := range reservations {
		if rerr := uc.ledger.Release(ctx, res); rerr != nil {
			logger.Error("reservation_release_failed",
				observability.F("reservation_id", res.ID),
				observability.F("product_id", res.ProductID),
				observability.F("quantity", res.Quantity),
				observability.F("error", rerr.Error()),
			)
			continue
		}
		uc.releaseCount.Add(1, observability.L("reason", reason))
	}
}

func (uc *PlaceOrderUseCase) publishFailed(ctx context.Context, userID, reason string) {
	uc.publish(ctx, domain.OrderPlacementFailedEvent{}.EventName(), domain.NewOrderPlacementFailedEvent(userID, reason))
}

func (uc *PlaceOrderUseCase) publish(ctx context.Context, endpoint string, event domoutbox.Event) {
	if uc.publisher == nil || event == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	start := time.Now()

	err := uc.publisher.Publish(pubCtx, event)
	pubOutcome := "success"
	if err != nil {
		pubOutcome = "error"
		logctx.FromOr(ctx, uc.log).Warn("event_publish_failed",
			observability.F("event", endpoint),
			observability.F("error", err.Error()),
		)
	}

	uc.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", pubOutcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", endpoint),
	)
}

// mergeLines folds duplicate product ids so each product is reserved at most
// once per attempt, keeping release commutative per reservation.
func mergeLines(items []domain.CartLineItem) []domain.CartLineItem {
	index := make(map[string]int, len(items))
	out := make([]domain.CartLineItem, 0, len(items))
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

func storageErr(err error) error {
	if errors.Is(err, domain.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}
