package sales

import (
	"context"
	"time"

	dominv "github.com/corbyn-jpg/vinoir-orders/internal/domain/inventory"
	domorder "github.com/corbyn-jpg/vinoir-orders/internal/domain/order"
	domoutbox "github.com/corbyn-jpg/vinoir-orders/internal/domain/outbox"
	"github.com/corbyn-jpg/vinoir-orders/internal/observability"
	"github.com/corbyn-jpg/vinoir-orders/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	workerService = "sales-worker"
	useCaseCommit = "sales.commit"
	spanPrefix    = "Worker."
)

// Worker applies sales bookkeeping after an order commits. It consumes
// OrderPlaced events and marks each consumed reservation as a sale.
// Bookkeeping is telemetry, not an invariant: failures are logged and the
// committed order stands.
type Worker struct {
	subscriber domoutbox.Subscriber
	ledger     dominv.Ledger
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func New(subscriber domoutbox.Subscriber, ledger dominv.Ledger, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &Worker{
		subscriber:   subscriber,
		ledger:       ledger,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.ledger == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderPlacedEvent{}.EventName(), w.handleOrderPlaced)
}

func (w *Worker) handleOrderPlaced(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.OrderPlacedEvent)
	if !ok {
		w.count("ignored")
		return nil
	}

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCaseCommit),
		observability.F("order_number", evt.OrderNumber),
	)

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"CommitSales",
		attribute.String("use_case", useCaseCommit),
		attribute.String("order.number", evt.OrderNumber),
		attribute.Int("order.lines", len(evt.Lines)),
	)
	start := time.Now()
	outcome := "success"
	failed := 0

	defer func() {
		if span != nil {
			if failed > 0 {
				span.SetStatus(codes.Error, "PARTIAL_COMMIT")
			} else {
				span.SetStatus(codes.Ok, "OK")
			}
			span.End()
		}
		w.count(outcome)
		w.durHistogram.Observe(time.Since(start).Seconds(),
			observability.L("use_case", useCaseCommit),
		)
		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("lines", len(evt.Lines)),
			observability.F("failed", failed),
		)
	}()

	for _, line := range evt.Lines {
		res := &dominv.Reservation{
			ID:        line.ReservationID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		}
		if err := w.ledger.CommitSale(ctx, res); err != nil {
			failed++
			logger.Warn("commit_sale_failed",
				observability.F("reservation_id", line.ReservationID),
				observability.F("product_id", line.ProductID),
				observability.F("error", err.Error()),
			)
		}
	}
	if failed > 0 {
		outcome = "partial"
	}
	// Never propagate: a bookkeeping miss must not retrigger or fail the order.
	return nil
}

func (w *Worker) count(outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCaseCommit),
		observability.L("outcome", outcome),
	)
}
