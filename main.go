package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corbyn-jpg/vinoir-orders/internal/app"
	"github.com/corbyn-jpg/vinoir-orders/internal/config"
	"github.com/corbyn-jpg/vinoir-orders/internal/domain/catalog"
	"github.com/corbyn-jpg/vinoir-orders/internal/domain/inventory"
	domorder "github.com/corbyn-jpg/vinoir-orders/internal/domain/order"
	"github.com/corbyn-jpg/vinoir-orders/internal/infrastructure/id"
	"github.com/corbyn-jpg/vinoir-orders/internal/infrastructure/memory"
	mongodb "github.com/corbyn-jpg/vinoir-orders/internal/infrastructure/mongo"
	obsprovider "github.com/corbyn-jpg/vinoir-orders/internal/infrastructure/observability"
	"github.com/corbyn-jpg/vinoir-orders/internal/infrastructure/observability/oteltrace"
	"github.com/corbyn-jpg/vinoir-orders/internal/infrastructure/observability/prometrics"
	"github.com/corbyn-jpg/vinoir-orders/internal/infrastructure/observability/zaplogger"
	"github.com/corbyn-jpg/vinoir-orders/internal/observability"
	"github.com/corbyn-jpg/vinoir-orders/internal/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	baseLogger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)
	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	tel := buildTelemetry(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orders, catalogRepo, ledger, err := buildStorage(ctx, cfg)
	if err != nil {
		systemLogger.Fatal("storage_init_failed", zap.Error(err))
	}

	core := app.New(app.Deps{
		Orders:        orders,
		Catalog:       catalogRepo,
		Ledger:        ledger,
		Numbers:       id.NewOrderNumberGenerator(),
		Tel:           tel,
		NumberRetries: cfg.OrderNumberRetries,
		PlaceTimeout:  cfg.PlaceOrderTimeout,
	})
	core.Start(ctx)
	defer core.Stop(context.Background())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		systemLogger.Info("ops_server_start", zap.String("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("ops_server_error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("ops_server_shutdown_error", zap.Error(err))
	} else {
		systemLogger.Info("ops_server_stopped")
	}
}

func buildTelemetry(cfg config.Config) observability.Observability {
	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)

	reg := prometrics.New("vinoir", "orders")
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: reg.Counter(
			string(observability.MUsecaseRequests),
			"Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MExternalRequests: reg.Counter(
			string(observability.MExternalRequests),
			"Total number of calls to external collaborators.",
			"peer", "endpoint", "outcome",
		),
		observability.MStockReservations: reg.Counter(
			string(observability.MStockReservations),
			"Stock reservation attempts by outcome.",
			"outcome",
		),
		observability.MStockReleased: reg.Counter(
			string(observability.MStockReleased),
			"Stock reservations released during compensation.",
			"reason",
		),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: reg.Histogram(
			string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.",
			nil,
			"use_case",
		),
		observability.MExternalRequestDuration: reg.Histogram(
			string(observability.MExternalRequestDuration),
			"Duration of calls to external collaborators in seconds.",
			nil,
			"peer", "endpoint",
		),
	}

	return obsprovider.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)
}

// buildStorage selects the Mongo adapters when MONGO_URI is set, otherwise
// the in-memory adapters with a small seeded catalog for local runs.
func buildStorage(ctx context.Context, cfg config.Config) (domorder.Repository, catalog.Repository, inventory.Ledger, error) {
	if cfg.MongoURI != "" {
		db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, nil, err
		}
		return mongodb.NewOrderRepository(db),
			mongodb.NewCatalogRepository(db),
			mongodb.NewInventoryLedger(db),
			nil
	}

	store := memory.NewStore()
	store.SeedProduct("midnight-oud-50", "Midnight Oud 50ml", 89_00, 25)
	store.SeedProduct("velvet-rose-100", "Velvet Rose 100ml", 129_00, 12)
	store.SeedProduct("citrus-atlas-30", "Citrus Atlas 30ml", 45_00, 40)
	return memory.NewOrderRepository(),
		memory.NewCatalogRepository(store),
		memory.NewInventoryLedger(store),
		nil
}
