package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/config"
	"github.com/dejobratic/shopdash/internal/database"
	idemmemory "github.com/dejobratic/shopdash/internal/idempotency/memory"
	idempostgres "github.com/dejobratic/shopdash/internal/idempotency/postgres"
	"github.com/dejobratic/shopdash/internal/kafka"
	"github.com/dejobratic/shopdash/internal/orders/adapters"
	httpadapter "github.com/dejobratic/shopdash/internal/orders/adapters/http"
	ordersmemory "github.com/dejobratic/shopdash/internal/orders/adapters/memory"
	orderspostgres "github.com/dejobratic/shopdash/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/shopdash/internal/orders/app"
	"github.com/dejobratic/shopdash/internal/orders/app/commands"
	ordersmetrics "github.com/dejobratic/shopdash/internal/orders/metrics"
	"github.com/dejobratic/shopdash/internal/orders/ports"
	"github.com/dejobratic/shopdash/internal/payments/gateway"
	"github.com/dejobratic/shopdash/internal/telemetry"
)

const meterName = "github.com/dejobratic/shopdash"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(cfg.Telemetry.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		Insecure:       cfg.Telemetry.OTelInsecure,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	meter := tel.Meter(meterName)
	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return err
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return err
	}
	orderMetrics, err := ordersmetrics.NewMetrics(meter)
	if err != nil {
		return err
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return err
	}

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	if stores.pool != nil {
		if err := database.ObservePool(meter, stores.pool); err != nil {
			return err
		}
	}

	events, closeEvents, err := newEventBus(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	policy, err := commands.ParseTransientPolicy(cfg.Payment.TransientPolicy)
	if err != nil {
		return err
	}

	gatewayClient := gateway.NewClient(cfg.Payment.GatewayURL, cfg.Payment.GatewayAPIKey,
		gateway.WithTimeout(cfg.Payment.GatewayTimeout),
	)

	service := ordersapp.NewService(ordersapp.Dependencies{
		Repository:  adapters.NewObservableRepository(stores.orders, dbMetrics),
		Events:      adapters.NewObservableEventBus(events, kafkaMetrics),
		Idempotency: stores.responses,
		Ledger:      adapters.NewObservableLedger(stores.ledger, dbMetrics),
		Gateway:     adapters.NewObservableGateway(gatewayClient, orderMetrics),
	}, ordersapp.PaymentSettings{
		TransientPolicy: policy,
		GatewayTimeout:  cfg.Payment.GatewayTimeout,
	}, logger, orderMetrics)

	verifier := auth.NewVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
	ordersHandler := httpadapter.NewHandler(service, logger)

	router := chi.NewRouter()
	router.Use(withRecovery, withLogging, httpadapter.WithMetrics(httpMetrics))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := stores.ready(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	ordersHandler.CallbackRoutes(router)
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		ordersHandler.Routes(r)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           otelhttp.NewHandler(router, "shopdash-api"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Payment.GatewayTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "port", cfg.HTTP.Port, "store", cfg.Database.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		logger.Info("http server stopped")
		return nil
	})

	return g.Wait()
}

type storeSet struct {
	orders    ports.OrderRepository
	responses ports.IdempotencyStore
	ledger    ports.PaymentLedger
	pool      *pgxpool.Pool
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storeSet, error) {
	if cfg.Database.Backend == config.StoreBackendMemory {
		logger.Warn("using in-memory stores; data is lost on restart")
		return &storeSet{
			orders:    ordersmemory.NewRepository(),
			responses: idemmemory.NewStore(cfg.Payment.ResponseRetention),
			ledger:    idemmemory.NewLedger(cfg.Payment.ClaimTTL),
		}, nil
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		version, err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations completed successfully", "version", version)
	}

	return &storeSet{
		orders:    orderspostgres.NewRepository(pool),
		responses: idempostgres.NewStore(pool, cfg.Payment.ResponseRetention),
		ledger:    idempostgres.NewLedger(pool, cfg.Payment.ClaimTTL),
		pool:      pool,
	}, nil
}

func (s *storeSet) ready(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	if err := database.CheckHealth(ctx, s.pool); err != nil {
		return err
	}
	return database.CheckSchema(ctx, s.pool)
}

func (s *storeSet) close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func newEventBus(cfg *config.Config, logger *slog.Logger) (ports.EventBus, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("no kafka brokers configured; events are logged only")
		return kafka.NewNoopEventBus(), func() {}, nil
	}

	publisher, err := kafka.NewPublisher(cfg.Kafka.Brokers)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return publisher, func() { closeQuietly(logger, "kafka publisher", publisher) }, nil
}

func closeQuietly(logger *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("close failed", "component", name, "error", err)
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		slog.InfoContext(r.Context(), "http request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", time.Since(start))
	})
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(r.Context(), "panic recovered", "error", rec)
				respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
