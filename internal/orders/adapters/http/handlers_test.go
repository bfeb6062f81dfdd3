package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/dejobratic/shopdash/internal/auth"
	ledgermemory "github.com/dejobratic/shopdash/internal/idempotency/memory"
	"github.com/dejobratic/shopdash/internal/kafka"
	httpadapter "github.com/dejobratic/shopdash/internal/orders/adapters/http"
	"github.com/dejobratic/shopdash/internal/orders/adapters/memory"
	"github.com/dejobratic/shopdash/internal/orders/app"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/metrics"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

type stubGateway struct {
	calls  atomic.Int32
	status ports.VerificationStatus
	err    error
}

func (g *stubGateway) Verify(context.Context, string) (ports.VerificationOutcome, error) {
	g.calls.Add(1)
	if g.err != nil {
		return ports.VerificationOutcome{}, g.err
	}
	return ports.VerificationOutcome{Status: g.status}, nil
}

type testServer struct {
	router   http.Handler
	repo     *memory.Repository
	gateway  *stubGateway
	verifier *auth.Verifier
}

// failingUpdates lets reads through but fails every status write.
type failingUpdates struct {
	ports.OrderRepository
}

func (failingUpdates) UpdateStatus(context.Context, string, string, domain.StatusChange) error {
	return errors.New("connection refused")
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, wrap func(ports.OrderRepository) ports.OrderRepository) *testServer {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	ordersMetrics, err := metrics.NewMetrics(meter)
	require.NoError(t, err)
	httpMetrics, err := httpadapter.NewMetrics(meter)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRepository()
	gateway := &stubGateway{status: ports.VerificationSuccess}

	var store ports.OrderRepository = repo
	if wrap != nil {
		store = wrap(repo)
	}

	service := app.NewService(app.Dependencies{
		Repository:  store,
		Events:      kafka.NewNoopEventBus(),
		Idempotency: ledgermemory.NewStore(time.Hour),
		Ledger:      ledgermemory.NewLedger(time.Minute),
		Gateway:     gateway,
	}, app.PaymentSettings{}, logger, ordersMetrics)

	verifier := auth.NewVerifier([]byte("test-secret"), "shopdash")
	handler := httpadapter.NewHandler(service, logger)

	router := chi.NewRouter()
	router.Use(httpadapter.WithMetrics(httpMetrics))
	handler.CallbackRoutes(router)
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		handler.Routes(r)
	})

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	jean, _ := domain.ParseCustomer([]byte(`{"name":"Jean Martin"}`))
	for _, order := range []domain.Order{
		{ID: "o-1", Reference: "A1", ShopID: "shop-1", Amount: 15000, Status: domain.StatusPending, Customer: jean, CreatedAt: now},
		{ID: "o-2", Reference: "B2", ShopID: "shop-1", Amount: 900, Status: domain.StatusCompleted, CreatedAt: now.Add(time.Minute)},
		{ID: "o-9", Reference: "Z9", ShopID: "shop-2", Amount: 100, Status: domain.StatusPending, CreatedAt: now},
	} {
		require.NoError(t, repo.Create(context.Background(), order))
	}

	return &testServer{router: router, repo: repo, gateway: gateway, verifier: verifier}
}

func (s *testServer) token(t *testing.T, session auth.Session) string {
	t.Helper()
	token, err := s.verifier.Issue(session, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, target, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

var (
	staffSession   = auth.Session{Subject: "staff-1", ShopID: "shop-1", Role: auth.RoleStaff}
	serviceSession = auth.Session{Subject: "checkout", Role: auth.RoleService}
)

func TestListOrdersEndpoint(t *testing.T) {
	s := newTestServer(t)
	staff := s.token(t, staffSession)

	t.Run("requires a bearer token", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/orders", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("lists the session's shop", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/orders", staff, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		orders := decode(t, rec)["orders"].([]any)
		require.Len(t, orders, 2)
		first := orders[0].(map[string]any)
		assert.Equal(t, "B2", first["reference"])
		assert.Equal(t, domain.UnknownCustomer, first["customer_name"])
		second := orders[1].(map[string]any)
		assert.Equal(t, "Jean Martin", second["customer_name"])
		assert.Equal(t, []any{"completed", "cancelled"}, second["allowed_transitions"])
	})

	t.Run("composes search and status", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/orders?search=jean&status=pending", staff, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(t, rec)["orders"], 1)

		rec = s.do(t, http.MethodGet, "/orders?search=jean&status=completed", staff, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(t, rec)["orders"], 0)
	})

	t.Run("rejects another shop", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/orders?shop_id=shop-2", staff, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("rejects unknown status filter", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/orders?status=shipped", staff, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "status", decode(t, rec)["field"])
	})

	t.Run("rejects non numeric page", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/orders?page=two", staff, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "page", decode(t, rec)["field"])
	})
}

func TestGetOrderEndpoint(t *testing.T) {
	s := newTestServer(t)
	staff := s.token(t, staffSession)

	rec := s.do(t, http.MethodGet, "/orders/o-1", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode(t, rec)["order"].(map[string]any)
	assert.Equal(t, "A1", order["reference"])

	rec = s.do(t, http.MethodGet, "/orders/o-9", staff, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrderEndpoint(t *testing.T) {
	s := newTestServer(t)
	staff := s.token(t, staffSession)
	body := map[string]any{"amount": 2500, "customer": map[string]any{"email": "ana@example.com"}}

	t.Run("requires an idempotency key", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/orders", staff, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("replays the stored response", func(t *testing.T) {
		first := s.do(t, http.MethodPost, "/orders", staff, body, "Idempotency-Key", "key-1")
		require.Equal(t, http.StatusCreated, first.Code)

		second := s.do(t, http.MethodPost, "/orders", staff, body, "Idempotency-Key", "key-1")
		require.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
		assert.JSONEq(t, first.Body.String(), second.Body.String())

		order := decode(t, first)["order"].(map[string]any)
		assert.Equal(t, "shop-1", order["shop_id"])
		assert.Equal(t, "ana@example.com", order["customer_name"])

		orders, err := s.repo.List(context.Background(), "shop-1", domain.Filter{Search: "ana@"})
		require.NoError(t, err)
		assert.Len(t, orders, 1)
	})
}

func TestUpdateStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	staff := s.token(t, staffSession)

	rec := s.do(t, http.MethodPost, "/orders/o-1/status", staff, map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode(t, rec)["order"].(map[string]any)["status"])

	rec = s.do(t, http.MethodPost, "/orders/o-1/status", staff, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusConflict, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, "cancelled", payload["from"])
	assert.Equal(t, "completed", payload["to"])

	rec = s.do(t, http.MethodPost, "/orders/o-9/status", staff, map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyTransactionEndpoint(t *testing.T) {
	t.Run("success then already processed", func(t *testing.T) {
		s := newTestServer(t)
		token := s.token(t, serviceSession)
		body := map[string]string{"commande_id": "o-1", "transaction_id": "tx-1"}

		rec := s.do(t, http.MethodPost, "/verify-transaction", token, body)
		require.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, "success", payload["result"])
		assert.Equal(t, "completed", payload["status"])

		rec = s.do(t, http.MethodPost, "/verify-transaction", token, body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "already_processed", decode(t, rec)["result"])
		assert.EqualValues(t, 1, s.gateway.calls.Load())
	})

	t.Run("failed verification", func(t *testing.T) {
		s := newTestServer(t)
		s.gateway.status = ports.VerificationFailed

		rec := s.do(t, http.MethodPost, "/verify-transaction", s.token(t, serviceSession), map[string]string{"commande_id": "o-1", "transaction_id": "tx-1"})

		require.Equal(t, http.StatusPaymentRequired, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, "verification_failed", payload["result"])
		assert.Equal(t, "pending", payload["status"])
	})

	t.Run("transient gateway error", func(t *testing.T) {
		s := newTestServer(t)
		s.gateway.err = ports.ErrGatewayTimeout

		rec := s.do(t, http.MethodPost, "/verify-transaction", s.token(t, serviceSession), map[string]string{"commande_id": "o-1", "transaction_id": "tx-1"})

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Equal(t, "transient_error", decode(t, rec)["result"])
	})

	t.Run("missing transaction id", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPost, "/verify-transaction", s.token(t, serviceSession), map[string]string{"commande_id": "o-1"})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "transaction_id", decode(t, rec)["field"])
	})

	t.Run("foreign shop order is not found for staff", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPost, "/verify-transaction", s.token(t, staffSession), map[string]string{"commande_id": "o-9", "transaction_id": "tx-1"})

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "order not found", decode(t, rec)["error"])
		assert.Zero(t, s.gateway.calls.Load())
	})
}

func TestPaymentCallbackPages(t *testing.T) {
	t.Run("success tolerates escaped separators", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodGet, "/payment/success?commande_id=o-1&amp;transaction_id=tx-7", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, httpadapter.OutcomeSuccess, payload["outcome"])
		assert.Equal(t, "tx-7", payload["transaction_id"])

		order, err := s.repo.GetByID(context.Background(), "o-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, order.Status)
	})

	t.Run("success without parameters", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodGet, "/payment/success?commande_id=o-1", "", nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, httpadapter.OutcomeError, decode(t, rec)["outcome"])
		assert.Zero(t, s.gateway.calls.Load())
	})

	t.Run("success for an unknown order", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodGet, "/payment/success?commande_id=nope&transaction_id=tx-1", "", nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, httpadapter.OutcomeError, payload["outcome"])
		assert.Equal(t, "order not found", payload["detail"])
		assert.Equal(t, "nope", payload["commande_id"])
		assert.NotContains(t, payload, "error")
		assert.Zero(t, s.gateway.calls.Load())
	})

	t.Run("success when the order cannot be saved", func(t *testing.T) {
		s := newTestServerWith(t, func(repo ports.OrderRepository) ports.OrderRepository {
			return failingUpdates{OrderRepository: repo}
		})

		rec := s.do(t, http.MethodGet, "/payment/success?commande_id=o-1&transaction_id=tx-1", "", nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, httpadapter.OutcomeError, payload["outcome"])
		assert.Equal(t, "payment could not be confirmed", payload["detail"])
		assert.NotContains(t, payload, "error")
	})

	t.Run("success for a transaction that settled another order", func(t *testing.T) {
		s := newTestServer(t)
		seed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		require.NoError(t, s.repo.Create(context.Background(), domain.Order{
			ID: "o-3", Reference: "C3", ShopID: "shop-1", Amount: 15000, Status: domain.StatusPending, CreatedAt: seed,
		}))

		rec := s.do(t, http.MethodGet, "/payment/success?commande_id=o-1&transaction_id=tx-7", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		s.gateway.status = ports.VerificationAlreadyProcessed
		rec = s.do(t, http.MethodGet, "/payment/success?commande_id=o-3&transaction_id=tx-7", "", nil)

		require.Equal(t, http.StatusPaymentRequired, rec.Code)
		assert.Equal(t, httpadapter.OutcomeError, decode(t, rec)["outcome"])

		order, err := s.repo.GetByID(context.Background(), "o-3")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, order.Status)
	})

	t.Run("cancel does not touch the order", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodGet, "/payment/cancel?commande_id=o-1&amp;transaction_id=tx-7", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, httpadapter.OutcomeCancelled, decode(t, rec)["outcome"])
		assert.Zero(t, s.gateway.calls.Load())

		order, err := s.repo.GetByID(context.Background(), "o-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, order.Status)
	})

	t.Run("error page", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodGet, "/payment/error?message=card+expired", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, httpadapter.OutcomeError, payload["outcome"])
		assert.Equal(t, "card expired", payload["detail"])
	})
}
