package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/app"
	"github.com/dejobratic/shopdash/internal/orders/app/commands"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// retryAfterSeconds is advertised when the payment gateway is unavailable.
const retryAfterSeconds = "5"

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes registers the authenticated endpoints. The caller mounts the bearer
// token middleware in front of them.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/status", h.updateStatus)
	})
	r.Post("/verify-transaction", h.verifyTransaction)
}

// orderView adds the fields the dashboard renders directly.
type orderView struct {
	domain.Order
	CustomerName       string               `json:"customer_name"`
	AllowedTransitions []domain.OrderStatus `json:"allowed_transitions"`
}

func newOrderView(order domain.Order) orderView {
	return orderView{
		Order:              order,
		CustomerName:       order.CustomerDisplayName(),
		AllowedTransitions: domain.AllowedTransitions(order.Status),
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, _ := auth.FromContext(ctx)

	scopedKey, err := ports.ScopedIdempotencyKey(session.Subject, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if stored, err := h.service.GetIdempotentResponse(ctx, scopedKey); err != nil {
		h.writeServiceError(w, r, err)
		return
	} else if stored != nil {
		for key, values := range restoreHeaders() {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(stored.StatusCode)
		_, _ = w.Write(stored.Body)
		return
	}

	var payload app.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if payload.ShopID == "" {
		payload.ShopID = session.ShopID
	}

	order, err := h.service.CreateOrder(ctx, session, payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	body, err := json.Marshal(map[string]any{"order": newOrderView(*order)})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	stored := ports.StoredResponse{
		StatusCode: http.StatusCreated,
		Body:       body,
		OrderID:    order.ID,
	}

	if err := h.service.SaveIdempotentResponse(ctx, scopedKey, stored); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	order, err := h.service.GetOrder(r.Context(), session, orderID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": newOrderView(*order)})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())
	query := r.URL.Query()

	shopID := strings.TrimSpace(query.Get("shop_id"))
	if shopID == "" {
		shopID = session.ShopID
	}

	status, err := domain.ParseStatusFilter(query.Get("status"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	filter := domain.Filter{
		Search: query.Get("search"),
		Status: status,
	}
	if filter.Page, err = intParam(query.Get("page"), "page"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if filter.PageSize, err = intParam(query.Get("page_size"), "page_size"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	filter = filter.Normalize()

	seq, err := h.service.ListOrders(r.Context(), session, shopID, filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	views := []orderView{}
	for order, err := range seq {
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		views = append(views, newOrderView(order))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders":    views,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var payload updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), session, orderID, payload.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": newOrderView(*order)})
}

type verifyTransactionRequest struct {
	CommandeID    string `json:"commande_id"`
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) verifyTransaction(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.FromContext(r.Context())

	var payload verifyTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	result, err := h.service.ConfirmPayment(r.Context(), session, payload.CommandeID, payload.TransactionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := resultStatusCode(result.Kind)
	if result.Kind == commands.ResultTransientError {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, status, result)
}

func resultStatusCode(kind commands.ResultKind) int {
	switch kind {
	case commands.ResultSuccess, commands.ResultAlreadyProcessed:
		return http.StatusOK
	case commands.ResultVerificationFailed:
		return http.StatusPaymentRequired
	case commands.ResultTransientError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func intParam(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Message: field + " must be an integer"}
	}
	return value, nil
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *domain.ValidationError
		transitionErr *domain.InvalidTransitionError
		authErr       *domain.AuthorizationError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": validationErr.Message, "field": validationErr.Field})
	case errors.As(err, &transitionErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": transitionErr.Error(),
			"from":  transitionErr.From,
			"to":    transitionErr.To,
		})
	case errors.As(err, &authErr):
		status := http.StatusForbidden
		if authErr.Unauthenticated {
			status = http.StatusUnauthorized
		}
		writeError(w, status, authErr.Error())
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, ports.ErrConflict):
		writeError(w, http.StatusConflict, "order was modified concurrently")
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// restoreHeaders returns the headers set on replayed responses.
func restoreHeaders() http.Header {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Idempotent-Replayed", "true")
	return header
}
