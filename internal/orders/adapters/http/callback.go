package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dejobratic/shopdash/internal/auth"
	"github.com/dejobratic/shopdash/internal/orders/app/commands"
	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

// Callback outcomes shown to the shopper after the gateway redirect.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

type callbackResponse struct {
	Outcome       string `json:"outcome"`
	CommandeID    string `json:"commande_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// CallbackRoutes registers the public pages the payment gateway redirects to.
func (h *Handler) CallbackRoutes(r chi.Router) {
	r.Route("/payment", func(r chi.Router) {
		r.Get("/success", h.paymentSuccess)
		r.Get("/cancel", h.paymentCancel)
		r.Get("/error", h.paymentError)
	})
}

func (h *Handler) paymentSuccess(w http.ResponseWriter, r *http.Request) {
	params := callbackParams(r)
	resp := callbackResponse{
		CommandeID:    strings.TrimSpace(params.Get("commande_id")),
		TransactionID: strings.TrimSpace(params.Get("transaction_id")),
	}
	if resp.CommandeID == "" || resp.TransactionID == "" {
		resp.Outcome = OutcomeError
		resp.Detail = "commande_id and transaction_id are required"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	result, err := h.service.ConfirmPayment(r.Context(), auth.GatewayCallbackSession(), resp.CommandeID, resp.TransactionID)
	if err != nil {
		h.writeCallbackError(w, r, resp, err)
		return
	}

	resp.Detail = result.Detail
	switch result.Kind {
	case commands.ResultSuccess, commands.ResultAlreadyProcessed:
		resp.Outcome = OutcomeSuccess
	case commands.ResultTransientError:
		resp.Outcome = OutcomeError
		resp.Detail = "payment verification is temporarily unavailable"
		w.Header().Set("Retry-After", retryAfterSeconds)
	default:
		resp.Outcome = OutcomeError
	}
	writeJSON(w, resultStatusCode(result.Kind), resp)
}

// writeCallbackError keeps failed confirmations on the callback page shape.
func (h *Handler) writeCallbackError(w http.ResponseWriter, r *http.Request, resp callbackResponse, err error) {
	var (
		validationErr *domain.ValidationError
		authErr       *domain.AuthorizationError
	)

	resp.Outcome = OutcomeError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		resp.Detail = validationErr.Message
	case errors.As(err, &authErr):
		status = http.StatusForbidden
		if authErr.Unauthenticated {
			status = http.StatusUnauthorized
		}
		resp.Detail = "payment could not be confirmed"
	case errors.Is(err, ports.ErrNotFound):
		status = http.StatusNotFound
		resp.Detail = "order not found"
	case errors.Is(err, ports.ErrConflict):
		status = http.StatusConflict
		resp.Detail = "order was modified concurrently"
	default:
		h.logger.ErrorContext(r.Context(), "payment callback failed",
			"error", err,
			"commande_id", resp.CommandeID,
			"transaction_id", resp.TransactionID,
		)
		resp.Detail = "payment could not be confirmed"
	}
	writeJSON(w, status, resp)
}

func (h *Handler) paymentCancel(w http.ResponseWriter, r *http.Request) {
	params := callbackParams(r)
	writeJSON(w, http.StatusOK, callbackResponse{
		Outcome:       OutcomeCancelled,
		CommandeID:    strings.TrimSpace(params.Get("commande_id")),
		TransactionID: strings.TrimSpace(params.Get("transaction_id")),
		Detail:        "payment was cancelled",
	})
}

func (h *Handler) paymentError(w http.ResponseWriter, r *http.Request) {
	params := callbackParams(r)
	detail := strings.TrimSpace(params.Get("message"))
	if detail == "" {
		detail = "payment could not be completed"
	}
	writeJSON(w, http.StatusOK, callbackResponse{
		Outcome:       OutcomeError,
		CommandeID:    strings.TrimSpace(params.Get("commande_id")),
		TransactionID: strings.TrimSpace(params.Get("transaction_id")),
		Detail:        detail,
	})
}

// callbackParams parses the redirect query. Some gateways HTML-escape the
// separators, so "&amp;" is accepted wherever "&" is.
func callbackParams(r *http.Request) url.Values {
	raw := strings.ReplaceAll(r.URL.RawQuery, "&amp;", "&")
	// ParseQuery keeps every pair it could decode
	values, _ := url.ParseQuery(raw)
	return values
}
