package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dejobratic/shopdash/internal/orders/ports"
)

const (
	defaultTimeout = 10 * time.Second
	verifyPath     = "/v1/transactions/verify"
	maxBodyBytes   = 1 << 20
)

// Client calls the payment gateway's transaction verification endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout bounds each verify call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient constructs a gateway client rooted at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: defaultTimeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type verifyRequest struct {
	TransactionID string `json:"transaction_id"`
}

type verifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Verify asks the gateway for the outcome of transactionID. A reported
// failure is an outcome, not an error; transport problems are returned as
// ports.ErrGatewayNetwork or ports.ErrGatewayTimeout.
func (c *Client) Verify(ctx context.Context, transactionID string) (ports.VerificationOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(verifyRequest{TransactionID: transactionID})
	if err != nil {
		return ports.VerificationOutcome{}, fmt.Errorf("encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+verifyPath, bytes.NewReader(body))
	if err != nil {
		return ports.VerificationOutcome{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.VerificationOutcome{}, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ports.VerificationOutcome{}, classifyTransportError(ctx, err)
	}

	var decoded verifyResponse
	decodeErr := json.Unmarshal(payload, &decoded)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return ports.VerificationOutcome{}, fmt.Errorf("%w: status %d", ports.ErrGatewayNetwork, resp.StatusCode)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return ports.VerificationOutcome{}, fmt.Errorf("%w: status %d", ports.ErrGatewayNetwork, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		message := decoded.Message
		if decodeErr != nil || message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return ports.VerificationOutcome{}, &ports.GatewayError{StatusCode: resp.StatusCode, Message: message}
	}

	if decodeErr != nil {
		return ports.VerificationOutcome{Status: ports.VerificationFailed, Detail: "unreadable gateway response"}, nil
	}

	return ports.VerificationOutcome{Status: normalizeStatus(decoded.Status), Detail: decoded.Message}, nil
}

func normalizeStatus(raw string) ports.VerificationStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "successful", "approved":
		return ports.VerificationSuccess
	case "already_processed":
		return ports.VerificationAlreadyProcessed
	default:
		return ports.VerificationFailed
	}
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ports.ErrGatewayTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ports.ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", ports.ErrGatewayNetwork, err)
}
