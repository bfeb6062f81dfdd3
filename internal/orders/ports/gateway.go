package ports

import (
	"context"
	"errors"
	"fmt"
)

// VerificationStatus is what the gateway reports for a transaction.
type VerificationStatus string

const (
	VerificationSuccess          VerificationStatus = "success"
	VerificationFailed           VerificationStatus = "failed"
	VerificationAlreadyProcessed VerificationStatus = "already_processed"
)

// VerificationOutcome is the gateway's answer to a verify request.
type VerificationOutcome struct {
	Status VerificationStatus
	Detail string
}

// PaymentGateway verifies a transaction against the payment provider. It is a
// single blocking call; retries are the caller's policy.
type PaymentGateway interface {
	Verify(ctx context.Context, transactionID string) (VerificationOutcome, error)
}

var (
	// ErrGatewayNetwork covers connection failures and gateway-side 5xx errors.
	ErrGatewayNetwork = errors.New("payment gateway unreachable")
	// ErrGatewayTimeout is returned when the verify call exceeds its deadline.
	ErrGatewayTimeout = errors.New("payment gateway timed out")
)

// GatewayError is an explicit rejection from the gateway.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway rejected verification (%d): %s", e.StatusCode, e.Message)
}

// IsTransient reports whether err is a network or timeout failure that a
// caller may retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrGatewayNetwork) || errors.Is(err, ErrGatewayTimeout)
}
