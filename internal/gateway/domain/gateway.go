// Package domain defines the narrow contract this core holds against the
// external payment gateway.
package domain

import (
	"context"
	"errors"
	"time"
)

type CreateSubscriptionRequest struct {
	PlanID     string
	CustomerID string
	TotalCount int
	Notes      map[string]string
}

type Subscription struct {
	ID           string
	PlanID       string
	CustomerID   string
	Status       string
	CurrentStart *time.Time
	CurrentEnd   *time.Time
	PaidCount    int
	TotalCount   int
}

type Payment struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
	Captured bool
}

type Gateway interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atCycleEnd bool) error
	// VerifySignature checks the HMAC the gateway attaches to payment
	// confirmations. It performs no I/O.
	VerifySignature(subscriptionID, paymentID, signature string) bool
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
}

var (
	ErrInvalidConfig      = errors.New("invalid_gateway_config")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayRejected    = errors.New("gateway_rejected")
	ErrNotFound           = errors.New("gateway_not_found")
)
