package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// GatewayCustomer is the customer projection pushed to a processor.
type GatewayCustomer struct {
	ID       string
	Name     string
	Email    string
	Currency string
}

// GatewayPlan is the plan projection pushed to a processor.
type GatewayPlan struct {
	ID            string
	Code          string
	Name          string
	Price         decimal.Decimal
	Currency      string
	Interval      string
	IntervalCount int
}

// GatewaySubscription asks the processor to start billing a customer.
type GatewaySubscription struct {
	SubscriptionID     string
	ProviderCustomerID string
	PlanCodes          []string
	TrialEndsAt        *int64
}

// GatewayDiscount is the discount projection pushed to a processor.
type GatewayDiscount struct {
	ID       string
	Code     string
	Type     string
	Value    decimal.Decimal
	Currency string
}

// GatewayRefund asks the processor to return money for an invoice.
type GatewayRefund struct {
	RefundID          string
	ProviderInvoiceID string
	Amount            decimal.Decimal
	Currency          string
	Reason            string
}

// Gateway is a remote payment processor. Sync operations return the
// processor-side identifier for the synced object.
type Gateway interface {
	Provider() string

	SyncCustomer(ctx context.Context, customer GatewayCustomer) (string, error)
	SyncPlan(ctx context.Context, plan GatewayPlan) (string, error)
	CreateSubscription(ctx context.Context, sub GatewaySubscription) (string, error)
	CancelSubscription(ctx context.Context, providerSubscriptionID string, atPeriodEnd bool) error

	SyncDiscount(ctx context.Context, discount GatewayDiscount) (string, error)
	ApplyDiscount(ctx context.Context, providerSubscriptionID, providerDiscountID string) error
	RemoveDiscount(ctx context.Context, providerSubscriptionID, providerDiscountID string) error

	CreateRefund(ctx context.Context, refund GatewayRefund) (string, error)
}

// AdapterConfig carries provider credentials to an adapter factory.
type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

// AdapterFactory builds a Gateway for one provider.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrStaleTimestamp   = errors.New("stale_webhook_timestamp")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrEventProcessed   = errors.New("event_already_processed")
)
