// Package noop is a payment adapter that accepts every operation without
// talking to any processor. It backs installations that bill out of band.
package noop

import (
	"context"

	"github.com/smallbiznis/billing/internal/payment/domain"
)

const provider = "noop"

type factory struct{}

func NewFactory() domain.AdapterFactory {
	return factory{}
}

func (factory) Provider() string { return provider }

func (factory) NewAdapter(cfg domain.AdapterConfig) (domain.Gateway, error) {
	return adapter{}, nil
}

type adapter struct{}

func (adapter) Provider() string { return provider }

func (adapter) SyncCustomer(ctx context.Context, customer domain.GatewayCustomer) (string, error) {
	return "", nil
}

func (adapter) SyncPlan(ctx context.Context, plan domain.GatewayPlan) (string, error) {
	return "", nil
}

func (adapter) CreateSubscription(ctx context.Context, sub domain.GatewaySubscription) (string, error) {
	return "", nil
}

func (adapter) CancelSubscription(ctx context.Context, providerSubscriptionID string, atPeriodEnd bool) error {
	return nil
}

func (adapter) SyncDiscount(ctx context.Context, discount domain.GatewayDiscount) (string, error) {
	return "", nil
}

func (adapter) ApplyDiscount(ctx context.Context, providerSubscriptionID, providerDiscountID string) error {
	return nil
}

func (adapter) RemoveDiscount(ctx context.Context, providerSubscriptionID, providerDiscountID string) error {
	return nil
}

func (adapter) CreateRefund(ctx context.Context, refund domain.GatewayRefund) (string, error) {
	return "", nil
}
