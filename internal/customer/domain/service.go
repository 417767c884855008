package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/billing/internal/billable"
)

type GetOrCreateRequest struct {
	Billable billable.Ref   `json:"billable"`
	Name     string         `json:"name,omitempty"`
	Email    string         `json:"email,omitempty"`
	Currency string         `json:"currency,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type AttachPaymentMethodRequest struct {
	Provider         string            `json:"provider"`
	ProviderMethodID string            `json:"provider_method_id"`
	Kind             PaymentMethodKind `json:"kind,omitempty"`
	Last4            string            `json:"last4,omitempty"`
	MakeDefault      bool              `json:"make_default,omitempty"`
}

type Service interface {
	GetOrCreate(context.Context, GetOrCreateRequest) (Customer, error)
	GetByID(context.Context, string) (Customer, error)
	GetByBillable(context.Context, billable.Ref) (Customer, error)
	SetProviderCustomerID(ctx context.Context, id, providerCustomerID string) error

	AttachPaymentMethod(ctx context.Context, customerID string, req AttachPaymentMethodRequest) (PaymentMethod, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, methodID string) error
	ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
	HasDefaultPaymentMethod(ctx context.Context, customerID string) (bool, error)
}

var (
	ErrCustomerNotFound      = errors.New("customer_not_found")
	ErrPaymentMethodNotFound = errors.New("payment_method_not_found")
	ErrInvalidPaymentMethod  = errors.New("invalid_payment_method")
)
