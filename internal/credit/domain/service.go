package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type AddRequest struct {
	CustomerID  string
	Type        CreditType
	Amount      decimal.Decimal
	Currency    string
	Description string
	ExpiresAt   *time.Time
	SourceType  string
	SourceID    string
	Metadata    map[string]any
}

type DeductRequest struct {
	CustomerID  string
	Amount      decimal.Decimal
	Description string
	SourceType  string
	SourceID    string
}

type Service interface {
	Add(context.Context, AddRequest) (CustomerCredit, error)
	Deduct(context.Context, DeductRequest) (CustomerCredit, error)
	Balance(ctx context.Context, customerID string) (decimal.Decimal, error)
	History(ctx context.Context, customerID string) ([]CustomerCredit, error)

	// ApplyToInvoice deducts up to amount from the customer's balance and
	// returns how much was actually applied. A zero balance applies nothing
	// and is not an error.
	ApplyToInvoice(ctx context.Context, customerID, invoiceID string, amount decimal.Decimal) (decimal.Decimal, error)

	// ExpireDue writes offsetting entries for grants past their expiry and
	// returns how many grants were expired.
	ExpireDue(ctx context.Context) (int, error)
}

var (
	ErrInsufficientCredit = errors.New("insufficient_credit")
	ErrInvalidAmount      = errors.New("invalid_credit_amount")
	ErrCustomerNotFound   = errors.New("customer_not_found")
)
