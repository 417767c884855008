package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/billable"
	discountdomain "github.com/smallbiznis/billing/internal/discount/domain"
)

// LineInput is one charge to place on a new invoice.
type LineInput struct {
	PlanID      *snowflake.ID
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	IsProration bool
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// CreateRequest issues an invoice for a subscription period. Discounts are
// applied in the order given, each against the amount left by the previous
// ones. ApplyCredit spends the customer's credit balance against the payable
// amount.
type CreateRequest struct {
	Billable       billable.Ref
	CustomerID     string
	SubscriptionID string
	Currency       string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	Lines          []LineInput
	Discounts      []discountdomain.Discount
	ApplyCredit    bool
}

type Service interface {
	Create(context.Context, CreateRequest) (Invoice, error)
	GetByID(context.Context, string) (Invoice, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]Invoice, error)

	// MarkPaid transitions an open invoice to paid. Marking a paid invoice
	// again is a no-op.
	MarkPaid(ctx context.Context, id string) (Invoice, error)
	MarkPaymentFailed(ctx context.Context, id string) (Invoice, error)
	Void(ctx context.Context, id string) (Invoice, error)
	SetProviderInvoiceID(ctx context.Context, id, providerInvoiceID string) error

	// TotalRefunded sums the invoice's pending and succeeded refunds.
	TotalRefunded(ctx context.Context, id string) (decimal.Decimal, error)
	RemainingRefundable(ctx context.Context, id string) (decimal.Decimal, error)
}

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrInvalidStatus   = errors.New("invalid_invoice_status")
	ErrNothingToBill   = errors.New("nothing_to_bill")
)
