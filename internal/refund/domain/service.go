package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// CreateRequest opens a refund against a paid invoice. A nil amount refunds
// whatever is still refundable.
type CreateRequest struct {
	InvoiceID string
	Amount    *decimal.Decimal
	Reason    string
}

type Service interface {
	Create(context.Context, CreateRequest) (Refund, error)
	GetByID(context.Context, string) (Refund, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]Refund, error)

	MarkSucceeded(ctx context.Context, id string) (Refund, error)
	MarkFailed(ctx context.Context, id, reason string) (Refund, error)
	Cancel(ctx context.Context, id string) (Refund, error)
}

var (
	ErrRefundNotFound    = errors.New("refund_not_found")
	ErrExceedsRefundable = errors.New("refund_exceeds_refundable")
	ErrInvalidAmount     = errors.New("invalid_refund_amount")
	ErrInvalidTransition = errors.New("invalid_refund_transition")
)
