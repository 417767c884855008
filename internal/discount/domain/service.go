package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type CreateDiscountRequest struct {
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Type             DiscountType    `json:"type"`
	Value            decimal.Decimal `json:"value"`
	Currency         string          `json:"currency,omitempty"`
	Duration         Duration        `json:"duration,omitempty"`
	DurationInMonths *int            `json:"duration_in_months,omitempty"`
	MaxRedemptions   *int            `json:"max_redemptions,omitempty"`
	StartsAt         *time.Time      `json:"starts_at,omitempty"`
	EndsAt           *time.Time      `json:"ends_at,omitempty"`
	ApplicablePlans  []string        `json:"applicable_plans,omitempty"`
}

// ApplyRequest attaches a discount code to a subscription. PeriodEnd is the
// subscription's current period end and bounds once-duration discounts.
type ApplyRequest struct {
	SubscriptionID string
	Code           string
	PlanCodes      []string
	PeriodEnd      time.Time
}

type Service interface {
	Create(context.Context, CreateDiscountRequest) (Discount, error)
	GetByCode(context.Context, string) (Discount, error)
	Deactivate(context.Context, string) error

	Apply(context.Context, ApplyRequest) (AppliedDiscount, error)
	Remove(ctx context.Context, subscriptionID, code string) error

	// ActiveForSubscription returns the discounts currently reducing the
	// subscription's invoices, ordered by application time. Lapsed
	// applications are deactivated on read.
	ActiveForSubscription(ctx context.Context, subscriptionID string) ([]Discount, error)

	// RecordUse counts one invoice against every active application on the
	// subscription and deactivates the ones that are spent.
	RecordUse(ctx context.Context, subscriptionID string) error
}

var (
	ErrDiscountNotFound       = errors.New("discount_not_found")
	ErrDiscountNotApplicable  = errors.New("discount_not_applicable")
	ErrDiscountExpired        = errors.New("discount_expired")
	ErrDiscountAlreadyApplied = errors.New("discount_already_applied")
	ErrInvalidDiscount        = errors.New("invalid_discount")
)
