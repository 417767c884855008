package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/billable"
)

type Service interface {
	// Record adds delta to the feature's usage and runs threshold checks.
	Record(ctx context.Context, ref billable.Ref, feature string, delta decimal.Decimal) (Usage, error)

	// Set overwrites the feature's usage with an absolute value.
	Set(ctx context.Context, ref billable.Ref, feature string, value decimal.Decimal) (Usage, error)

	// Decrement subtracts delta, never going below zero.
	Decrement(ctx context.Context, ref billable.Ref, feature string, delta decimal.Decimal) (Usage, error)

	// Reset zeroes all counters for the billable entity, typically on
	// renewal.
	Reset(ctx context.Context, ref billable.Ref) error

	// Remaining reports how much of the feature's quota is left.
	Remaining(ctx context.Context, ref billable.Ref, feature string) (Limit, error)

	// CanUse returns ErrQuotaExceeded when consuming delta would go over
	// the limit.
	CanUse(ctx context.Context, ref billable.Ref, feature string, delta decimal.Decimal) error

	// CombinedLimits merges the limits of every plan on the entity's
	// subscription. Plans that declare no limits at all are skipped.
	CombinedLimits(ctx context.Context, ref billable.Ref) (map[string]Limit, error)

	List(ctx context.Context, ref billable.Ref) ([]Usage, error)
}

var (
	ErrQuotaExceeded  = errors.New("quota_exceeded")
	ErrInvalidDelta   = errors.New("invalid_quota_delta")
	ErrNoSubscription = errors.New("subscription_not_found")
)
