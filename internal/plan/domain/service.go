package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type CreatePlanRequest struct {
	Code                 string          `json:"code,omitempty"`
	Name                 string          `json:"name"`
	Description          string          `json:"description,omitempty"`
	Type                 PlanType        `json:"type,omitempty"`
	Price                decimal.Decimal `json:"price"`
	Currency             string          `json:"currency,omitempty"`
	Interval             BillingInterval `json:"interval,omitempty"`
	IntervalCount        int             `json:"interval_count,omitempty"`
	RequiresPlan         bool            `json:"requires_plan,omitempty"`
	TrialPeriodDays      *int            `json:"trial_period_days,omitempty"`
	GracePeriodDays      *int            `json:"grace_period_days,omitempty"`
	CancellationBehavior string          `json:"cancellation_behavior,omitempty"`
	ChangeBehavior       string          `json:"change_behavior,omitempty"`
	ProrateChanges       *bool           `json:"prorate_changes,omitempty"`
	Features             []string        `json:"features,omitempty"`
	Limits               map[string]any  `json:"limits,omitempty"`
}

type ListPlanRequest struct {
	ActiveOnly bool
	Type       PlanType
}

type Service interface {
	Create(context.Context, CreatePlanRequest) (Plan, error)
	GetByID(context.Context, string) (Plan, error)
	GetByCode(context.Context, string) (Plan, error)
	List(context.Context, ListPlanRequest) ([]Plan, error)
	Deactivate(context.Context, string) error
}

var (
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrInvalidPlan     = errors.New("invalid_plan")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidInterval = errors.New("invalid_interval")
	ErrDuplicateCode   = errors.New("duplicate_plan_code")
)
