package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/billable"
)

// SubscribeRequest starts a subscription for a billable entity. PlanCodes
// must contain exactly one base plan; addons may follow it.
type SubscribeRequest struct {
	Billable  billable.Ref   `json:"billable"`
	PlanCodes []string       `json:"plan_codes"`
	Quantity  map[string]int `json:"quantity,omitempty"`

	// TrialPeriodDays overrides the base plan's trial length when set.
	TrialPeriodDays *int           `json:"trial_period_days,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// CancelOptions controls how a cancellation takes effect. A nil Immediately
// defers to the base plan's cancellation behavior.
type CancelOptions struct {
	Immediately *bool `json:"immediately,omitempty"`
}

// ChangePlanOptions tunes a plan change. Nil fields defer to the plan's
// configured behavior.
type ChangePlanOptions struct {
	Scheduled *bool `json:"scheduled,omitempty"`
	Prorate   *bool `json:"prorate,omitempty"`
}

// PlanChangePreview is the proration quote for a plan change, computed
// without touching the subscription.
type PlanChangePreview struct {
	FromPlanCode  string          `json:"from_plan_code"`
	ToPlanCode    string          `json:"to_plan_code"`
	RemainingDays int             `json:"remaining_days"`
	PeriodDays    int             `json:"period_days"`
	CreditAmount  decimal.Decimal `json:"credit_amount"`
	ChargeAmount  decimal.Decimal `json:"charge_amount"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Currency      string          `json:"currency"`
	IsUpgrade     bool            `json:"is_upgrade"`
	IsDowngrade   bool            `json:"is_downgrade"`
}

type Service interface {
	Subscribe(context.Context, SubscribeRequest) (Subscription, error)
	GetByID(context.Context, string) (Subscription, error)
	GetByBillable(context.Context, billable.Ref) (Subscription, error)

	Cancel(ctx context.Context, id string, opts CancelOptions) (Subscription, error)
	Resume(ctx context.Context, id string) (Subscription, error)

	AddAddon(ctx context.Context, id, addonCode string) (Subscription, error)
	RemoveAddon(ctx context.Context, id, addonCode string) (Subscription, error)

	ChangePlan(ctx context.Context, id, planCode string, opts ChangePlanOptions) (Subscription, error)
	PreviewPlanChange(ctx context.Context, id, planCode string) (PlanChangePreview, error)
	SchedulePlanChange(ctx context.Context, id, planCode string) (Subscription, error)
	ApplyScheduledPlanChange(ctx context.Context, id string) (Subscription, error)
	CancelScheduledPlanChange(ctx context.Context, id string) (Subscription, error)

	ApplyDiscount(ctx context.Context, id, code string) error
	RemoveDiscount(ctx context.Context, id, code string) error

	Renew(ctx context.Context, id string) (Subscription, error)
	Activate(ctx context.Context, id string) (Subscription, error)
	MarkPaymentFailed(ctx context.Context, id string) (Subscription, error)
	SyncPeriods(ctx context.Context, id string, periodStart, periodEnd time.Time) error

	// Sweep entry points, run by the scheduler. Each returns how many
	// subscriptions it touched.
	RenewDue(ctx context.Context, now time.Time) (int, error)
	ExpireTrials(ctx context.Context, now time.Time) (int, error)
	SuspendOverdue(ctx context.Context, now time.Time) (int, error)
	ApplyDueScheduledChanges(ctx context.Context, now time.Time) (int, error)
	FinalizeExpiredCancellations(ctx context.Context, now time.Time) (int, error)
}

var (
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrInvalidTransition     = errors.New("invalid_status_transition")
	ErrAlreadyCanceled       = errors.New("already_canceled")
	ErrNotOnGracePeriod      = errors.New("not_on_grace_period")
	ErrNoBasePlan            = errors.New("no_base_plan")
	ErrSamePlan              = errors.New("same_plan")
	ErrAddonRequiresBasePlan = errors.New("addon_requires_base_plan")
	ErrAlreadySubscribed     = errors.New("already_subscribed")
	ErrNoScheduledChange     = errors.New("no_scheduled_change")
)
