// Package domain contains persistence models for subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/billable"
	"gorm.io/datatypes"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusTrialing   Status = "trialing"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusSuspended  Status = "suspended"
	StatusCanceled   Status = "canceled"
)

// Subscription captures a billable entity's billing agreement.
type Subscription struct {
	ID                     snowflake.ID  `gorm:"primaryKey"`
	Billable               billable.Ref  `gorm:"embedded"`
	CustomerID             snowflake.ID  `gorm:"not null;index"`
	Status                 Status        `gorm:"type:text;not null"`
	CurrentPeriodStart     time.Time     `gorm:"not null"`
	CurrentPeriodEnd       time.Time     `gorm:"not null;index"`
	TrialEndsAt            *time.Time    `gorm:""`
	CanceledAt             *time.Time    `gorm:""`
	EndsAt                 *time.Time    `gorm:""`
	PreviousPlanID         *snowflake.ID `gorm:""`
	PlanChangedAt          *time.Time    `gorm:""`
	ScheduledPlanID        *snowflake.ID `gorm:""`
	ScheduledChangeAt      *time.Time    `gorm:""`
	FailedPaymentCount     int           `gorm:"not null;default:0"`
	LastFailedPaymentAt    *time.Time    `gorm:""`
	ProviderSubscriptionID *string       `gorm:"type:text"`
	Metadata               datatypes.JSONMap
	CreatedAt              time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []SubscriptionItem `gorm:"-"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsOnTrial reports whether the subscription is still inside its trial.
func (s Subscription) IsOnTrial(now time.Time) bool {
	return s.Status == StatusTrialing && s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
}

// IsOnGracePeriod reports whether the subscription was canceled at period
// end and that period has not run out yet.
func (s Subscription) IsOnGracePeriod(now time.Time) bool {
	return s.CanceledAt != nil && s.EndsAt != nil && now.Before(*s.EndsAt) && s.Status != StatusCanceled
}

// SubscriptionItem associates a subscription with one plan or addon.
type SubscriptionItem struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriptionID snowflake.ID `gorm:"not null;index"`
	PlanID         snowflake.ID `gorm:"not null"`
	Quantity       int          `gorm:"not null;default:1"`
	TrialEndsAt    *time.Time   `gorm:""`
	EndsAt         *time.Time   `gorm:""`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionItem) TableName() string { return "subscription_items" }

// isTransitionAllowed encodes the lifecycle state machine. Canceled is
// terminal.
func isTransitionAllowed(current, target Status) bool {
	switch current {
	case StatusIncomplete:
		return target == StatusActive || target == StatusCanceled
	case StatusTrialing:
		return target == StatusActive || target == StatusPastDue || target == StatusCanceled
	case StatusActive:
		return target == StatusPastDue || target == StatusCanceled || target == StatusSuspended
	case StatusPastDue:
		return target == StatusActive || target == StatusCanceled || target == StatusSuspended
	case StatusSuspended:
		return target == StatusActive || target == StatusCanceled
	case StatusCanceled:
		return false
	default:
		return false
	}
}

// CanTransition reports whether the lifecycle allows moving to target.
func (s Subscription) CanTransition(target Status) bool {
	return isTransitionAllowed(s.Status, target)
}
