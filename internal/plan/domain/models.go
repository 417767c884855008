// Package domain contains persistence models for billing plans.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PlanType distinguishes base plans from addons.
type PlanType string

const (
	PlanTypePlan  PlanType = "plan"
	PlanTypeAddon PlanType = "addon"
)

// BillingInterval is the length unit of a billing period.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// CancellationBehavior controls what Cancel does by default.
type CancellationBehavior string

const (
	CancelImmediately CancellationBehavior = "immediately"
	CancelEndOfPeriod CancellationBehavior = "end_of_period"
)

// ChangeBehavior controls whether plan changes apply now or at period end.
type ChangeBehavior string

const (
	ChangeImmediate ChangeBehavior = "immediate"
	ChangeScheduled ChangeBehavior = "scheduled"
)

// Plan is a purchasable billing plan or addon.
type Plan struct {
	ID                   snowflake.ID                `gorm:"primaryKey"`
	Code                 string                      `gorm:"type:text;not null;uniqueIndex"`
	Name                 string                      `gorm:"not null"`
	Description          string                      `gorm:"type:text;not null;default:''"`
	Type                 PlanType                    `gorm:"column:plan_type;type:text;not null;default:'plan'"`
	Price                decimal.Decimal             `gorm:"type:numeric(12,2);not null"`
	Currency             string                      `gorm:"type:text;not null"`
	Interval             BillingInterval             `gorm:"column:billing_interval;type:text;not null"`
	IntervalCount        int                         `gorm:"not null;default:1"`
	RequiresPlan         bool                        `gorm:"not null;default:false"`
	TrialPeriodDays      int                         `gorm:"not null;default:0"`
	GracePeriodDays      int                         `gorm:"not null;default:3"`
	CancellationBehavior CancellationBehavior        `gorm:"type:text;not null;default:'end_of_period'"`
	ChangeBehavior       ChangeBehavior              `gorm:"type:text;not null;default:'immediate'"`
	ProrateChanges       bool                        `gorm:"not null;default:true"`
	Features             datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Limits               datatypes.JSONMap           `gorm:"type:jsonb"`
	Active               bool                        `gorm:"not null;default:true"`
	CreatedAt            time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// PeriodEnd returns the end of a billing period starting at the given time.
func (p Plan) PeriodEnd(start time.Time) time.Time {
	count := p.IntervalCount
	if count <= 0 {
		count = 1
	}
	switch p.Interval {
	case IntervalYearly:
		return start.AddDate(count, 0, 0)
	default:
		return start.AddDate(0, count, 0)
	}
}

// HasFeature reports whether the plan grants the feature.
func (p Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// LimitFor resolves the quota limit for a feature. A feature missing from the
// limits map yields a zero limit; an explicit null yields unlimited.
func (p Plan) LimitFor(feature string) (limit decimal.Decimal, unlimited bool) {
	if p.Limits == nil {
		return decimal.Zero, false
	}
	raw, ok := p.Limits[feature]
	if !ok {
		return decimal.Zero, false
	}
	if raw == nil {
		return decimal.Zero, true
	}
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), false
	case int64:
		return decimal.NewFromInt(v), false
	case int:
		return decimal.NewFromInt(int64(v)), false
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, false
		}
		return parsed, false
	default:
		return decimal.Zero, false
	}
}

// HasLimits reports whether the plan declares any quota limits at all.
func (p Plan) HasLimits() bool {
	return len(p.Limits) > 0
}
