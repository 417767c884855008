// Package domain contains per-feature quota usage counters.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/billable"
	"gorm.io/datatypes"
)

// Usage tracks consumption of one feature by one billable entity.
// WarnedThresholds remembers which warning levels already fired for the
// current period.
type Usage struct {
	ID               snowflake.ID             `gorm:"primaryKey"`
	Billable         billable.Ref             `gorm:"embedded"`
	Feature          string                   `gorm:"type:text;not null"`
	Used             decimal.Decimal          `gorm:"type:numeric(16,4);not null"`
	WarnedThresholds datatypes.JSONSlice[int] `gorm:"type:jsonb"`
	LastWarningAt    *time.Time               `gorm:""`
	LastExceededAt   *time.Time               `gorm:""`
	CreatedAt        time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Usage) TableName() string { return "quota_usages" }

// HasWarned reports whether the threshold already fired.
func (u Usage) HasWarned(threshold int) bool {
	for _, t := range u.WarnedThresholds {
		if t == threshold {
			return true
		}
	}
	return false
}

// Limit is an effective quota for one feature, combined across the plans of
// a subscription.
type Limit struct {
	Amount    decimal.Decimal `json:"amount"`
	Unlimited bool            `json:"unlimited"`
}
