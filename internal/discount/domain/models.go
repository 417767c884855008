// Package domain contains discount codes and their application records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DiscountType is how a discount reduces an amount.
type DiscountType string

const (
	TypePercentage DiscountType = "percentage"
	TypeFixed      DiscountType = "fixed"
)

// Duration controls how long an applied discount keeps reducing invoices.
type Duration string

const (
	DurationOnce      Duration = "once"
	DurationRepeating Duration = "repeating"
	DurationForever   Duration = "forever"
)

// Discount is a redeemable discount code.
type Discount struct {
	ID                 snowflake.ID                `gorm:"primaryKey"`
	Code               string                      `gorm:"type:text;not null;uniqueIndex"`
	Name               string                      `gorm:"not null"`
	Type               DiscountType                `gorm:"column:discount_type;type:text;not null"`
	Value              decimal.Decimal             `gorm:"type:numeric(12,2);not null"`
	Currency           string                      `gorm:"type:text;not null;default:''"`
	Duration           Duration                    `gorm:"type:text;not null;default:'once'"`
	DurationInMonths   *int                        `gorm:""`
	MaxRedemptions     *int                        `gorm:""`
	Redemptions        int                         `gorm:"not null;default:0"`
	StartsAt           *time.Time                  `gorm:""`
	EndsAt             *time.Time                  `gorm:""`
	ApplicablePlans    datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	ProviderDiscountID *string                     `gorm:"type:text"`
	Active             bool                        `gorm:"not null;default:true"`
	CreatedAt          time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Discount) TableName() string { return "discounts" }

// IsRedeemable reports whether the code can still be applied at the given time.
func (d Discount) IsRedeemable(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && !now.Before(*d.EndsAt) {
		return false
	}
	if d.MaxRedemptions != nil && d.Redemptions >= *d.MaxRedemptions {
		return false
	}
	return true
}

// AppliesToPlan reports whether the discount is valid for a plan code. An
// empty applicable_plans list means the discount applies to every plan.
func (d Discount) AppliesToPlan(planCode string) bool {
	if len(d.ApplicablePlans) == 0 {
		return true
	}
	for _, code := range d.ApplicablePlans {
		if code == planCode {
			return true
		}
	}
	return false
}

// AmountOff computes how much the discount takes off the given amount.
// Percentage discounts are rounded half up to two decimal places. Fixed
// discounts never exceed the amount and yield zero on a currency mismatch.
func (d Discount) AmountOff(amount decimal.Decimal, currency string) decimal.Decimal {
	if amount.Sign() <= 0 {
		return decimal.Zero
	}
	switch d.Type {
	case TypePercentage:
		return amount.Mul(d.Value).Div(decimal.NewFromInt(100)).Round(2)
	case TypeFixed:
		if d.Currency != "" && currency != "" && d.Currency != currency {
			return decimal.Zero
		}
		if d.Value.GreaterThan(amount) {
			return amount
		}
		return d.Value
	default:
		return decimal.Zero
	}
}

// TotalOff applies the discounts in order, each against the amount remaining
// after the previous ones, and returns the combined reduction.
func TotalOff(amount decimal.Decimal, currency string, discounts []Discount) decimal.Decimal {
	remaining := amount
	total := decimal.Zero
	for _, d := range discounts {
		off := d.AmountOff(remaining, currency)
		total = total.Add(off)
		remaining = remaining.Sub(off)
		if remaining.Sign() <= 0 {
			break
		}
	}
	return total
}

// AppliedDiscount records a discount attached to a subscription. TotalUses
// counts the invoices the discount has reduced.
type AppliedDiscount struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriptionID snowflake.ID `gorm:"not null;uniqueIndex:uq_applied_discounts,priority:1"`
	DiscountID     snowflake.ID `gorm:"not null;uniqueIndex:uq_applied_discounts,priority:2"`
	AppliedAt      time.Time    `gorm:"not null"`
	ExpiresAt      *time.Time   `gorm:""`
	TotalUses      int          `gorm:"not null;default:0"`
	Active         bool         `gorm:"not null;default:true"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AppliedDiscount) TableName() string { return "applied_discounts" }

// IsExpired reports whether the application has lapsed at the given time.
func (a AppliedDiscount) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// Exhausted reports whether the application has spent its duration. Once
// discounts cover a single invoice; repeating discounts cover one invoice
// per duration month, however far apart those invoices land.
func (a AppliedDiscount) Exhausted(d Discount) bool {
	switch d.Duration {
	case DurationOnce:
		return a.TotalUses >= 1
	case DurationRepeating:
		uses := 1
		if d.DurationInMonths != nil {
			uses = *d.DurationInMonths
		}
		return a.TotalUses >= uses
	default:
		return false
	}
}
