package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestAmountOffPercentage(t *testing.T) {
	disc := Discount{Type: TypePercentage, Value: d("25")}

	assert.True(t, d("25").Equal(disc.AmountOff(d("100"), "USD")))
	// Half-up rounding to cents.
	assert.True(t, d("2.47").Equal(disc.AmountOff(d("9.99"), "USD")))
	assert.True(t, decimal.Zero.Equal(disc.AmountOff(decimal.Zero, "USD")))
	assert.True(t, decimal.Zero.Equal(disc.AmountOff(d("-10"), "USD")))
}

func TestAmountOffFixed(t *testing.T) {
	disc := Discount{Type: TypeFixed, Value: d("15"), Currency: "USD"}

	assert.True(t, d("15").Equal(disc.AmountOff(d("100"), "USD")))
	// Capped at the amount.
	assert.True(t, d("10").Equal(disc.AmountOff(d("10"), "USD")))
	// Currency mismatch contributes nothing.
	assert.True(t, decimal.Zero.Equal(disc.AmountOff(d("100"), "EUR")))
}

func TestTotalOffStacksSequentially(t *testing.T) {
	discounts := []Discount{
		{Type: TypePercentage, Value: d("50")},
		{Type: TypeFixed, Value: d("30"), Currency: "USD"},
	}

	// 100 -> 50% off leaves 50 -> fixed 30 leaves 20.
	total := TotalOff(d("100"), "USD", discounts)
	assert.True(t, d("80").Equal(total), "got %s", total)
}

func TestTotalOffNeverExceedsAmount(t *testing.T) {
	discounts := []Discount{
		{Type: TypeFixed, Value: d("80"), Currency: "USD"},
		{Type: TypeFixed, Value: d("80"), Currency: "USD"},
	}

	total := TotalOff(d("100"), "USD", discounts)
	assert.True(t, d("100").Equal(total), "got %s", total)
}

func TestIsRedeemable(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)
	two := 2

	tests := []struct {
		name string
		disc Discount
		want bool
	}{
		{"active without window", Discount{Active: true}, true},
		{"inactive", Discount{Active: false}, false},
		{"not started", Discount{Active: true, StartsAt: &after}, false},
		{"ended", Discount{Active: true, EndsAt: &before}, false},
		{"ends exactly now", Discount{Active: true, EndsAt: &now}, false},
		{"within window", Discount{Active: true, StartsAt: &before, EndsAt: &after}, true},
		{"redemptions exhausted", Discount{Active: true, MaxRedemptions: &two, Redemptions: 2}, false},
		{"redemptions remaining", Discount{Active: true, MaxRedemptions: &two, Redemptions: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.disc.IsRedeemable(now))
		})
	}
}

func TestAppliesToPlan(t *testing.T) {
	open := Discount{}
	assert.True(t, open.AppliesToPlan("pro"))

	scoped := Discount{ApplicablePlans: datatypes.JSONSlice[string]{"pro", "team"}}
	assert.True(t, scoped.AppliesToPlan("pro"))
	assert.False(t, scoped.AppliesToPlan("starter"))
}

func TestAppliedDiscountIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	assert.False(t, AppliedDiscount{}.IsExpired(now))
	assert.False(t, AppliedDiscount{ExpiresAt: &later}.IsExpired(now))
	assert.True(t, AppliedDiscount{ExpiresAt: &now}.IsExpired(now))
}
