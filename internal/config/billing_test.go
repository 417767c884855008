package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBillingConfigIsValid(t *testing.T) {
	require.NoError(t, validateBillingConfig(DefaultBillingConfig()))
}

func TestValidateBillingConfig(t *testing.T) {
	mutate := func(fn func(cfg *BillingConfig)) BillingConfig {
		cfg := DefaultBillingConfig()
		fn(&cfg)
		return cfg
	}

	tests := []struct {
		name string
		cfg  BillingConfig
	}{
		{"bad currency", mutate(func(c *BillingConfig) { c.Currency = "US" })},
		{"zero starting number", mutate(func(c *BillingConfig) { c.Invoice.StartingNumber = 0 })},
		{"negative tax rate", mutate(func(c *BillingConfig) { c.Invoice.TaxRate = -1 })},
		{"tax rate over 100", mutate(func(c *BillingConfig) { c.Invoice.TaxRate = 100 })},
		{"empty thresholds", mutate(func(c *BillingConfig) { c.Quota.WarningThresholds = nil })},
		{"unsorted thresholds", mutate(func(c *BillingConfig) { c.Quota.WarningThresholds = []int{90, 80} })},
		{"threshold out of range", mutate(func(c *BillingConfig) { c.Quota.WarningThresholds = []int{80, 100} })},
		{"bad cancellation behavior", mutate(func(c *BillingConfig) { c.Plans.CancellationBehavior = "eventually" })},
		{"bad change behavior", mutate(func(c *BillingConfig) { c.Plans.ChangeBehavior = "later" })},
		{"negative grace period", mutate(func(c *BillingConfig) { c.Plans.GracePeriodDays = -1 })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validateBillingConfig(tt.cfg))
		})
	}
}

func TestStaticHolderRoundTrip(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.Invoice.NumberPrefix = "ACME-"

	holder := NewStaticBillingConfigHolder(cfg)
	assert.Equal(t, "ACME-", holder.Get().Invoice.NumberPrefix)
}
