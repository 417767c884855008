package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/config"
	"github.com/smallbiznis/billing/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newThresholdService() *service {
	return &service{
		log:        zap.NewNop(),
		billingCfg: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	}
}

func TestRunThresholdsFiresAscending(t *testing.T) {
	svc := newThresholdService()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	limit := decimal.NewFromInt(100)

	usage := &domain.Usage{Used: decimal.NewFromInt(85)}
	warnings, exceeded := svc.runThresholds(usage, limit, decimal.Zero, now)
	assert.Equal(t, []int{80}, warnings)
	assert.False(t, exceeded)
	require.NotNil(t, usage.LastWarningAt)

	// Climbing further fires only the next unwarned level.
	usage.Used = decimal.NewFromInt(95)
	warnings, exceeded = svc.runThresholds(usage, limit, decimal.NewFromInt(85), now)
	assert.Equal(t, []int{90}, warnings)
	assert.False(t, exceeded)

	// Nothing left to fire below the limit.
	usage.Used = decimal.NewFromInt(99)
	warnings, exceeded = svc.runThresholds(usage, limit, decimal.NewFromInt(95), now)
	assert.Empty(t, warnings)
	assert.False(t, exceeded)
}

func TestRunThresholdsJumpFiresAllCrossedLevels(t *testing.T) {
	svc := newThresholdService()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	usage := &domain.Usage{Used: decimal.NewFromInt(95)}
	warnings, exceeded := svc.runThresholds(usage, decimal.NewFromInt(100), decimal.Zero, now)
	assert.Equal(t, []int{80, 90}, warnings)
	assert.False(t, exceeded)
}

func TestRunThresholdsExceededFiresOnce(t *testing.T) {
	svc := newThresholdService()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	limit := decimal.NewFromInt(100)

	usage := &domain.Usage{Used: decimal.NewFromInt(120)}
	warnings, exceeded := svc.runThresholds(usage, limit, decimal.Zero, now)
	assert.Empty(t, warnings)
	assert.True(t, exceeded)
	require.NotNil(t, usage.LastExceededAt)

	// Still over: already stamped, stays quiet.
	usage.Used = decimal.NewFromInt(130)
	warnings, exceeded = svc.runThresholds(usage, limit, decimal.NewFromInt(120), now)
	assert.Empty(t, warnings)
	assert.False(t, exceeded)
}

func TestRunThresholdsRearmsAfterDroppingUnderLimit(t *testing.T) {
	svc := newThresholdService()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	limit := decimal.NewFromInt(100)

	usage := &domain.Usage{Used: decimal.NewFromInt(120)}
	_, exceeded := svc.runThresholds(usage, limit, decimal.Zero, now)
	require.True(t, exceeded)

	// Dropping to 50 clears the exceeded stamp and rearms warning levels.
	usage.Used = decimal.NewFromInt(50)
	warnings, exceeded := svc.runThresholds(usage, limit, decimal.NewFromInt(120), now)
	assert.Empty(t, warnings)
	assert.False(t, exceeded)
	assert.Nil(t, usage.LastExceededAt)
	assert.Empty(t, usage.WarnedThresholds)

	// Climbing again can fire the same level a second time.
	usage.Used = decimal.NewFromInt(85)
	warnings, _ = svc.runThresholds(usage, limit, decimal.NewFromInt(50), now)
	assert.Equal(t, []int{80}, warnings)
}

func TestRunThresholdsDropClearsWholeWarnedSet(t *testing.T) {
	svc := newThresholdService()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	limit := decimal.NewFromInt(1000)

	usage := &domain.Usage{Used: decimal.NewFromInt(950)}
	warnings, _ := svc.runThresholds(usage, limit, decimal.Zero, now)
	require.Equal(t, []int{80, 90}, warnings)

	// A decrease that stays above the lowest warning level still clears
	// every warned threshold, and fires nothing on the way down.
	usage.Used = decimal.NewFromInt(850)
	warnings, exceeded := svc.runThresholds(usage, limit, decimal.NewFromInt(950), now)
	assert.Empty(t, warnings)
	assert.False(t, exceeded)
	assert.Empty(t, usage.WarnedThresholds)
}

func TestRunThresholdsZeroLimit(t *testing.T) {
	svc := newThresholdService()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Any usage against a zero limit is an overage.
	usage := &domain.Usage{Used: decimal.NewFromInt(1)}
	warnings, exceeded := svc.runThresholds(usage, decimal.Zero, decimal.Zero, now)
	assert.Empty(t, warnings)
	assert.True(t, exceeded)

	// Zero usage against a zero limit is fine.
	idle := &domain.Usage{Used: decimal.Zero}
	warnings, exceeded = svc.runThresholds(idle, decimal.Zero, decimal.Zero, now)
	assert.Empty(t, warnings)
	assert.False(t, exceeded)
}
