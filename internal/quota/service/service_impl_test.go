package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/billable"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	"github.com/smallbiznis/billing/internal/events"
	plandomain "github.com/smallbiznis/billing/internal/plan/domain"
	"github.com/smallbiznis/billing/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/billing/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type memoryRepo struct {
	usages map[string]domain.Usage
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{usages: map[string]domain.Usage{}}
}

func usageKey(ref billable.Ref, feature string) string {
	return ref.String() + "/" + feature
}

func (r *memoryRepo) FindForUpdate(ctx context.Context, db *gorm.DB, ref billable.Ref, feature string) (*domain.Usage, error) {
	return r.Find(ctx, db, ref, feature)
}

func (r *memoryRepo) Find(_ context.Context, _ *gorm.DB, ref billable.Ref, feature string) (*domain.Usage, error) {
	usage, ok := r.usages[usageKey(ref, feature)]
	if !ok {
		return nil, nil
	}
	return &usage, nil
}

func (r *memoryRepo) Insert(_ context.Context, _ *gorm.DB, usage *domain.Usage) error {
	r.usages[usageKey(usage.Billable, usage.Feature)] = *usage
	return nil
}

func (r *memoryRepo) Update(_ context.Context, _ *gorm.DB, usage *domain.Usage) error {
	r.usages[usageKey(usage.Billable, usage.Feature)] = *usage
	return nil
}

func (r *memoryRepo) List(_ context.Context, _ *gorm.DB, ref billable.Ref) ([]domain.Usage, error) {
	var out []domain.Usage
	for _, usage := range r.usages {
		if usage.Billable == ref {
			out = append(out, usage)
		}
	}
	return out, nil
}

func (r *memoryRepo) ResetAll(_ context.Context, _ *gorm.DB, ref billable.Ref) error {
	for key, usage := range r.usages {
		if usage.Billable == ref {
			usage.Used = decimal.Zero
			usage.WarnedThresholds = nil
			usage.LastExceededAt = nil
			r.usages[key] = usage
		}
	}
	return nil
}

type stubSubscriptions struct {
	subscriptiondomain.Service

	sub subscriptiondomain.Subscription
}

func (s *stubSubscriptions) GetByBillable(_ context.Context, _ billable.Ref) (subscriptiondomain.Subscription, error) {
	return s.sub, nil
}

type stubPlans struct {
	plandomain.Service

	plans map[string]plandomain.Plan
}

func (s *stubPlans) GetByID(_ context.Context, id string) (plandomain.Plan, error) {
	return s.plans[id], nil
}

type quotaFixture struct {
	svc      domain.Service
	repo     *memoryRepo
	subs     *stubSubscriptions
	plans    *stubPlans
	recorder *events.Recorder
	ref      billable.Ref
	node     *snowflake.Node
}

func newQuotaFixture(t *testing.T) *quotaFixture {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	ref := billable.NewRef("team", "team-1")
	planID := node.Generate()
	plans := &stubPlans{plans: map[string]plandomain.Plan{
		planID.String(): {
			ID:     planID,
			Code:   "pro",
			Type:   plandomain.PlanTypePlan,
			Limits: datatypes.JSONMap{"seats": float64(10)},
		},
	}}
	subs := &stubSubscriptions{sub: subscriptiondomain.Subscription{
		ID:       node.Generate(),
		Billable: ref,
		Status:   subscriptiondomain.StatusActive,
		Items: []subscriptiondomain.SubscriptionItem{
			{PlanID: planID, Quantity: 1},
		},
	}}

	repo := newMemoryRepo()
	recorder := events.NewRecorder()
	svc := NewService(Params{
		DB:            gdb,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:          repo,
		Plans:         plans,
		Subscriptions: subs,
		Sink:          recorder,
		BillingCfg:    config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	return &quotaFixture{svc: svc, repo: repo, subs: subs, plans: plans, recorder: recorder, ref: ref, node: node}
}

func TestCombinedLimitsScaleWithItemQuantity(t *testing.T) {
	f := newQuotaFixture(t)
	f.subs.sub.Items[0].Quantity = 3

	limits, err := f.svc.CombinedLimits(context.Background(), f.ref)
	require.NoError(t, err)
	require.Contains(t, limits, "seats")
	assert.True(t, limits["seats"].Amount.Equal(decimal.NewFromInt(30)),
		"got %s", limits["seats"].Amount)
}

func TestCombinedLimitsSumAcrossItems(t *testing.T) {
	f := newQuotaFixture(t)
	addonID := f.node.Generate()
	f.plans.plans[addonID.String()] = plandomain.Plan{
		ID:     addonID,
		Code:   "extra-seats",
		Type:   plandomain.PlanTypeAddon,
		Limits: datatypes.JSONMap{"seats": float64(5)},
	}
	f.subs.sub.Items = append(f.subs.sub.Items, subscriptiondomain.SubscriptionItem{
		PlanID:   addonID,
		Quantity: 2,
	})

	limits, err := f.svc.CombinedLimits(context.Background(), f.ref)
	require.NoError(t, err)
	assert.True(t, limits["seats"].Amount.Equal(decimal.NewFromInt(20)),
		"got %s", limits["seats"].Amount)
}

func TestRecordAcceptsNegativeDelta(t *testing.T) {
	f := newQuotaFixture(t)
	ctx := context.Background()

	_, err := f.svc.Record(ctx, f.ref, "seats", decimal.NewFromInt(7))
	require.NoError(t, err)

	usage, err := f.svc.Record(ctx, f.ref, "seats", decimal.NewFromInt(-3))
	require.NoError(t, err)
	assert.True(t, usage.Used.Equal(decimal.NewFromInt(4)))

	// A decrement past zero clamps rather than going negative.
	usage, err = f.svc.Record(ctx, f.ref, "seats", decimal.NewFromInt(-10))
	require.NoError(t, err)
	assert.True(t, usage.Used.Equal(decimal.Zero))
}

func TestRecordNegativeDeltaRearmsWarnings(t *testing.T) {
	f := newQuotaFixture(t)
	ctx := context.Background()

	_, err := f.svc.Record(ctx, f.ref, "seats", decimal.NewFromInt(9))
	require.NoError(t, err)
	require.Len(t, f.recorder.Named("quota.warning"), 2)

	usage, err := f.svc.Record(ctx, f.ref, "seats", decimal.NewFromInt(-1))
	require.NoError(t, err)
	assert.Empty(t, usage.WarnedThresholds)
	assert.Len(t, f.recorder.Named("quota.warning"), 2)
}
