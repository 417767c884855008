package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/billing/internal/clock"
	creditdomain "github.com/smallbiznis/billing/internal/credit/domain"
	"github.com/smallbiznis/billing/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/billing/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSubscriptions struct {
	subscriptiondomain.Service

	renewals         int
	trials           int
	suspensions      int
	scheduledChanges int
	cancellations    int

	renewErr error
}

func (s *stubSubscriptions) RenewDue(ctx context.Context, now time.Time) (int, error) {
	s.renewals++
	return 1, s.renewErr
}

func (s *stubSubscriptions) ExpireTrials(ctx context.Context, now time.Time) (int, error) {
	s.trials++
	return 0, nil
}

func (s *stubSubscriptions) SuspendOverdue(ctx context.Context, now time.Time) (int, error) {
	s.suspensions++
	return 0, nil
}

func (s *stubSubscriptions) ApplyDueScheduledChanges(ctx context.Context, now time.Time) (int, error) {
	s.scheduledChanges++
	return 0, nil
}

func (s *stubSubscriptions) FinalizeExpiredCancellations(ctx context.Context, now time.Time) (int, error) {
	s.cancellations++
	return 0, nil
}

type stubCredits struct {
	creditdomain.Service

	expiries  int
	expireErr error
}

func (s *stubCredits) ExpireDue(ctx context.Context) (int, error) {
	s.expiries++
	return 0, s.expireErr
}

func newTestScheduler(t *testing.T, subs *stubSubscriptions, credits *stubCredits, cfg Config) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Log:             zap.NewNop(),
		Clock:           clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		SubscriptionSvc: subs,
		CreditSvc:       credits,
		Metrics:         metrics.New(),
		Config:          cfg,
	})
	require.NoError(t, err)
	return sched
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	subs := &stubSubscriptions{}
	credits := &stubCredits{}
	sched := newTestScheduler(t, subs, credits, Config{})

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Equal(t, 1, subs.renewals)
	assert.Equal(t, 1, subs.trials)
	assert.Equal(t, 1, subs.scheduledChanges)
	assert.Equal(t, 1, subs.suspensions)
	assert.Equal(t, 1, subs.cancellations)
	assert.Equal(t, 1, credits.expiries)
}

func TestRunOnceJoinsJobFailures(t *testing.T) {
	subs := &stubSubscriptions{renewErr: errors.New("db down")}
	credits := &stubCredits{}
	sched := newTestScheduler(t, subs, credits, Config{})

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renewals")

	// One failing job does not stop the others.
	assert.Equal(t, 1, subs.trials)
	assert.Equal(t, 1, credits.expiries)
}

func TestRunOnceTreatsDeadlineAsSoftFailure(t *testing.T) {
	subs := &stubSubscriptions{renewErr: context.DeadlineExceeded}
	credits := &stubCredits{}
	sched := newTestScheduler(t, subs, credits, Config{})

	assert.NoError(t, sched.RunOnce(context.Background()))
}

func TestEnabledJobsRestrictsSweep(t *testing.T) {
	subs := &stubSubscriptions{}
	credits := &stubCredits{}
	sched := newTestScheduler(t, subs, credits, Config{
		EnabledJobs: []string{"credit_expiry"},
	})

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Zero(t, subs.renewals)
	assert.Zero(t, subs.trials)
	assert.Zero(t, subs.suspensions)
	assert.Equal(t, 1, credits.expiries)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
