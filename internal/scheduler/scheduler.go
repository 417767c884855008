// Package scheduler drives the periodic billing sweeps: renewals, trial
// expirations, grace period enforcement, scheduled plan changes, lapsed
// cancellations and credit expiry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/billing/internal/clock"
	creditdomain "github.com/smallbiznis/billing/internal/credit/domain"
	"github.com/smallbiznis/billing/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log             *zap.Logger
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	CreditSvc       creditdomain.Service
	Metrics         *metrics.Metrics
	Config          Config `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	creditSvc       creditdomain.Service
	metrics         *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.SubscriptionSvc == nil || p.CreditSvc == nil || p.Metrics == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		creditSvc:       p.CreditSvc,
		metrics:         p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, now time.Time) (int, error),
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	s.metrics.IncJobRun(name)
	processed, err := fn(ctx, s.clock.Now())
	s.metrics.ObserveJobDuration(name, time.Since(start))
	s.metrics.AddJobProcessed(name, processed)

	if err == nil {
		if processed > 0 {
			s.log.Info("sweep job done",
				zap.String("job", name),
				zap.Int("processed", processed),
			)
		}
		return nil
	}

	// A deadline is a soft failure: whatever was not reached this run is
	// picked up by the next tick.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		s.log.Warn("sweep job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Int("processed", processed),
		)
		return nil
	}

	s.metrics.IncJobError(name)
	s.log.Error("sweep job failed",
		zap.String("job", name),
		zap.Int("processed", processed),
		zap.Error(err),
	)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled sweep job in dependency order. Renewals
// run before grace enforcement so a successful renewal is never
// suspended in the same tick.
func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		Name string
		Run  func(ctx context.Context, now time.Time) (int, error)
	}{
		{"renewals", s.subscriptionSvc.RenewDue},
		{"trial_expirations", s.subscriptionSvc.ExpireTrials},
		{"scheduled_plan_changes", s.subscriptionSvc.ApplyDueScheduledChanges},
		{"grace_periods", s.subscriptionSvc.SuspendOverdue},
		{"cancellations", s.subscriptionSvc.FinalizeExpiredCancellations},
		{"credit_expiry", func(ctx context.Context, _ time.Time) (int, error) {
			return s.creditSvc.ExpireDue(ctx)
		}},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
