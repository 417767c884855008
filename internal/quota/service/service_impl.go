package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/billable"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	"github.com/smallbiznis/billing/internal/events"
	plandomain "github.com/smallbiznis/billing/internal/plan/domain"
	"github.com/smallbiznis/billing/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	Plans         plandomain.Service
	Subscriptions subscriptiondomain.Service
	Sink          events.Sink
	BillingCfg    *config.BillingConfigHolder
}

type service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	plans         plandomain.Service
	subscriptions subscriptiondomain.Service
	sink          events.Sink
	billingCfg    *config.BillingConfigHolder
}

func NewService(p Params) domain.Service {
	return &service{
		db:            p.DB,
		log:           p.Log.Named("quota.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		plans:         p.Plans,
		subscriptions: p.Subscriptions,
		sink:          p.Sink,
		billingCfg:    p.BillingCfg,
	}
}

// Record applies a signed delta to the counter; the result is clamped at zero.
func (s *service) Record(ctx context.Context, ref billable.Ref, feature string, delta decimal.Decimal) (domain.Usage, error) {
	return s.adjust(ctx, ref, feature, func(used decimal.Decimal) decimal.Decimal {
		next := used.Add(delta)
		if next.Sign() < 0 {
			return decimal.Zero
		}
		return next
	})
}

func (s *service) Set(ctx context.Context, ref billable.Ref, feature string, value decimal.Decimal) (domain.Usage, error) {
	if value.Sign() < 0 {
		return domain.Usage{}, domain.ErrInvalidDelta
	}
	return s.adjust(ctx, ref, feature, func(decimal.Decimal) decimal.Decimal {
		return value
	})
}

func (s *service) Decrement(ctx context.Context, ref billable.Ref, feature string, delta decimal.Decimal) (domain.Usage, error) {
	if delta.Sign() < 0 {
		return domain.Usage{}, domain.ErrInvalidDelta
	}
	return s.adjust(ctx, ref, feature, func(used decimal.Decimal) decimal.Decimal {
		next := used.Sub(delta)
		if next.Sign() < 0 {
			return decimal.Zero
		}
		return next
	})
}

// adjust applies fn to the usage counter under a row lock and runs the
// threshold bookkeeping against the combined plan limits.
func (s *service) adjust(ctx context.Context, ref billable.Ref, feature string, fn func(decimal.Decimal) decimal.Decimal) (domain.Usage, error) {
	if err := ref.Validate(); err != nil {
		return domain.Usage{}, err
	}

	limits, err := s.CombinedLimits(ctx, ref)
	if err != nil && !errors.Is(err, domain.ErrNoSubscription) {
		return domain.Usage{}, err
	}
	limit, haveLimit := limits[feature]

	now := s.clock.Now()
	var usage domain.Usage
	var warnings []int
	exceeded := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindForUpdate(ctx, tx, ref, feature)
		if err != nil {
			return err
		}
		if found == nil {
			found = &domain.Usage{
				ID:        s.genID.Generate(),
				Billable:  ref,
				Feature:   feature,
				Used:      decimal.Zero,
				CreatedAt: now,
			}
			if err := s.repo.Insert(ctx, tx, found); err != nil {
				return err
			}
		}

		previous := found.Used
		found.Used = fn(found.Used)
		found.UpdatedAt = now

		if haveLimit && !limit.Unlimited {
			warnings, exceeded = s.runThresholds(found, limit.Amount, previous, now)
		}
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		usage = *found
		return nil
	})
	if err != nil {
		return domain.Usage{}, err
	}

	for _, threshold := range warnings {
		s.sink.Publish(ctx, events.QuotaWarning{
			BillableKind: ref.Kind,
			BillableID:   ref.ID,
			Feature:      feature,
			Threshold:    threshold,
			Used:         usage.Used,
			Limit:        limit.Amount,
		})
	}
	if exceeded {
		s.sink.Publish(ctx, events.QuotaExceeded{
			BillableKind: ref.Kind,
			BillableID:   ref.ID,
			Feature:      feature,
			Used:         usage.Used,
			Limit:        limit.Amount,
			Overage:      usage.Used.Sub(limit.Amount),
		})
	}
	return usage, nil
}

// runThresholds updates warning state for the new usage value. Crossing the
// limit stamps LastExceededAt and suppresses further warning levels; a
// decrease that lands under the limit clears the whole warned set so every
// threshold rearms for the next climb.
func (s *service) runThresholds(usage *domain.Usage, limit, previous decimal.Decimal, now time.Time) (warnings []int, exceeded bool) {
	if limit.Sign() <= 0 {
		if usage.Used.Sign() > 0 {
			if usage.LastExceededAt == nil {
				usage.LastExceededAt = &now
				return nil, true
			}
		}
		return nil, false
	}

	if usage.Used.LessThan(limit) && usage.Used.LessThan(previous) {
		usage.WarnedThresholds = nil
		usage.LastExceededAt = nil
		return nil, false
	}

	if usage.Used.GreaterThan(limit) {
		if usage.LastExceededAt == nil {
			usage.LastExceededAt = &now
			return nil, true
		}
		return nil, false
	}

	thresholds := append([]int(nil), s.billingCfg.Get().Quota.WarningThresholds...)
	sort.Ints(thresholds)
	pct := usage.Used.Mul(hundred).Div(limit)
	for _, threshold := range thresholds {
		if usage.HasWarned(threshold) {
			continue
		}
		if pct.GreaterThanOrEqual(decimal.NewFromInt(int64(threshold))) {
			usage.WarnedThresholds = append(usage.WarnedThresholds, threshold)
			usage.LastWarningAt = &now
			warnings = append(warnings, threshold)
		}
	}
	return warnings, false
}

func (s *service) Reset(ctx context.Context, ref billable.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	return s.repo.ResetAll(ctx, s.db, ref)
}

func (s *service) Remaining(ctx context.Context, ref billable.Ref, feature string) (domain.Limit, error) {
	limits, err := s.CombinedLimits(ctx, ref)
	if err != nil {
		return domain.Limit{}, err
	}
	limit, ok := limits[feature]
	if !ok {
		return domain.Limit{Amount: decimal.Zero}, nil
	}
	if limit.Unlimited {
		return limit, nil
	}

	usage, err := s.repo.Find(ctx, s.db, ref, feature)
	if err != nil {
		return domain.Limit{}, err
	}
	used := decimal.Zero
	if usage != nil {
		used = usage.Used
	}
	remaining := limit.Amount.Sub(used)
	if remaining.Sign() < 0 {
		remaining = decimal.Zero
	}
	return domain.Limit{Amount: remaining}, nil
}

func (s *service) CanUse(ctx context.Context, ref billable.Ref, feature string, delta decimal.Decimal) error {
	limits, err := s.CombinedLimits(ctx, ref)
	if err != nil {
		return err
	}
	limit, ok := limits[feature]
	if !ok {
		return domain.ErrQuotaExceeded
	}
	if limit.Unlimited {
		return nil
	}

	usage, err := s.repo.Find(ctx, s.db, ref, feature)
	if err != nil {
		return err
	}
	used := decimal.Zero
	if usage != nil {
		used = usage.Used
	}
	if used.Add(delta).GreaterThan(limit.Amount) {
		return domain.ErrQuotaExceeded
	}
	return nil
}

func (s *service) CombinedLimits(ctx context.Context, ref billable.Ref) (map[string]domain.Limit, error) {
	sub, err := s.subscriptions.GetByBillable(ctx, ref)
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
			return nil, domain.ErrNoSubscription
		}
		return nil, err
	}

	limits := make(map[string]domain.Limit)
	for _, item := range sub.Items {
		plan, err := s.plans.GetByID(ctx, item.PlanID.String())
		if err != nil {
			return nil, err
		}
		// Plans that declare no limits contribute nothing, not even to
		// features they share with other plans.
		if !plan.HasLimits() {
			continue
		}
		qty := int64(item.Quantity)
		if qty < 1 {
			qty = 1
		}
		for feature := range plan.Limits {
			amount, unlimited := plan.LimitFor(feature)
			current := limits[feature]
			if unlimited || current.Unlimited {
				limits[feature] = domain.Limit{Unlimited: true}
				continue
			}
			limits[feature] = domain.Limit{Amount: current.Amount.Add(amount.Mul(decimal.NewFromInt(qty)))}
		}
	}
	return limits, nil
}

func (s *service) List(ctx context.Context, ref billable.Ref) ([]domain.Usage, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, s.db, ref)
}

var hundred = decimal.NewFromInt(100)
