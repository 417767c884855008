package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	creditdomain "github.com/smallbiznis/billing/internal/credit/domain"
	"github.com/smallbiznis/billing/internal/events"
	invoicedomain "github.com/smallbiznis/billing/internal/invoice/domain"
	plandomain "github.com/smallbiznis/billing/internal/plan/domain"
	"github.com/smallbiznis/billing/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *service) ChangePlan(ctx context.Context, id, planCode string, opts domain.ChangePlanOptions) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}

	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Subscription{}, err
	}
	base, err := s.basePlan(ctx, s.db, subID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if base == nil {
		return domain.Subscription{}, domain.ErrNoBasePlan
	}
	target, err := s.plans.GetByCode(ctx, planCode)
	if err != nil {
		return domain.Subscription{}, err
	}
	if target.Type != plandomain.PlanTypePlan {
		return domain.Subscription{}, plandomain.ErrInvalidPlan
	}
	if target.ID == base.ID {
		return domain.Subscription{}, domain.ErrSamePlan
	}

	scheduled := base.ChangeBehavior == plandomain.ChangeScheduled
	if opts.Scheduled != nil {
		scheduled = *opts.Scheduled
	}
	if scheduled {
		return s.SchedulePlanChange(ctx, id, planCode)
	}

	prorate := base.ProrateChanges
	if opts.Prorate != nil {
		prorate = *opts.Prorate
	}
	return s.changePlanNow(ctx, sub, *base, target, prorate)
}

// changePlanNow swaps the base plan in place. The billing period is kept;
// proration settles the difference for the rest of it.
func (s *service) changePlanNow(ctx context.Context, sub domain.Subscription, base, target plandomain.Plan, prorate bool) (domain.Subscription, error) {
	now := s.clock.Now()

	var preview domain.PlanChangePreview
	if prorate && !sub.IsOnTrial(now) {
		preview = s.quote(sub, base, target)
	}

	var updated domain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrSubscriptionNotFound
		}
		if found.Status == domain.StatusCanceled {
			return domain.ErrAlreadyCanceled
		}

		items, err := s.repo.FindItems(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		var baseItem *domain.SubscriptionItem
		for i := range items {
			if items[i].PlanID == base.ID {
				baseItem = &items[i]
				break
			}
		}
		if baseItem == nil {
			return domain.ErrNoBasePlan
		}
		if err := s.repo.DeleteItem(ctx, tx, baseItem.ID); err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, []domain.SubscriptionItem{{
			ID:             s.genID.Generate(),
			SubscriptionID: sub.ID,
			PlanID:         target.ID,
			Quantity:       baseItem.Quantity,
			CreatedAt:      now,
			UpdatedAt:      now,
		}}); err != nil {
			return err
		}

		previousPlanID := base.ID
		found.PreviousPlanID = &previousPlanID
		found.PlanChangedAt = &now
		found.ScheduledPlanID = nil
		found.ScheduledChangeAt = nil
		found.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		updated = *found
		return nil
	})
	if err != nil {
		return domain.Subscription{}, err
	}

	if err := s.settleProration(ctx, updated, target, preview); err != nil {
		s.log.Error("failed to settle proration",
			zap.Error(err),
			zap.String("subscription_id", updated.ID.String()),
		)
	}

	s.sink.Publish(ctx, events.PlanChanged{
		SubscriptionID: updated.ID.String(),
		FromPlanCode:   base.Code,
		ToPlanCode:     target.Code,
		Prorated:       preview.NetAmount.Sign() != 0,
	})
	s.log.Info("plan changed",
		zap.String("subscription_id", updated.ID.String()),
		zap.String("from", base.Code),
		zap.String("to", target.Code),
	)
	return s.GetByID(ctx, updated.ID.String())
}

// settleProration invoices a net upgrade charge or credits a net downgrade.
func (s *service) settleProration(ctx context.Context, sub domain.Subscription, target plandomain.Plan, preview domain.PlanChangePreview) error {
	net := preview.NetAmount
	switch {
	case net.Sign() > 0:
		periodStart := sub.CurrentPeriodStart
		periodEnd := sub.CurrentPeriodEnd
		planID := target.ID
		_, err := s.invoices.Create(ctx, invoicedomain.CreateRequest{
			Billable:       sub.Billable,
			CustomerID:     sub.CustomerID.String(),
			SubscriptionID: sub.ID.String(),
			Currency:       target.Currency,
			PeriodStart:    &periodStart,
			PeriodEnd:      &periodEnd,
			Lines: []invoicedomain.LineInput{{
				PlanID:      &planID,
				Description: "Plan change adjustment",
				Quantity:    1,
				UnitPrice:   net,
				IsProration: true,
				PeriodStart: &periodStart,
				PeriodEnd:   &periodEnd,
			}},
			ApplyCredit: true,
		})
		return err
	case net.Sign() < 0:
		_, err := s.credits.Add(ctx, creditdomain.AddRequest{
			CustomerID:  sub.CustomerID.String(),
			Type:        creditdomain.TypeProration,
			Amount:      net.Neg(),
			Currency:    target.Currency,
			Description: "Unused time on previous plan",
			SourceType:  "plan_change",
			SourceID:    sub.ID.String() + ":" + s.clock.Now().Format("20060102150405"),
		})
		return err
	default:
		return nil
	}
}

// quote computes the proration amounts for the rest of the current period.
func (s *service) quote(sub domain.Subscription, base, target plandomain.Plan) domain.PlanChangePreview {
	t := s.clock.Now()
	periodDays := int(sub.CurrentPeriodEnd.Sub(sub.CurrentPeriodStart).Hours() / 24)
	remainingDays := int(sub.CurrentPeriodEnd.Sub(t).Hours() / 24)
	if remainingDays < 0 {
		remainingDays = 0
	}
	if remainingDays > periodDays {
		remainingDays = periodDays
	}

	credit := decimal.Zero
	charge := decimal.Zero
	if periodDays > 0 && remainingDays > 0 {
		ratio := decimal.NewFromInt(int64(remainingDays)).Div(decimal.NewFromInt(int64(periodDays)))
		credit = base.Price.Mul(ratio).Round(2)
		charge = target.Price.Mul(ratio).Round(2)
	}
	return domain.PlanChangePreview{
		FromPlanCode:  base.Code,
		ToPlanCode:    target.Code,
		RemainingDays: remainingDays,
		PeriodDays:    periodDays,
		CreditAmount:  credit,
		ChargeAmount:  charge,
		NetAmount:     charge.Sub(credit),
		Currency:      target.Currency,
		IsUpgrade:     target.Price.GreaterThan(base.Price),
		IsDowngrade:   target.Price.LessThan(base.Price),
	}
}

func (s *service) PreviewPlanChange(ctx context.Context, id, planCode string) (domain.PlanChangePreview, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.PlanChangePreview{}, domain.ErrSubscriptionNotFound
	}
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.PlanChangePreview{}, err
	}
	base, err := s.basePlan(ctx, s.db, subID)
	if err != nil {
		return domain.PlanChangePreview{}, err
	}
	if base == nil {
		return domain.PlanChangePreview{}, domain.ErrNoBasePlan
	}
	target, err := s.plans.GetByCode(ctx, planCode)
	if err != nil {
		return domain.PlanChangePreview{}, err
	}
	if target.ID == base.ID {
		return domain.PlanChangePreview{}, domain.ErrSamePlan
	}
	return s.quote(sub, *base, target), nil
}

func (s *service) SchedulePlanChange(ctx context.Context, id, planCode string) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	target, err := s.plans.GetByCode(ctx, planCode)
	if err != nil {
		return domain.Subscription{}, err
	}
	if target.Type != plandomain.PlanTypePlan {
		return domain.Subscription{}, plandomain.ErrInvalidPlan
	}
	base, err := s.basePlan(ctx, s.db, subID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if base == nil {
		return domain.Subscription{}, domain.ErrNoBasePlan
	}
	if base.ID == target.ID {
		return domain.Subscription{}, domain.ErrSamePlan
	}

	now := s.clock.Now()
	var sub domain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrSubscriptionNotFound
		}
		if found.Status == domain.StatusCanceled {
			return domain.ErrAlreadyCanceled
		}
		targetID := target.ID
		changeAt := found.CurrentPeriodEnd
		found.ScheduledPlanID = &targetID
		found.ScheduledChangeAt = &changeAt
		found.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		sub = *found
		return nil
	})
	if err != nil {
		return domain.Subscription{}, err
	}

	s.sink.Publish(ctx, events.PlanChangeScheduled{
		SubscriptionID: sub.ID.String(),
		ToPlanCode:     target.Code,
		EffectiveAt:    *sub.ScheduledChangeAt,
	})
	return sub, nil
}

func (s *service) ApplyScheduledPlanChange(ctx context.Context, id string) (domain.Subscription, error) {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub.ScheduledPlanID == nil || sub.ScheduledChangeAt == nil {
		return domain.Subscription{}, domain.ErrNoScheduledChange
	}
	now := s.clock.Now()
	if now.Before(*sub.ScheduledChangeAt) {
		return sub, nil
	}

	base, err := s.basePlan(ctx, s.db, sub.ID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if base == nil {
		return domain.Subscription{}, domain.ErrNoBasePlan
	}
	target, err := s.plans.GetByID(ctx, sub.ScheduledPlanID.String())
	if err != nil {
		return domain.Subscription{}, err
	}

	// The change lands on the period boundary, so there is nothing to
	// prorate.
	return s.changePlanNow(ctx, sub, *base, target, false)
}

func (s *service) CancelScheduledPlanChange(ctx context.Context, id string) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}

	var sub domain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrSubscriptionNotFound
		}
		if found.ScheduledPlanID == nil {
			return domain.ErrNoScheduledChange
		}
		found.ScheduledPlanID = nil
		found.ScheduledChangeAt = nil
		found.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		sub = *found
		return nil
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}
