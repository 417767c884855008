package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/billing/internal/plan/domain"
	"github.com/smallbiznis/billing/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *service) RenewDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListDueForRenewal(ctx, s.db, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	var errs []error
	for _, id := range ids {
		if _, err := s.Renew(ctx, id.String()); err != nil {
			errs = append(errs, err)
			s.log.Error("renewal failed",
				zap.Error(err),
				zap.String("subscription_id", id.String()),
			)
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}

func (s *service) ExpireTrials(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListExpiredTrials(ctx, s.db, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	var errs []error
	for _, id := range ids {
		if err := s.expireTrial(ctx, id, now); err != nil {
			errs = append(errs, err)
			s.log.Error("trial expiry failed",
				zap.Error(err),
				zap.String("subscription_id", id.String()),
			)
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}

// expireTrial ends a trial. With a default payment method on file the
// subscription activates and the first period is invoiced; without one it
// parks as incomplete until payment details arrive.
func (s *service) expireTrial(ctx context.Context, id snowflake.ID, now time.Time) error {
	var sub domain.Subscription
	activated := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if found == nil || found.Status != domain.StatusTrialing {
			return nil
		}
		if found.TrialEndsAt == nil || now.Before(*found.TrialEndsAt) {
			return nil
		}

		hasPM, err := s.customers.HasDefaultPaymentMethod(ctx, found.CustomerID.String())
		if err != nil {
			return err
		}
		if hasPM {
			found.Status = domain.StatusActive
			activated = true
		} else {
			found.Status = domain.StatusIncomplete
		}
		found.CurrentPeriodStart = now
		base, berr := s.basePlan(ctx, tx, id)
		if berr != nil {
			s.log.Warn("base plan lookup failed during trial expiry",
				zap.Error(berr),
				zap.String("subscription_id", id.String()),
			)
		} else if base != nil {
			found.CurrentPeriodEnd = base.PeriodEnd(now)
		}
		found.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		sub = *found
		return nil
	})
	if err != nil {
		return err
	}

	if activated {
		if err := s.issuePeriodInvoice(ctx, sub, nil); err != nil {
			s.log.Error("failed to invoice after trial",
				zap.Error(err),
				zap.String("subscription_id", sub.ID.String()),
			)
		}
	}
	return nil
}

func (s *service) SuspendOverdue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListPastDue(ctx, s.db)
	if err != nil {
		return 0, err
	}

	processed := 0
	var errs []error
	for _, id := range ids {
		suspended, err := s.suspendIfBeyondGrace(ctx, id, now)
		if err != nil {
			errs = append(errs, err)
			s.log.Error("grace suspension failed",
				zap.Error(err),
				zap.String("subscription_id", id.String()),
			)
			continue
		}
		if suspended {
			processed++
		}
	}
	return processed, errors.Join(errs...)
}

// suspendIfBeyondGrace suspends a past_due subscription once the longest
// grace period across its item plans has elapsed since the last failed
// payment.
func (s *service) suspendIfBeyondGrace(ctx context.Context, id snowflake.ID, now time.Time) (bool, error) {
	suspended := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if found == nil || found.Status != domain.StatusPastDue {
			return nil
		}

		items, err := s.repo.FindItems(ctx, tx, id)
		if err != nil {
			return err
		}
		graceDays := s.billingCfg.Get().Plans.GracePeriodDays
		for _, item := range items {
			plan, err := s.plans.GetByID(ctx, item.PlanID.String())
			if err != nil {
				if errors.Is(err, plandomain.ErrPlanNotFound) {
					continue
				}
				return err
			}
			if plan.GracePeriodDays > graceDays {
				graceDays = plan.GracePeriodDays
			}
		}

		anchor := found.CurrentPeriodEnd
		if found.LastFailedPaymentAt != nil {
			anchor = *found.LastFailedPaymentAt
		}
		deadline := anchor.AddDate(0, 0, graceDays)
		if now.Before(deadline) {
			return nil
		}
		if !found.CanTransition(domain.StatusSuspended) {
			return nil
		}
		found.Status = domain.StatusSuspended
		found.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		suspended = true
		return nil
	})
	return suspended, err
}

func (s *service) ApplyDueScheduledChanges(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListDueScheduledChanges(ctx, s.db, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	var errs []error
	for _, id := range ids {
		if _, err := s.ApplyScheduledPlanChange(ctx, id.String()); err != nil {
			errs = append(errs, err)
			s.log.Error("scheduled plan change failed",
				zap.Error(err),
				zap.String("subscription_id", id.String()),
			)
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}

func (s *service) FinalizeExpiredCancellations(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListExpiredCancellations(ctx, s.db, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	var errs []error
	for _, id := range ids {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			found, err := s.repo.FindByIDForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if found == nil || found.Status == domain.StatusCanceled {
				return nil
			}
			if found.EndsAt == nil || now.Before(*found.EndsAt) {
				return nil
			}
			found.Status = domain.StatusCanceled
			found.UpdatedAt = now
			return s.repo.Update(ctx, tx, found)
		})
		if err != nil {
			errs = append(errs, err)
			s.log.Error("cancellation finalize failed",
				zap.Error(err),
				zap.String("subscription_id", id.String()),
			)
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}
