package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/discount/domain"
	"github.com/smallbiznis/billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("discount.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateDiscountRequest) (domain.Discount, error) {
	if req.Code == "" || req.Name == "" {
		return domain.Discount{}, domain.ErrInvalidDiscount
	}
	switch req.Type {
	case domain.TypePercentage:
		if req.Value.Sign() <= 0 || req.Value.GreaterThan(hundred) {
			return domain.Discount{}, domain.ErrInvalidDiscount
		}
	case domain.TypeFixed:
		if req.Value.Sign() <= 0 {
			return domain.Discount{}, domain.ErrInvalidDiscount
		}
	default:
		return domain.Discount{}, domain.ErrInvalidDiscount
	}
	duration := req.Duration
	if duration == "" {
		duration = domain.DurationOnce
	}
	if duration == domain.DurationRepeating && (req.DurationInMonths == nil || *req.DurationInMonths <= 0) {
		return domain.Discount{}, domain.ErrInvalidDiscount
	}

	now := s.clock.Now()
	discount := domain.Discount{
		ID:               s.genID.Generate(),
		Code:             req.Code,
		Name:             req.Name,
		Type:             req.Type,
		Value:            req.Value.Round(2),
		Currency:         req.Currency,
		Duration:         duration,
		DurationInMonths: req.DurationInMonths,
		MaxRedemptions:   req.MaxRedemptions,
		StartsAt:         req.StartsAt,
		EndsAt:           req.EndsAt,
		ApplicablePlans:  req.ApplicablePlans,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, &discount); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Discount{}, domain.ErrInvalidDiscount
		}
		return domain.Discount{}, err
	}

	s.log.Info("discount created",
		zap.String("discount_id", discount.ID.String()),
		zap.String("code", discount.Code),
	)
	return discount, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (domain.Discount, error) {
	discount, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Discount{}, err
	}
	if discount == nil {
		return domain.Discount{}, domain.ErrDiscountNotFound
	}
	return *discount, nil
}

func (s *service) Deactivate(ctx context.Context, code string) error {
	discount, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return err
	}
	if discount == nil {
		return domain.ErrDiscountNotFound
	}
	return s.repo.SetActive(ctx, s.db, discount.ID, false)
}

func (s *service) Apply(ctx context.Context, req domain.ApplyRequest) (domain.AppliedDiscount, error) {
	subID, err := snowflake.ParseString(req.SubscriptionID)
	if err != nil {
		return domain.AppliedDiscount{}, domain.ErrDiscountNotApplicable
	}

	now := s.clock.Now()
	var applied domain.AppliedDiscount
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		discount, err := s.repo.FindByCodeForUpdate(ctx, tx, req.Code)
		if err != nil {
			return err
		}
		if discount == nil || !discount.Active {
			return domain.ErrDiscountNotFound
		}
		if !discount.IsRedeemable(now) {
			return domain.ErrDiscountExpired
		}
		if !applicable(*discount, req.PlanCodes) {
			return domain.ErrDiscountNotApplicable
		}

		existing, err := s.repo.FindApplied(ctx, tx, subID, discount.ID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Active {
			return domain.ErrDiscountAlreadyApplied
		}

		expiresAt := expiryFor(*discount, req.PeriodEnd)
		if existing != nil {
			existing.AppliedAt = now
			existing.ExpiresAt = expiresAt
			existing.TotalUses = 0
			existing.Active = true
			existing.UpdatedAt = now
			if err := s.repo.UpdateApplied(ctx, tx, existing); err != nil {
				return err
			}
			applied = *existing
		} else {
			applied = domain.AppliedDiscount{
				ID:             s.genID.Generate(),
				SubscriptionID: subID,
				DiscountID:     discount.ID,
				AppliedAt:      now,
				ExpiresAt:      expiresAt,
				Active:         true,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.repo.InsertApplied(ctx, tx, &applied); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return domain.ErrDiscountAlreadyApplied
				}
				return err
			}
		}
		return s.repo.IncrementRedemptions(ctx, tx, discount.ID)
	})
	if err != nil {
		return domain.AppliedDiscount{}, err
	}

	s.log.Info("discount applied",
		zap.String("subscription_id", req.SubscriptionID),
		zap.String("code", req.Code),
	)
	return applied, nil
}

func (s *service) Remove(ctx context.Context, subscriptionID, code string) error {
	subID, err := snowflake.ParseString(subscriptionID)
	if err != nil {
		return domain.ErrDiscountNotFound
	}
	discount, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return err
	}
	if discount == nil {
		return domain.ErrDiscountNotFound
	}
	applied, err := s.repo.FindApplied(ctx, s.db, subID, discount.ID)
	if err != nil {
		return err
	}
	if applied == nil || !applied.Active {
		return domain.ErrDiscountNotFound
	}
	return s.repo.DeactivateApplied(ctx, s.db, []snowflake.ID{applied.ID}, s.clock.Now())
}

func (s *service) ActiveForSubscription(ctx context.Context, subscriptionID string) ([]domain.Discount, error) {
	subID, err := snowflake.ParseString(subscriptionID)
	if err != nil {
		return nil, nil
	}

	applied, err := s.repo.FindActiveApplied(ctx, s.db, subID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	var lapsed []snowflake.ID
	var live []domain.AppliedDiscount
	for _, a := range applied {
		if a.IsExpired(now) {
			lapsed = append(lapsed, a.ID)
			continue
		}
		live = append(live, a)
	}
	if len(lapsed) > 0 {
		if err := s.repo.DeactivateApplied(ctx, s.db, lapsed, now); err != nil {
			return nil, err
		}
	}
	if len(live) == 0 {
		return nil, nil
	}

	ids := make([]snowflake.ID, 0, len(live))
	for _, a := range live {
		ids = append(ids, a.DiscountID)
	}
	discounts, err := s.repo.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]domain.Discount, len(discounts))
	for _, d := range discounts {
		byID[d.ID] = d
	}

	// Preserve application order so stacking stays deterministic.
	var spent []snowflake.ID
	out := make([]domain.Discount, 0, len(live))
	for _, a := range live {
		d, ok := byID[a.DiscountID]
		if !ok {
			continue
		}
		if a.Exhausted(d) {
			spent = append(spent, a.ID)
			continue
		}
		out = append(out, d)
	}
	if len(spent) > 0 {
		if err := s.repo.DeactivateApplied(ctx, s.db, spent, now); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RecordUse counts a settled-or-issued invoice against every active
// application on the subscription. Applications that hit their duration are
// deactivated in the same transaction.
func (s *service) RecordUse(ctx context.Context, subscriptionID string) error {
	subID, err := snowflake.ParseString(subscriptionID)
	if err != nil {
		return nil
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.repo.FindActiveApplied(ctx, tx, subID)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(applied))
		for _, a := range applied {
			ids = append(ids, a.DiscountID)
		}
		discounts, err := s.repo.FindByIDs(ctx, tx, ids)
		if err != nil {
			return err
		}
		byID := make(map[snowflake.ID]domain.Discount, len(discounts))
		for _, d := range discounts {
			byID[d.ID] = d
		}

		for i := range applied {
			a := &applied[i]
			a.TotalUses++
			a.UpdatedAt = now
			if d, ok := byID[a.DiscountID]; ok && a.Exhausted(d) {
				a.Active = false
			}
			if err := s.repo.UpdateApplied(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func applicable(d domain.Discount, planCodes []string) bool {
	if len(d.ApplicablePlans) == 0 {
		return true
	}
	for _, code := range planCodes {
		if d.AppliesToPlan(code) {
			return true
		}
	}
	return false
}

func expiryFor(d domain.Discount, periodEnd time.Time) *time.Time {
	switch d.Duration {
	case domain.DurationOnce:
		if periodEnd.IsZero() {
			return nil
		}
		end := periodEnd
		return &end
	default:
		// Repeating and forever durations expire by use count, not by
		// wall clock.
		return nil
	}
}

var hundred = decimal.NewFromInt(100)
