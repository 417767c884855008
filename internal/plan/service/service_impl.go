package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	"github.com/smallbiznis/billing/internal/plan/domain"
	"github.com/smallbiznis/billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	BillingCfg *config.BillingConfigHolder
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	billingCfg *config.BillingConfigHolder
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("plan.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		billingCfg: p.BillingCfg,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreatePlanRequest) (domain.Plan, error) {
	if req.Name == "" {
		return domain.Plan{}, domain.ErrInvalidName
	}
	if req.Price.IsNegative() {
		return domain.Plan{}, domain.ErrInvalidPrice
	}
	switch req.Interval {
	case "", domain.IntervalMonthly, domain.IntervalYearly:
	default:
		return domain.Plan{}, domain.ErrInvalidInterval
	}

	cfg := s.billingCfg.Get()
	now := s.clock.Now()

	code := req.Code
	if code == "" {
		code = req.Name
	}
	code = slug.Make(code)

	plan := domain.Plan{
		ID:            s.genID.Generate(),
		Code:          code,
		Name:          req.Name,
		Description:   req.Description,
		Type:          req.Type,
		Price:         req.Price.Round(2),
		Currency:      req.Currency,
		Interval:      req.Interval,
		IntervalCount: req.IntervalCount,
		RequiresPlan:  req.RequiresPlan,
		Features:      req.Features,
		Limits:        req.Limits,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if plan.Type == "" {
		plan.Type = domain.PlanTypePlan
	}
	if plan.Type == domain.PlanTypeAddon && !req.RequiresPlan {
		plan.RequiresPlan = true
	}
	if plan.Currency == "" {
		plan.Currency = cfg.Currency
	}
	if plan.Interval == "" {
		plan.Interval = domain.IntervalMonthly
	}
	if plan.IntervalCount <= 0 {
		plan.IntervalCount = 1
	}

	if req.TrialPeriodDays != nil {
		plan.TrialPeriodDays = *req.TrialPeriodDays
	} else {
		plan.TrialPeriodDays = cfg.Plans.TrialPeriodDays
	}
	if req.GracePeriodDays != nil {
		plan.GracePeriodDays = *req.GracePeriodDays
	} else {
		plan.GracePeriodDays = cfg.Plans.GracePeriodDays
	}
	plan.CancellationBehavior = domain.CancellationBehavior(cfg.Plans.CancellationBehavior)
	if req.CancellationBehavior != "" {
		plan.CancellationBehavior = domain.CancellationBehavior(req.CancellationBehavior)
	}
	plan.ChangeBehavior = domain.ChangeBehavior(cfg.Plans.ChangeBehavior)
	if req.ChangeBehavior != "" {
		plan.ChangeBehavior = domain.ChangeBehavior(req.ChangeBehavior)
	}
	if req.ProrateChanges != nil {
		plan.ProrateChanges = *req.ProrateChanges
	} else {
		plan.ProrateChanges = cfg.Plans.ProrateChanges
	}

	if err := s.repo.Insert(ctx, s.db, &plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Plan{}, domain.ErrDuplicateCode
		}
		s.log.Error("failed to insert plan", zap.Error(err), zap.String("code", code))
		return domain.Plan{}, err
	}

	s.log.Info("plan created",
		zap.String("plan_id", plan.ID.String()),
		zap.String("code", plan.Code),
		zap.String("type", string(plan.Type)),
	)
	return plan, nil
}

func (s *service) GetByID(ctx context.Context, id string) (domain.Plan, error) {
	planID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Plan{}, domain.ErrPlanNotFound
	}
	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return domain.Plan{}, err
	}
	if plan == nil {
		return domain.Plan{}, domain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (domain.Plan, error) {
	plan, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Plan{}, err
	}
	if plan == nil {
		return domain.Plan{}, domain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *service) List(ctx context.Context, req domain.ListPlanRequest) ([]domain.Plan, error) {
	return s.repo.List(ctx, s.db, req)
}

func (s *service) Deactivate(ctx context.Context, id string) error {
	planID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.ErrPlanNotFound
	}
	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return err
	}
	if plan == nil {
		return domain.ErrPlanNotFound
	}
	return s.repo.SetActive(ctx, s.db, planID, false)
}
