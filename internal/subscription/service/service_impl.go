package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/billable"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	creditdomain "github.com/smallbiznis/billing/internal/credit/domain"
	customerdomain "github.com/smallbiznis/billing/internal/customer/domain"
	discountdomain "github.com/smallbiznis/billing/internal/discount/domain"
	"github.com/smallbiznis/billing/internal/events"
	invoicedomain "github.com/smallbiznis/billing/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/billing/internal/payment/domain"
	plandomain "github.com/smallbiznis/billing/internal/plan/domain"
	"github.com/smallbiznis/billing/internal/subscription/domain"
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
	Plans      plandomain.Service
	Customers  customerdomain.Service
	Discounts  discountdomain.Service
	Invoices   invoicedomain.Service
	Credits    creditdomain.Service
	Gateway    paymentdomain.Gateway `optional:"true"`
	Sink       events.Sink
	BillingCfg *config.BillingConfigHolder
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	plans      plandomain.Service
	customers  customerdomain.Service
	discounts  discountdomain.Service
	invoices   invoicedomain.Service
	credits    creditdomain.Service
	gateway    paymentdomain.Gateway
	sink       events.Sink
	billingCfg *config.BillingConfigHolder
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("subscription.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		plans:      p.Plans,
		customers:  p.Customers,
		discounts:  p.Discounts,
		invoices:   p.Invoices,
		credits:    p.Credits,
		gateway:    p.Gateway,
		sink:       p.Sink,
		billingCfg: p.BillingCfg,
	}
}

func (s *service) Subscribe(ctx context.Context, req domain.SubscribeRequest) (domain.Subscription, error) {
	if err := req.Billable.Validate(); err != nil {
		return domain.Subscription{}, err
	}
	if len(req.PlanCodes) == 0 {
		return domain.Subscription{}, domain.ErrNoBasePlan
	}

	plans := make([]plandomain.Plan, 0, len(req.PlanCodes))
	var base *plandomain.Plan
	for _, code := range req.PlanCodes {
		plan, err := s.plans.GetByCode(ctx, code)
		if err != nil {
			return domain.Subscription{}, err
		}
		plans = append(plans, plan)
		if plan.Type == plandomain.PlanTypePlan {
			if base != nil {
				return domain.Subscription{}, domain.ErrNoBasePlan
			}
			p := plan
			base = &p
		}
	}
	if base == nil {
		return domain.Subscription{}, domain.ErrAddonRequiresBasePlan
	}

	existing, err := s.repo.FindActiveByBillable(ctx, s.db, req.Billable)
	if err != nil {
		return domain.Subscription{}, err
	}
	if existing != nil {
		return domain.Subscription{}, domain.ErrAlreadySubscribed
	}

	customer, err := s.customers.GetOrCreate(ctx, customerdomain.GetOrCreateRequest{
		Billable: req.Billable,
		Currency: base.Currency,
	})
	if err != nil {
		return domain.Subscription{}, err
	}

	now := s.clock.Now()
	trialDays := base.TrialPeriodDays
	if req.TrialPeriodDays != nil {
		trialDays = *req.TrialPeriodDays
	}

	sub := domain.Subscription{
		ID:                 s.genID.Generate(),
		Billable:           req.Billable,
		CustomerID:         customer.ID,
		Status:             domain.StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   base.PeriodEnd(now),
		Metadata:           req.Metadata,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if trialDays > 0 {
		trialEnd := now.AddDate(0, 0, trialDays)
		sub.Status = domain.StatusTrialing
		sub.TrialEndsAt = &trialEnd
	}

	items := make([]domain.SubscriptionItem, 0, len(plans))
	for _, plan := range plans {
		qty := 1
		if req.Quantity != nil {
			if q, ok := req.Quantity[plan.Code]; ok && q > 0 {
				qty = q
			}
		}
		items = append(items, domain.SubscriptionItem{
			ID:             s.genID.Generate(),
			SubscriptionID: sub.ID,
			PlanID:         plan.ID,
			Quantity:       qty,
			TrialEndsAt:    sub.TrialEndsAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &sub); err != nil {
			return err
		}
		return s.repo.InsertItems(ctx, tx, items)
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	sub.Items = items

	s.syncToGateway(ctx, &sub, customer, plans)

	if sub.Status == domain.StatusActive {
		if err := s.issuePeriodInvoice(ctx, sub, plans); err != nil {
			s.log.Error("failed to issue first invoice",
				zap.Error(err),
				zap.String("subscription_id", sub.ID.String()),
			)
		}
	}

	s.sink.Publish(ctx, events.SubscriptionCreated{
		SubscriptionID: sub.ID.String(),
		BillableKind:   sub.Billable.Kind,
		BillableID:     sub.Billable.ID,
		Status:         string(sub.Status),
		PlanCodes:      req.PlanCodes,
	})
	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("status", string(sub.Status)),
		zap.Strings("plan_codes", req.PlanCodes),
	)
	return sub, nil
}

// syncToGateway pushes the new subscription to the payment processor. A
// processor failure never fails the local operation.
func (s *service) syncToGateway(ctx context.Context, sub *domain.Subscription, customer customerdomain.Customer, plans []plandomain.Plan) {
	if s.gateway == nil {
		return
	}

	providerCustomerID := ""
	if customer.ProviderCustomerID != nil {
		providerCustomerID = *customer.ProviderCustomerID
	}
	if providerCustomerID == "" {
		id, err := s.gateway.SyncCustomer(ctx, paymentdomain.GatewayCustomer{
			ID:       customer.ID.String(),
			Name:     customer.Name,
			Email:    customer.Email,
			Currency: customer.Currency,
		})
		if err != nil {
			s.log.Warn("gateway customer sync failed", zap.Error(err))
			return
		}
		if id != "" {
			providerCustomerID = id
			if err := s.customers.SetProviderCustomerID(ctx, customer.ID.String(), id); err != nil {
				s.log.Warn("failed to store provider customer id", zap.Error(err))
			}
		}
	}

	codes := make([]string, 0, len(plans))
	for _, plan := range plans {
		codes = append(codes, plan.Code)
	}
	var trialEndsAt *int64
	if sub.TrialEndsAt != nil {
		unix := sub.TrialEndsAt.Unix()
		trialEndsAt = &unix
	}
	providerSubID, err := s.gateway.CreateSubscription(ctx, paymentdomain.GatewaySubscription{
		SubscriptionID:     sub.ID.String(),
		ProviderCustomerID: providerCustomerID,
		PlanCodes:          codes,
		TrialEndsAt:        trialEndsAt,
	})
	if err != nil {
		s.log.Warn("gateway subscription sync failed", zap.Error(err))
		return
	}
	if providerSubID != "" {
		sub.ProviderSubscriptionID = &providerSubID
		sub.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, s.db, sub); err != nil {
			s.log.Warn("failed to store provider subscription id", zap.Error(err))
		}
	}
}

// issuePeriodInvoice bills the current period off the subscription's items.
func (s *service) issuePeriodInvoice(ctx context.Context, sub domain.Subscription, plans []plandomain.Plan) error {
	items := sub.Items
	if items == nil {
		var err error
		items, err = s.repo.FindItems(ctx, s.db, sub.ID)
		if err != nil {
			return err
		}
	}
	byID := make(map[snowflake.ID]plandomain.Plan, len(plans))
	for _, plan := range plans {
		byID[plan.ID] = plan
	}

	periodStart := sub.CurrentPeriodStart
	periodEnd := sub.CurrentPeriodEnd
	currency := ""
	lines := make([]invoicedomain.LineInput, 0, len(items))
	for _, item := range items {
		plan, ok := byID[item.PlanID]
		if !ok {
			loaded, err := s.plans.GetByID(ctx, item.PlanID.String())
			if err != nil {
				return err
			}
			plan = loaded
			byID[plan.ID] = plan
		}
		if currency == "" {
			currency = plan.Currency
		}
		planID := item.PlanID
		lines = append(lines, invoicedomain.LineInput{
			PlanID:      &planID,
			Description: plan.Name,
			Quantity:    item.Quantity,
			UnitPrice:   plan.Price,
			PeriodStart: &periodStart,
			PeriodEnd:   &periodEnd,
		})
	}

	discounts, err := s.discounts.ActiveForSubscription(ctx, sub.ID.String())
	if err != nil {
		return err
	}
	_, err = s.invoices.Create(ctx, invoicedomain.CreateRequest{
		Billable:       sub.Billable,
		CustomerID:     sub.CustomerID.String(),
		SubscriptionID: sub.ID.String(),
		Currency:       currency,
		PeriodStart:    &periodStart,
		PeriodEnd:      &periodEnd,
		Lines:          lines,
		Discounts:      discounts,
		ApplyCredit:    true,
	})
	if err != nil {
		return err
	}
	if len(discounts) > 0 {
		if derr := s.discounts.RecordUse(ctx, sub.ID.String()); derr != nil {
			s.log.Warn("failed to count discount use",
				zap.Error(derr),
				zap.String("subscription_id", sub.ID.String()),
			)
		}
	}
	return nil
}

func (s *service) GetByID(ctx context.Context, id string) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	sub, err := s.repo.FindByID(ctx, s.db, subID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub == nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	items, err := s.repo.FindItems(ctx, s.db, subID)
	if err != nil {
		return domain.Subscription{}, err
	}
	sub.Items = items
	return *sub, nil
}

func (s *service) GetByBillable(ctx context.Context, ref billable.Ref) (domain.Subscription, error) {
	if err := ref.Validate(); err != nil {
		return domain.Subscription{}, err
	}
	sub, err := s.repo.FindActiveByBillable(ctx, s.db, ref)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub == nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	items, err := s.repo.FindItems(ctx, s.db, sub.ID)
	if err != nil {
		return domain.Subscription{}, err
	}
	sub.Items = items
	return *sub, nil
}

func (s *service) Cancel(ctx context.Context, id string, opts domain.CancelOptions) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
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
		if found.Status == domain.StatusCanceled || found.CanceledAt != nil {
			return domain.ErrAlreadyCanceled
		}

		immediately, err := s.cancelImmediately(ctx, tx, found, opts)
		if err != nil {
			return err
		}
		if immediately {
			if !found.CanTransition(domain.StatusCanceled) {
				return domain.ErrInvalidTransition
			}
			found.Status = domain.StatusCanceled
			found.CanceledAt = &now
			found.EndsAt = &now
		} else {
			periodEnd := found.CurrentPeriodEnd
			found.CanceledAt = &now
			found.EndsAt = &periodEnd
		}
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

	if s.gateway != nil && sub.ProviderSubscriptionID != nil {
		atPeriodEnd := sub.Status != domain.StatusCanceled
		if err := s.gateway.CancelSubscription(ctx, *sub.ProviderSubscriptionID, atPeriodEnd); err != nil {
			s.log.Warn("gateway cancel failed", zap.Error(err))
		}
	}

	s.sink.Publish(ctx, events.SubscriptionCanceled{
		SubscriptionID: sub.ID.String(),
		Immediately:    sub.Status == domain.StatusCanceled,
		EndsAt:         sub.EndsAt,
	})
	return sub, nil
}

// cancelImmediately resolves the effective cancellation mode from the
// request and the base plan's behavior.
func (s *service) cancelImmediately(ctx context.Context, tx *gorm.DB, sub *domain.Subscription, opts domain.CancelOptions) (bool, error) {
	if opts.Immediately != nil {
		return *opts.Immediately, nil
	}
	base, err := s.basePlan(ctx, tx, sub.ID)
	if err != nil {
		return false, err
	}
	if base == nil {
		return s.billingCfg.Get().Plans.CancellationBehavior == string(plandomain.CancelImmediately), nil
	}
	return base.CancellationBehavior == plandomain.CancelImmediately, nil
}

// basePlan returns the subscription's base plan, or nil when it only has
// addon items.
func (s *service) basePlan(ctx context.Context, db *gorm.DB, subID snowflake.ID) (*plandomain.Plan, error) {
	items, err := s.repo.FindItems(ctx, db, subID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		plan, err := s.plans.GetByID(ctx, item.PlanID.String())
		if err != nil {
			return nil, err
		}
		if plan.Type == plandomain.PlanTypePlan {
			return &plan, nil
		}
	}
	return nil, nil
}

func (s *service) Resume(ctx context.Context, id string) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
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
		if !found.IsOnGracePeriod(now) {
			return domain.ErrNotOnGracePeriod
		}
		found.CanceledAt = nil
		found.EndsAt = nil
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

	s.sink.Publish(ctx, events.SubscriptionResumed{SubscriptionID: sub.ID.String()})
	return sub, nil
}

func (s *service) AddAddon(ctx context.Context, id, addonCode string) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	addon, err := s.plans.GetByCode(ctx, addonCode)
	if err != nil {
		return domain.Subscription{}, err
	}
	if addon.Type != plandomain.PlanTypeAddon {
		return domain.Subscription{}, plandomain.ErrInvalidPlan
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrSubscriptionNotFound
		}
		base, err := s.basePlan(ctx, tx, subID)
		if err != nil {
			return err
		}
		if base == nil {
			return domain.ErrAddonRequiresBasePlan
		}
		return s.repo.InsertItems(ctx, tx, []domain.SubscriptionItem{{
			ID:             s.genID.Generate(),
			SubscriptionID: subID,
			PlanID:         addon.ID,
			Quantity:       1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}})
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	return s.GetByID(ctx, id)
}

func (s *service) RemoveAddon(ctx context.Context, id, addonCode string) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	addon, err := s.plans.GetByCode(ctx, addonCode)
	if err != nil {
		return domain.Subscription{}, err
	}
	if addon.Type != plandomain.PlanTypeAddon {
		return domain.Subscription{}, plandomain.ErrInvalidPlan
	}

	items, err := s.repo.FindItems(ctx, s.db, subID)
	if err != nil {
		return domain.Subscription{}, err
	}
	for _, item := range items {
		if item.PlanID == addon.ID {
			if err := s.repo.DeleteItem(ctx, s.db, item.ID); err != nil {
				return domain.Subscription{}, err
			}
			return s.GetByID(ctx, id)
		}
	}
	return domain.Subscription{}, plandomain.ErrPlanNotFound
}

func (s *service) ApplyDiscount(ctx context.Context, id, code string) error {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	codes, err := s.planCodes(ctx, sub)
	if err != nil {
		return err
	}
	_, err = s.discounts.Apply(ctx, discountdomain.ApplyRequest{
		SubscriptionID: id,
		Code:           code,
		PlanCodes:      codes,
		PeriodEnd:      sub.CurrentPeriodEnd,
	})
	if err != nil {
		return err
	}

	if s.gateway != nil && sub.ProviderSubscriptionID != nil {
		discount, derr := s.discounts.GetByCode(ctx, code)
		if derr == nil {
			providerDiscountID := ""
			if discount.ProviderDiscountID != nil {
				providerDiscountID = *discount.ProviderDiscountID
			}
			if providerDiscountID == "" {
				providerDiscountID, derr = s.gateway.SyncDiscount(ctx, paymentdomain.GatewayDiscount{
					ID:       discount.ID.String(),
					Code:     discount.Code,
					Type:     string(discount.Type),
					Value:    discount.Value,
					Currency: discount.Currency,
				})
				if derr != nil {
					s.log.Warn("gateway discount sync failed", zap.Error(derr))
					return nil
				}
			}
			if providerDiscountID != "" {
				if derr := s.gateway.ApplyDiscount(ctx, *sub.ProviderSubscriptionID, providerDiscountID); derr != nil {
					s.log.Warn("gateway discount apply failed", zap.Error(derr))
				}
			}
		}
	}
	return nil
}

func (s *service) RemoveDiscount(ctx context.Context, id, code string) error {
	if err := s.discounts.Remove(ctx, id, code); err != nil {
		return err
	}

	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return nil
	}
	if s.gateway != nil && sub.ProviderSubscriptionID != nil {
		discount, derr := s.discounts.GetByCode(ctx, code)
		if derr == nil && discount.ProviderDiscountID != nil {
			if derr := s.gateway.RemoveDiscount(ctx, *sub.ProviderSubscriptionID, *discount.ProviderDiscountID); derr != nil {
				s.log.Warn("gateway discount remove failed", zap.Error(derr))
			}
		}
	}
	return nil
}

func (s *service) planCodes(ctx context.Context, sub domain.Subscription) ([]string, error) {
	items := sub.Items
	if items == nil {
		var err error
		items, err = s.repo.FindItems(ctx, s.db, sub.ID)
		if err != nil {
			return nil, err
		}
	}
	codes := make([]string, 0, len(items))
	for _, item := range items {
		plan, err := s.plans.GetByID(ctx, item.PlanID.String())
		if err != nil {
			return nil, err
		}
		codes = append(codes, plan.Code)
	}
	return codes, nil
}

func (s *service) Renew(ctx context.Context, id string) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
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
		if found.Status != domain.StatusActive {
			return domain.ErrInvalidTransition
		}
		if found.CanceledAt != nil {
			return domain.ErrAlreadyCanceled
		}
		base, err := s.basePlan(ctx, tx, subID)
		if err != nil {
			return err
		}
		if base == nil {
			return domain.ErrNoBasePlan
		}

		found.CurrentPeriodStart = found.CurrentPeriodEnd
		found.CurrentPeriodEnd = base.PeriodEnd(found.CurrentPeriodStart)
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

	if err := s.issuePeriodInvoice(ctx, sub, nil); err != nil {
		s.log.Error("failed to issue renewal invoice",
			zap.Error(err),
			zap.String("subscription_id", sub.ID.String()),
		)
	}

	s.sink.Publish(ctx, events.SubscriptionRenewed{
		SubscriptionID: sub.ID.String(),
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
	})
	return sub, nil
}

func (s *service) Activate(ctx context.Context, id string) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
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
		if found.Status == domain.StatusActive {
			sub = *found
			return nil
		}
		if !found.CanTransition(domain.StatusActive) {
			return domain.ErrInvalidTransition
		}
		found.Status = domain.StatusActive
		found.FailedPaymentCount = 0
		found.LastFailedPaymentAt = nil
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
	return sub, nil
}

func (s *service) MarkPaymentFailed(ctx context.Context, id string) (domain.Subscription, error) {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
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
		found.FailedPaymentCount++
		found.LastFailedPaymentAt = &now
		if found.Status != domain.StatusPastDue && found.CanTransition(domain.StatusPastDue) {
			found.Status = domain.StatusPastDue
		}
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
	return sub, nil
}

func (s *service) SyncPeriods(ctx context.Context, id string, periodStart, periodEnd time.Time) error {
	subID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.ErrSubscriptionNotFound
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrSubscriptionNotFound
		}
		found.CurrentPeriodStart = periodStart
		found.CurrentPeriodEnd = periodEnd
		found.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, found)
	})
}
