package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/billable"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	"github.com/smallbiznis/billing/internal/customer/domain"
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
		log:        p.Log.Named("customer.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		billingCfg: p.BillingCfg,
	}
}

func (s *service) GetOrCreate(ctx context.Context, req domain.GetOrCreateRequest) (domain.Customer, error) {
	if err := req.Billable.Validate(); err != nil {
		return domain.Customer{}, err
	}

	existing, err := s.repo.FindByBillable(ctx, s.db, req.Billable)
	if err != nil {
		return domain.Customer{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	now := s.clock.Now()
	currency := req.Currency
	if currency == "" {
		currency = s.billingCfg.Get().Currency
	}
	customer := domain.Customer{
		ID:        s.genID.Generate(),
		Billable:  req.Billable,
		Name:      req.Name,
		Email:     req.Email,
		Currency:  currency,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		// Concurrent creation for the same billable loses the insert race.
		if db.IsDuplicateKeyErr(err) {
			existing, ferr := s.repo.FindByBillable(ctx, s.db, req.Billable)
			if ferr == nil && existing != nil {
				return *existing, nil
			}
		}
		return domain.Customer{}, err
	}

	s.log.Info("customer created",
		zap.String("customer_id", customer.ID.String()),
		zap.String("billable", customer.Billable.String()),
	)
	return customer, nil
}

func (s *service) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	customerID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	customer, err := s.repo.FindByID(ctx, s.db, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return *customer, nil
}

func (s *service) GetByBillable(ctx context.Context, ref billable.Ref) (domain.Customer, error) {
	if err := ref.Validate(); err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.FindByBillable(ctx, s.db, ref)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return *customer, nil
}

func (s *service) SetProviderCustomerID(ctx context.Context, id, providerCustomerID string) error {
	customer, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	customer.ProviderCustomerID = &providerCustomerID
	customer.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, &customer)
}

func (s *service) AttachPaymentMethod(ctx context.Context, customerID string, req domain.AttachPaymentMethodRequest) (domain.PaymentMethod, error) {
	customer, err := s.GetByID(ctx, customerID)
	if err != nil {
		return domain.PaymentMethod{}, err
	}
	if req.Provider == "" || req.ProviderMethodID == "" {
		return domain.PaymentMethod{}, domain.ErrInvalidPaymentMethod
	}

	now := s.clock.Now()
	method := domain.PaymentMethod{
		ID:               s.genID.Generate(),
		CustomerID:       customer.ID,
		Provider:         req.Provider,
		ProviderMethodID: req.ProviderMethodID,
		Kind:             req.Kind,
		Last4:            req.Last4,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if method.Kind == "" {
		method.Kind = domain.PaymentMethodCard
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindDefaultPaymentMethod(ctx, tx, customer.ID)
		if err != nil {
			return err
		}
		// The first method attached becomes the default.
		method.IsDefault = req.MakeDefault || existing == nil
		if method.IsDefault && existing != nil {
			if err := s.repo.ClearDefaultPaymentMethod(ctx, tx, customer.ID); err != nil {
				return err
			}
		}
		return s.repo.InsertPaymentMethod(ctx, tx, &method)
	})
	if err != nil {
		return domain.PaymentMethod{}, err
	}

	s.log.Info("payment method attached",
		zap.String("customer_id", customer.ID.String()),
		zap.String("payment_method_id", method.ID.String()),
		zap.Bool("default", method.IsDefault),
	)
	return method, nil
}

func (s *service) SetDefaultPaymentMethod(ctx context.Context, customerID, methodID string) error {
	custID, err := snowflake.ParseString(customerID)
	if err != nil {
		return domain.ErrCustomerNotFound
	}
	mID, err := snowflake.ParseString(methodID)
	if err != nil {
		return domain.ErrPaymentMethodNotFound
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.ClearDefaultPaymentMethod(ctx, tx, custID); err != nil {
			return err
		}
		return s.repo.SetDefaultPaymentMethod(ctx, tx, custID, mID)
	})
}

func (s *service) ListPaymentMethods(ctx context.Context, customerID string) ([]domain.PaymentMethod, error) {
	custID, err := snowflake.ParseString(customerID)
	if err != nil {
		return nil, domain.ErrCustomerNotFound
	}
	return s.repo.FindPaymentMethods(ctx, s.db, custID)
}

func (s *service) HasDefaultPaymentMethod(ctx context.Context, customerID string) (bool, error) {
	custID, err := snowflake.ParseString(customerID)
	if err != nil {
		return false, domain.ErrCustomerNotFound
	}
	method, err := s.repo.FindDefaultPaymentMethod(ctx, s.db, custID)
	if err != nil {
		return false, err
	}
	return method != nil, nil
}
