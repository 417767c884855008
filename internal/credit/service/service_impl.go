package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/credit/domain"
	"github.com/smallbiznis/billing/internal/events"
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
	Sink  events.Sink
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	sink  events.Sink
}

func NewService(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("credit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		sink:  p.Sink,
	}
}

func (s *service) Add(ctx context.Context, req domain.AddRequest) (domain.CustomerCredit, error) {
	if req.Amount.Sign() <= 0 {
		return domain.CustomerCredit{}, domain.ErrInvalidAmount
	}
	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil {
		return domain.CustomerCredit{}, domain.ErrCustomerNotFound
	}

	creditType := req.Type
	if creditType == "" {
		creditType = domain.TypeGrant
	}

	var entry domain.CustomerCredit
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.LockCustomer(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrCustomerNotFound
		}
		if req.SourceType != "" && req.SourceID != "" {
			existing, err := s.repo.FindBySource(ctx, tx, req.SourceType, req.SourceID)
			if err != nil {
				return err
			}
			if existing != nil {
				entry = *existing
				return nil
			}
		}

		balance, err := s.repo.LatestBalance(ctx, tx, customerID)
		if err != nil {
			return err
		}
		amount := req.Amount.Round(2)
		entry = domain.CustomerCredit{
			ID:            s.genID.Generate(),
			CustomerID:    customerID,
			Type:          creditType,
			Amount:        amount,
			Currency:      req.Currency,
			BalanceBefore: balance,
			BalanceAfter:  balance.Add(amount),
			Description:   req.Description,
			ExpiresAt:     req.ExpiresAt,
			Metadata:      req.Metadata,
			CreatedAt:     s.clock.Now(),
		}
		if req.SourceType != "" {
			entry.SourceType = &req.SourceType
		}
		if req.SourceID != "" {
			entry.SourceID = &req.SourceID
		}
		if err := s.repo.Insert(ctx, tx, &entry); err != nil {
			if db.IsDuplicateKeyErr(err) {
				existing, ferr := s.repo.FindBySource(ctx, tx, req.SourceType, req.SourceID)
				if ferr == nil && existing != nil {
					entry = *existing
					return nil
				}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.CustomerCredit{}, err
	}

	s.sink.Publish(ctx, events.CreditAdded{
		CustomerID: req.CustomerID,
		Amount:     entry.Amount,
		Currency:   entry.Currency,
		Balance:    entry.BalanceAfter,
	})
	return entry, nil
}

func (s *service) Deduct(ctx context.Context, req domain.DeductRequest) (domain.CustomerCredit, error) {
	if req.Amount.Sign() <= 0 {
		return domain.CustomerCredit{}, domain.ErrInvalidAmount
	}
	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil {
		return domain.CustomerCredit{}, domain.ErrCustomerNotFound
	}

	var entry domain.CustomerCredit
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.LockCustomer(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrCustomerNotFound
		}
		balance, err := s.repo.LatestBalance(ctx, tx, customerID)
		if err != nil {
			return err
		}
		amount := req.Amount.Round(2)
		if amount.GreaterThan(balance) {
			return domain.ErrInsufficientCredit
		}
		entry = domain.CustomerCredit{
			ID:            s.genID.Generate(),
			CustomerID:    customerID,
			Type:          domain.TypeDeduction,
			Amount:        amount.Neg(),
			BalanceBefore: balance,
			BalanceAfter:  balance.Sub(amount),
			Description:   req.Description,
			CreatedAt:     s.clock.Now(),
		}
		if req.SourceType != "" {
			entry.SourceType = &req.SourceType
		}
		if req.SourceID != "" {
			entry.SourceID = &req.SourceID
		}
		return s.repo.Insert(ctx, tx, &entry)
	})
	if err != nil {
		return domain.CustomerCredit{}, err
	}
	return entry, nil
}

func (s *service) Balance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	id, err := snowflake.ParseString(customerID)
	if err != nil {
		return decimal.Zero, domain.ErrCustomerNotFound
	}
	return s.repo.LatestBalance(ctx, s.db, id)
}

func (s *service) History(ctx context.Context, customerID string) ([]domain.CustomerCredit, error) {
	id, err := snowflake.ParseString(customerID)
	if err != nil {
		return nil, domain.ErrCustomerNotFound
	}
	return s.repo.List(ctx, s.db, id)
}

func (s *service) ApplyToInvoice(ctx context.Context, customerID, invoiceID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, nil
	}
	custID, err := snowflake.ParseString(customerID)
	if err != nil {
		return decimal.Zero, domain.ErrCustomerNotFound
	}

	applied := decimal.Zero
	var balanceAfter decimal.Decimal
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.LockCustomer(ctx, tx, custID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrCustomerNotFound
		}
		balance, err := s.repo.LatestBalance(ctx, tx, custID)
		if err != nil {
			return err
		}
		if balance.Sign() <= 0 {
			return nil
		}
		applied = amount.Round(2)
		if applied.GreaterThan(balance) {
			applied = balance
		}
		sourceType := "invoice"
		entry := domain.CustomerCredit{
			ID:            s.genID.Generate(),
			CustomerID:    custID,
			Type:          domain.TypeDeduction,
			Amount:        applied.Neg(),
			BalanceBefore: balance,
			BalanceAfter:  balance.Sub(applied),
			Description:   "Applied to invoice",
			SourceType:    &sourceType,
			SourceID:      &invoiceID,
			CreatedAt:     s.clock.Now(),
		}
		balanceAfter = entry.BalanceAfter
		return s.repo.Insert(ctx, tx, &entry)
	})
	if err != nil {
		return decimal.Zero, err
	}

	if applied.Sign() > 0 {
		s.sink.Publish(ctx, events.CreditApplied{
			CustomerID: customerID,
			InvoiceID:  invoiceID,
			Amount:     applied,
			Balance:    balanceAfter,
		})
	}
	return applied, nil
}

func (s *service) ExpireDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.FindExpirable(ctx, s.db, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, grant := range due {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			found, err := s.repo.LockCustomer(ctx, tx, grant.CustomerID)
			if err != nil {
				return err
			}
			if !found {
				return s.repo.MarkExpired(ctx, tx, grant.ID, now)
			}
			balance, err := s.repo.LatestBalance(ctx, tx, grant.CustomerID)
			if err != nil {
				return err
			}
			// Only the unspent part of the grant can be clawed back.
			offset := grant.Amount
			if offset.GreaterThan(balance) {
				offset = balance
			}
			if offset.Sign() > 0 {
				entry := domain.CustomerCredit{
					ID:            s.genID.Generate(),
					CustomerID:    grant.CustomerID,
					Type:          domain.TypeExpiration,
					Amount:        offset.Neg(),
					Currency:      grant.Currency,
					BalanceBefore: balance,
					BalanceAfter:  balance.Sub(offset),
					Description:   "Credit expired",
					CreatedAt:     now,
				}
				if err := s.repo.Insert(ctx, tx, &entry); err != nil {
					return err
				}
				s.sink.Publish(ctx, events.CreditExpired{
					CustomerID: grant.CustomerID.String(),
					Amount:     offset,
					Balance:    entry.BalanceAfter,
				})
			}
			return s.repo.MarkExpired(ctx, tx, grant.ID, now)
		})
		if err != nil {
			s.log.Error("failed to expire credit",
				zap.Error(err),
				zap.String("credit_id", grant.ID.String()),
			)
			continue
		}
		expired++
	}
	return expired, nil
}
