package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	creditdomain "github.com/smallbiznis/billing/internal/credit/domain"
	"github.com/smallbiznis/billing/internal/events"
	invoicedomain "github.com/smallbiznis/billing/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/billing/internal/payment/domain"
	"github.com/smallbiznis/billing/internal/refund/domain"
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
	invoices   invoicedomain.Service
	credits    creditdomain.Service
	gateway    paymentdomain.Gateway
	sink       events.Sink
	billingCfg *config.BillingConfigHolder
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("refund.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		invoices:   p.Invoices,
		credits:    p.Credits,
		gateway:    p.Gateway,
		sink:       p.Sink,
		billingCfg: p.BillingCfg,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (domain.Refund, error) {
	invoice, err := s.invoices.GetByID(ctx, req.InvoiceID)
	if err != nil {
		return domain.Refund{}, err
	}
	if invoice.Status != invoicedomain.StatusPaid {
		return domain.Refund{}, invoicedomain.ErrInvalidStatus
	}

	remaining, err := s.invoices.RemainingRefundable(ctx, req.InvoiceID)
	if err != nil {
		return domain.Refund{}, err
	}

	amount := remaining
	if req.Amount != nil {
		amount = req.Amount.Round(2)
	}
	if amount.Sign() <= 0 {
		return domain.Refund{}, domain.ErrInvalidAmount
	}
	if amount.GreaterThan(remaining) {
		return domain.Refund{}, domain.ErrExceedsRefundable
	}

	now := s.clock.Now()
	refund := domain.Refund{
		ID:         s.genID.Generate(),
		InvoiceID:  invoice.ID,
		CustomerID: invoice.CustomerID,
		Amount:     amount,
		Currency:   invoice.Currency,
		Status:     domain.StatusPending,
		Reason:     req.Reason,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if s.gateway != nil && invoice.ProviderInvoiceID != nil {
		providerRefundID, err := s.gateway.CreateRefund(ctx, paymentdomain.GatewayRefund{
			RefundID:          refund.ID.String(),
			ProviderInvoiceID: *invoice.ProviderInvoiceID,
			Amount:            amount,
			Currency:          invoice.Currency,
			Reason:            req.Reason,
		})
		if err != nil {
			s.log.Warn("gateway refund failed", zap.Error(err))
		} else if providerRefundID != "" {
			refund.ProviderRefundID = &providerRefundID
		}
	}

	if err := s.repo.Insert(ctx, s.db, &refund); err != nil {
		return domain.Refund{}, err
	}

	s.sink.Publish(ctx, events.RefundCreated{
		RefundID:  refund.ID.String(),
		InvoiceID: refund.InvoiceID.String(),
		Amount:    refund.Amount,
		Currency:  refund.Currency,
	})
	s.log.Info("refund created",
		zap.String("refund_id", refund.ID.String()),
		zap.String("invoice_id", refund.InvoiceID.String()),
		zap.String("amount", refund.Amount.String()),
	)
	return refund, nil
}

func (s *service) GetByID(ctx context.Context, id string) (domain.Refund, error) {
	refundID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Refund{}, domain.ErrRefundNotFound
	}
	refund, err := s.repo.FindByID(ctx, s.db, refundID)
	if err != nil {
		return domain.Refund{}, err
	}
	if refund == nil {
		return domain.Refund{}, domain.ErrRefundNotFound
	}
	return *refund, nil
}

func (s *service) ListByInvoice(ctx context.Context, invoiceID string) ([]domain.Refund, error) {
	id, err := snowflake.ParseString(invoiceID)
	if err != nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return s.repo.ListByInvoice(ctx, s.db, id)
}

func (s *service) MarkSucceeded(ctx context.Context, id string) (domain.Refund, error) {
	refund, err := s.settle(ctx, id, domain.StatusSucceeded, "", s.creditRefund)
	if err != nil {
		return domain.Refund{}, err
	}

	s.sink.Publish(ctx, events.RefundSucceeded{
		RefundID:  refund.ID.String(),
		InvoiceID: refund.InvoiceID.String(),
		Amount:    refund.Amount,
	})
	return refund, nil
}

func (s *service) MarkFailed(ctx context.Context, id, reason string) (domain.Refund, error) {
	refund, err := s.settle(ctx, id, domain.StatusFailed, reason, nil)
	if err != nil {
		return domain.Refund{}, err
	}
	s.sink.Publish(ctx, events.RefundFailed{
		RefundID: refund.ID.String(),
		Reason:   reason,
	})
	return refund, nil
}

func (s *service) Cancel(ctx context.Context, id string) (domain.Refund, error) {
	refund, err := s.settle(ctx, id, domain.StatusCanceled, "", nil)
	if err != nil {
		return domain.Refund{}, err
	}
	s.sink.Publish(ctx, events.RefundCanceled{RefundID: refund.ID.String()})
	return refund, nil
}

// settle moves a pending refund to a terminal status. A non-nil after hook
// runs inside the same transaction, so its failure rolls the transition back.
func (s *service) settle(ctx context.Context, id string, target domain.Status, reason string, after func(context.Context, domain.Refund) error) (domain.Refund, error) {
	refundID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Refund{}, domain.ErrRefundNotFound
	}

	var refund domain.Refund
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrRefundNotFound
		}
		if found.Status != domain.StatusPending {
			return domain.ErrInvalidTransition
		}
		now := s.clock.Now()
		found.Status = target
		found.UpdatedAt = now
		if target == domain.StatusSucceeded {
			found.ProcessedAt = &now
		}
		if reason != "" {
			found.Reason = reason
		}
		if after != nil {
			if err := after(ctx, *found); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		refund = *found
		return nil
	})
	if err != nil {
		return domain.Refund{}, err
	}
	return refund, nil
}

// creditRefund turns a settled refund into spendable credit when configured.
// The grant is keyed by refund id, so a retry after a rolled-back settle
// finds the earlier grant instead of doubling it.
func (s *service) creditRefund(ctx context.Context, refund domain.Refund) error {
	if !s.billingCfg.Get().Refunds.CreateCredit {
		return nil
	}
	_, err := s.credits.Add(ctx, creditdomain.AddRequest{
		CustomerID:  refund.CustomerID.String(),
		Type:        creditdomain.TypeRefund,
		Amount:      refund.Amount,
		Currency:    refund.Currency,
		Description: "Refund for invoice",
		SourceType:  "refund",
		SourceID:    refund.ID.String(),
	})
	if err != nil {
		s.log.Error("failed to credit refund",
			zap.Error(err),
			zap.String("refund_id", refund.ID.String()),
		)
	}
	return err
}
