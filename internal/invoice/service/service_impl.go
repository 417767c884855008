package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	creditdomain "github.com/smallbiznis/billing/internal/credit/domain"
	discountdomain "github.com/smallbiznis/billing/internal/discount/domain"
	"github.com/smallbiznis/billing/internal/events"
	"github.com/smallbiznis/billing/internal/invoice/domain"
	"github.com/smallbiznis/billing/internal/invoice/format"
	"github.com/smallbiznis/billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const numberRetries = 3

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Credits    creditdomain.Service
	Sink       events.Sink
	BillingCfg *config.BillingConfigHolder
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	credits    creditdomain.Service
	sink       events.Sink
	billingCfg *config.BillingConfigHolder
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		credits:    p.Credits,
		sink:       p.Sink,
		billingCfg: p.BillingCfg,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (domain.Invoice, error) {
	if len(req.Lines) == 0 {
		return domain.Invoice{}, domain.ErrNothingToBill
	}
	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	var subscriptionID *snowflake.ID
	if req.SubscriptionID != "" {
		id, err := snowflake.ParseString(req.SubscriptionID)
		if err != nil {
			return domain.Invoice{}, domain.ErrInvoiceNotFound
		}
		subscriptionID = &id
	}

	cfg := s.billingCfg.Get()
	now := s.clock.Now()
	currency := req.Currency
	if currency == "" {
		currency = cfg.Currency
	}

	items := make([]domain.InvoiceItem, 0, len(req.Lines)+len(req.Discounts))
	subtotal := decimal.Zero
	for _, line := range req.Lines {
		qty := line.Quantity
		if qty <= 0 {
			qty = 1
		}
		amount := line.UnitPrice.Mul(decimal.NewFromInt(int64(qty))).Round(2)
		items = append(items, domain.InvoiceItem{
			ID:          s.genID.Generate(),
			PlanID:      line.PlanID,
			Description: line.Description,
			Quantity:    qty,
			UnitPrice:   line.UnitPrice.Round(2),
			Amount:      amount,
			IsProration: line.IsProration,
			PeriodStart: line.PeriodStart,
			PeriodEnd:   line.PeriodEnd,
			CreatedAt:   now,
		})
		subtotal = subtotal.Add(amount)
	}

	// Discounts stack in application order, each reducing what the
	// previous ones left.
	discountTotal := decimal.Zero
	remaining := subtotal
	for _, d := range req.Discounts {
		off := d.AmountOff(remaining, currency)
		if off.Sign() <= 0 {
			continue
		}
		items = append(items, domain.InvoiceItem{
			ID:          s.genID.Generate(),
			Description: discountDescription(d),
			Quantity:    1,
			UnitPrice:   off.Neg(),
			Amount:      off.Neg(),
			IsDiscount:  true,
			CreatedAt:   now,
		})
		discountTotal = discountTotal.Add(off)
		remaining = remaining.Sub(off)
		if remaining.Sign() <= 0 {
			break
		}
	}

	taxable := subtotal.Sub(discountTotal)
	if taxable.Sign() < 0 {
		taxable = decimal.Zero
	}
	taxTotal := taxable.Mul(cfg.TaxRateDecimal()).Div(decimal.NewFromInt(100)).Round(2)

	payable := subtotal.Sub(discountTotal).Add(taxTotal)
	if payable.Sign() < 0 {
		payable = decimal.Zero
	}

	dueAt := now.AddDate(0, 0, cfg.Invoice.DueDays)
	invoice := domain.Invoice{
		ID:             s.genID.Generate(),
		Billable:       req.Billable,
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		Currency:       currency,
		Subtotal:       subtotal,
		DiscountTotal:  discountTotal,
		TaxTotal:       taxTotal,
		CreditApplied:  decimal.Zero,
		Total:          payable,
		Status:         domain.StatusOpen,
		DueAt:          &dueAt,
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i := range items {
		items[i].InvoiceID = invoice.ID
	}

	err = s.insertNumbered(ctx, &invoice, items, cfg.Invoice.StartingNumber)
	if err != nil {
		return domain.Invoice{}, err
	}

	if req.ApplyCredit && payable.Sign() > 0 {
		applied, err := s.credits.ApplyToInvoice(ctx, req.CustomerID, invoice.ID.String(), payable)
		if err != nil {
			s.log.Error("failed to apply credit to invoice",
				zap.Error(err),
				zap.String("invoice_id", invoice.ID.String()),
			)
		} else if applied.Sign() > 0 {
			creditItem := domain.InvoiceItem{
				ID:          s.genID.Generate(),
				InvoiceID:   invoice.ID,
				Description: "Credit applied",
				Quantity:    1,
				UnitPrice:   applied.Neg(),
				Amount:      applied.Neg(),
				IsDiscount:  true,
				CreatedAt:   s.clock.Now(),
			}
			if err := s.repo.InsertItems(ctx, s.db, []domain.InvoiceItem{creditItem}); err != nil {
				return domain.Invoice{}, err
			}
			items = append(items, creditItem)
			invoice.CreditApplied = applied
			invoice.Total = payable.Sub(applied)
			invoice.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, s.db, &invoice); err != nil {
				return domain.Invoice{}, err
			}
		}
	}
	if invoice.Total.Sign() == 0 && invoice.Status == domain.StatusOpen {
		paidAt := s.clock.Now()
		invoice.Status = domain.StatusPaid
		invoice.PaidAt = &paidAt
		invoice.UpdatedAt = paidAt
		if err := s.repo.Update(ctx, s.db, &invoice); err != nil {
			return domain.Invoice{}, err
		}
	}

	invoice.Items = items
	s.sink.Publish(ctx, events.InvoiceCreated{
		InvoiceID:     invoice.ID.String(),
		InvoiceNumber: format.DisplayNumber(cfg.Invoice.NumberPrefix, invoice.InvoiceNumber),
		Total:         invoice.Total,
		Currency:      invoice.Currency,
	})
	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.Int64("invoice_number", invoice.InvoiceNumber),
		zap.String("total", invoice.Total.String()),
	)
	return invoice, nil
}

// insertNumbered assigns the next invoice number and inserts the invoice and
// its items, retrying when a concurrent insert wins the same number.
func (s *service) insertNumbered(ctx context.Context, invoice *domain.Invoice, items []domain.InvoiceItem, starting int64) error {
	var lastErr error
	for attempt := 0; attempt < numberRetries; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := s.repo.NextNumber(ctx, tx, starting)
			if err != nil {
				return err
			}
			invoice.InvoiceNumber = number
			if err := s.repo.Insert(ctx, tx, invoice); err != nil {
				return err
			}
			return s.repo.InsertItems(ctx, tx, items)
		})
		if err == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (s *service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	items, err := s.repo.FindItems(ctx, s.db, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice.Items = items
	return *invoice, nil
}

func (s *service) ListBySubscription(ctx context.Context, subscriptionID string) ([]domain.Invoice, error) {
	subID, err := snowflake.ParseString(subscriptionID)
	if err != nil {
		return nil, nil
	}
	return s.repo.ListBySubscription(ctx, s.db, subID)
}

func (s *service) MarkPaid(ctx context.Context, id string) (domain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}

	var invoice domain.Invoice
	alreadyPaid := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrInvoiceNotFound
		}
		if found.Status == domain.StatusPaid {
			invoice = *found
			alreadyPaid = true
			return nil
		}
		if found.Status != domain.StatusOpen && found.Status != domain.StatusDraft {
			return domain.ErrInvalidStatus
		}
		paidAt := s.clock.Now()
		found.Status = domain.StatusPaid
		found.PaidAt = &paidAt
		found.UpdatedAt = paidAt
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		invoice = *found
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	if !alreadyPaid {
		s.sink.Publish(ctx, events.InvoicePaid{
			InvoiceID: invoice.ID.String(),
			Total:     invoice.Total,
			Currency:  invoice.Currency,
		})
	}
	return invoice, nil
}

func (s *service) MarkPaymentFailed(ctx context.Context, id string) (domain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}

	var invoice domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrInvoiceNotFound
		}
		if found.Status != domain.StatusOpen {
			return domain.ErrInvalidStatus
		}
		found.AttemptCount++
		found.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		invoice = *found
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.sink.Publish(ctx, events.InvoicePaymentFailed{
		InvoiceID:    invoice.ID.String(),
		AttemptCount: invoice.AttemptCount,
	})
	return invoice, nil
}

func (s *service) Void(ctx context.Context, id string) (domain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}

	var invoice domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrInvoiceNotFound
		}
		if found.Status != domain.StatusDraft && found.Status != domain.StatusOpen {
			return domain.ErrInvalidStatus
		}
		found.Status = domain.StatusVoid
		found.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}
		invoice = *found
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	return invoice, nil
}

func (s *service) SetProviderInvoiceID(ctx context.Context, id, providerInvoiceID string) error {
	invoiceID, err := snowflake.ParseString(id)
	if err != nil {
		return domain.ErrInvoiceNotFound
	}
	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return domain.ErrInvoiceNotFound
	}
	invoice.ProviderInvoiceID = &providerInvoiceID
	invoice.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, invoice)
}

func (s *service) TotalRefunded(ctx context.Context, id string) (decimal.Decimal, error) {
	invoiceID, err := snowflake.ParseString(id)
	if err != nil {
		return decimal.Zero, domain.ErrInvoiceNotFound
	}
	return s.repo.SumRefunds(ctx, s.db, invoiceID, []string{"pending", "succeeded"})
}

func (s *service) RemainingRefundable(ctx context.Context, id string) (decimal.Decimal, error) {
	invoiceID, err := snowflake.ParseString(id)
	if err != nil {
		return decimal.Zero, domain.ErrInvoiceNotFound
	}
	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	if invoice == nil {
		return decimal.Zero, domain.ErrInvoiceNotFound
	}
	refunded, err := s.repo.SumRefunds(ctx, s.db, invoiceID, []string{"pending", "succeeded"})
	if err != nil {
		return decimal.Zero, err
	}
	remaining := invoice.Total.Sub(refunded)
	if remaining.Sign() < 0 {
		remaining = decimal.Zero
	}
	return remaining, nil
}

func discountDescription(d discountdomain.Discount) string {
	if d.Type == discountdomain.TypePercentage {
		return fmt.Sprintf("%s (%s%% off)", d.Name, d.Value.String())
	}
	return d.Name
}
