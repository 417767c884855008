package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	creditdomain "github.com/smallbiznis/billing/internal/credit/domain"
	"github.com/smallbiznis/billing/internal/events"
	invoicedomain "github.com/smallbiznis/billing/internal/invoice/domain"
	"github.com/smallbiznis/billing/internal/refund/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type memoryRepo struct {
	refunds map[snowflake.ID]domain.Refund
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{refunds: map[snowflake.ID]domain.Refund{}}
}

func (r *memoryRepo) Insert(_ context.Context, _ *gorm.DB, refund *domain.Refund) error {
	r.refunds[refund.ID] = *refund
	return nil
}

func (r *memoryRepo) FindByID(_ context.Context, _ *gorm.DB, id snowflake.ID) (*domain.Refund, error) {
	refund, ok := r.refunds[id]
	if !ok {
		return nil, nil
	}
	return &refund, nil
}

func (r *memoryRepo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Refund, error) {
	return r.FindByID(ctx, db, id)
}

func (r *memoryRepo) ListByInvoice(_ context.Context, _ *gorm.DB, invoiceID snowflake.ID) ([]domain.Refund, error) {
	var out []domain.Refund
	for _, refund := range r.refunds {
		if refund.InvoiceID == invoiceID {
			out = append(out, refund)
		}
	}
	return out, nil
}

func (r *memoryRepo) Update(_ context.Context, _ *gorm.DB, refund *domain.Refund) error {
	r.refunds[refund.ID] = *refund
	return nil
}

type stubInvoices struct {
	invoicedomain.Service

	invoice   invoicedomain.Invoice
	remaining decimal.Decimal
}

func (s *stubInvoices) GetByID(_ context.Context, _ string) (invoicedomain.Invoice, error) {
	return s.invoice, nil
}

func (s *stubInvoices) RemainingRefundable(_ context.Context, _ string) (decimal.Decimal, error) {
	return s.remaining, nil
}

type stubCredits struct {
	creditdomain.Service

	added  []creditdomain.AddRequest
	addErr error
}

func (s *stubCredits) Add(_ context.Context, req creditdomain.AddRequest) (creditdomain.CustomerCredit, error) {
	if s.addErr != nil {
		return creditdomain.CustomerCredit{}, s.addErr
	}
	s.added = append(s.added, req)
	return creditdomain.CustomerCredit{}, nil
}

type refundFixture struct {
	svc      domain.Service
	repo     *memoryRepo
	invoices *stubInvoices
	credits  *stubCredits
	recorder *events.Recorder
}

func newRefundFixture(t *testing.T, createCredit bool) *refundFixture {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	cfg := config.DefaultBillingConfig()
	cfg.Refunds.CreateCredit = createCredit

	repo := newMemoryRepo()
	invoices := &stubInvoices{
		invoice: invoicedomain.Invoice{
			ID:         node.Generate(),
			CustomerID: node.Generate(),
			Currency:   "USD",
			Total:      decimal.NewFromInt(100),
			Status:     invoicedomain.StatusPaid,
		},
		remaining: decimal.NewFromInt(100),
	}
	credits := &stubCredits{}
	recorder := events.NewRecorder()

	svc := NewService(Params{
		DB:         gdb,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:       repo,
		Invoices:   invoices,
		Credits:    credits,
		Sink:       recorder,
		BillingCfg: config.NewStaticBillingConfigHolder(cfg),
	})
	return &refundFixture{svc: svc, repo: repo, invoices: invoices, credits: credits, recorder: recorder}
}

func TestCreateDefaultsToFullRemaining(t *testing.T) {
	f := newRefundFixture(t, false)

	refund, err := f.svc.Create(context.Background(), domain.CreateRequest{
		InvoiceID: f.invoices.invoice.ID.String(),
		Reason:    "requested_by_customer",
	})
	require.NoError(t, err)
	assert.True(t, refund.Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, domain.StatusPending, refund.Status)
	assert.Equal(t, "USD", refund.Currency)
	assert.Len(t, f.recorder.Named("refund.created"), 1)
}

func TestCreateRejectsOverRefund(t *testing.T) {
	f := newRefundFixture(t, false)
	f.invoices.remaining = decimal.NewFromInt(40)

	over := decimal.NewFromInt(60)
	_, err := f.svc.Create(context.Background(), domain.CreateRequest{
		InvoiceID: f.invoices.invoice.ID.String(),
		Amount:    &over,
	})
	assert.ErrorIs(t, err, domain.ErrExceedsRefundable)
}

func TestCreateRejectsUnpaidInvoice(t *testing.T) {
	f := newRefundFixture(t, false)
	f.invoices.invoice.Status = invoicedomain.StatusOpen

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{
		InvoiceID: f.invoices.invoice.ID.String(),
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)
}

func TestCreateRejectsFullyRefundedInvoice(t *testing.T) {
	f := newRefundFixture(t, false)
	f.invoices.remaining = decimal.Zero

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{
		InvoiceID: f.invoices.invoice.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestMarkSucceededCreditsCustomer(t *testing.T) {
	f := newRefundFixture(t, true)

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		InvoiceID: f.invoices.invoice.ID.String(),
	})
	require.NoError(t, err)

	settled, err := f.svc.MarkSucceeded(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, settled.Status)
	require.NotNil(t, settled.ProcessedAt)

	require.Len(t, f.credits.added, 1)
	grant := f.credits.added[0]
	assert.Equal(t, creditdomain.TypeRefund, grant.Type)
	assert.True(t, grant.Amount.Equal(created.Amount))
	assert.Equal(t, "refund", grant.SourceType)
	assert.Equal(t, created.ID.String(), grant.SourceID)
	assert.Len(t, f.recorder.Named("refund.succeeded"), 1)

	// A settled refund cannot settle twice.
	_, err = f.svc.MarkSucceeded(context.Background(), created.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestMarkSucceededRollsBackWhenCreditFails(t *testing.T) {
	f := newRefundFixture(t, true)
	f.credits.addErr = errors.New("ledger unavailable")

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		InvoiceID: f.invoices.invoice.ID.String(),
	})
	require.NoError(t, err)

	_, err = f.svc.MarkSucceeded(context.Background(), created.ID.String())
	require.Error(t, err)
	assert.Empty(t, f.recorder.Named("refund.succeeded"))

	// The refund stays pending, so the settle can be retried once the
	// ledger is back.
	stored, err := f.svc.GetByID(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)

	f.credits.addErr = nil
	settled, err := f.svc.MarkSucceeded(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, settled.Status)
	assert.Len(t, f.credits.added, 1)
}

func TestMarkSucceededWithoutCreditConfigured(t *testing.T) {
	f := newRefundFixture(t, false)

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		InvoiceID: f.invoices.invoice.ID.String(),
	})
	require.NoError(t, err)

	_, err = f.svc.MarkSucceeded(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Empty(t, f.credits.added)
}

func TestMarkFailedKeepsReason(t *testing.T) {
	f := newRefundFixture(t, false)

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		InvoiceID: f.invoices.invoice.ID.String(),
	})
	require.NoError(t, err)

	failed, err := f.svc.MarkFailed(context.Background(), created.ID.String(), "processor_declined")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, "processor_declined", failed.Reason)

	_, err = f.svc.Cancel(context.Background(), created.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelPendingRefund(t *testing.T) {
	f := newRefundFixture(t, false)

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		InvoiceID: f.invoices.invoice.ID.String(),
	})
	require.NoError(t, err)

	canceled, err := f.svc.Cancel(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, canceled.Status)
	assert.Len(t, f.recorder.Named("refund.canceled"), 1)
}
