package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	creditdomain "github.com/smallbiznis/billing/internal/credit/domain"
	discountdomain "github.com/smallbiznis/billing/internal/discount/domain"
	"github.com/smallbiznis/billing/internal/events"
	"github.com/smallbiznis/billing/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type memoryRepo struct {
	invoices   map[snowflake.ID]domain.Invoice
	items      map[snowflake.ID][]domain.InvoiceItem
	lastNumber int64
	refunded   decimal.Decimal

	// failInserts makes the next N inserts report a duplicate number.
	failInserts int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices: map[snowflake.ID]domain.Invoice{},
		items:    map[snowflake.ID][]domain.InvoiceItem{},
		refunded: decimal.Zero,
	}
}

func (r *memoryRepo) Insert(_ context.Context, _ *gorm.DB, invoice *domain.Invoice) error {
	if r.failInserts > 0 {
		r.failInserts--
		return gorm.ErrDuplicatedKey
	}
	r.invoices[invoice.ID] = *invoice
	return nil
}

func (r *memoryRepo) InsertItems(_ context.Context, _ *gorm.DB, items []domain.InvoiceItem) error {
	for _, item := range items {
		r.items[item.InvoiceID] = append(r.items[item.InvoiceID], item)
	}
	return nil
}

func (r *memoryRepo) FindByID(_ context.Context, _ *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	invoice, ok := r.invoices[id]
	if !ok {
		return nil, nil
	}
	return &invoice, nil
}

func (r *memoryRepo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.FindByID(ctx, db, id)
}

func (r *memoryRepo) FindItems(_ context.Context, _ *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	return r.items[invoiceID], nil
}

func (r *memoryRepo) ListBySubscription(_ context.Context, _ *gorm.DB, subscriptionID snowflake.ID) ([]domain.Invoice, error) {
	var out []domain.Invoice
	for _, invoice := range r.invoices {
		if invoice.SubscriptionID != nil && *invoice.SubscriptionID == subscriptionID {
			out = append(out, invoice)
		}
	}
	return out, nil
}

func (r *memoryRepo) Update(_ context.Context, _ *gorm.DB, invoice *domain.Invoice) error {
	r.invoices[invoice.ID] = *invoice
	return nil
}

func (r *memoryRepo) NextNumber(_ context.Context, _ *gorm.DB, starting int64) (int64, error) {
	next := r.lastNumber + 1
	if next < starting {
		next = starting
	}
	r.lastNumber = next
	return next, nil
}

func (r *memoryRepo) SumRefunds(_ context.Context, _ *gorm.DB, _ snowflake.ID, _ []string) (decimal.Decimal, error) {
	return r.refunded, nil
}

type stubCredits struct {
	creditdomain.Service

	balance decimal.Decimal
	calls   int
}

func (s *stubCredits) ApplyToInvoice(_ context.Context, _, _ string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.calls++
	applied := s.balance
	if applied.GreaterThan(amount) {
		applied = amount
	}
	s.balance = s.balance.Sub(applied)
	return applied, nil
}

type invoiceFixture struct {
	svc      domain.Service
	repo     *memoryRepo
	credits  *stubCredits
	recorder *events.Recorder
	clock    *clock.FakeClock
	customer snowflake.ID
}

func newInvoiceFixture(t *testing.T, mutate func(cfg *config.BillingConfig)) *invoiceFixture {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	cfg := config.DefaultBillingConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	repo := newMemoryRepo()
	credits := &stubCredits{balance: decimal.Zero}
	recorder := events.NewRecorder()
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:         gdb,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		Repo:       repo,
		Credits:    credits,
		Sink:       recorder,
		BillingCfg: config.NewStaticBillingConfigHolder(cfg),
	})
	return &invoiceFixture{
		svc:      svc,
		repo:     repo,
		credits:  credits,
		recorder: recorder,
		clock:    fake,
		customer: node.Generate(),
	}
}

func lines(prices ...float64) []domain.LineInput {
	out := make([]domain.LineInput, 0, len(prices))
	for _, p := range prices {
		out = append(out, domain.LineInput{
			Description: "Pro plan",
			Quantity:    1,
			UnitPrice:   decimal.NewFromFloat(p),
		})
	}
	return out
}

func TestCreateStacksDiscountsAndTaxes(t *testing.T) {
	f := newInvoiceFixture(t, func(cfg *config.BillingConfig) {
		cfg.Invoice.TaxRate = 10
	})

	invoice, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID: f.customer.String(),
		Currency:   "USD",
		Lines:      lines(50, 50),
		Discounts: []discountdomain.Discount{
			{Name: "Half off", Type: discountdomain.TypePercentage, Value: decimal.NewFromInt(50)},
			{Name: "Welcome", Type: discountdomain.TypeFixed, Value: decimal.NewFromInt(30), Currency: "USD"},
		},
	})
	require.NoError(t, err)

	assert.True(t, invoice.Subtotal.Equal(decimal.NewFromInt(100)))
	// 50% off 100, then 30 off the remaining 50.
	assert.True(t, invoice.DiscountTotal.Equal(decimal.NewFromInt(80)))
	// Tax applies to what the discounts left.
	assert.True(t, invoice.TaxTotal.Equal(decimal.NewFromInt(2)))
	assert.True(t, invoice.Total.Equal(decimal.NewFromInt(22)))
	assert.Equal(t, domain.StatusOpen, invoice.Status)
	assert.Equal(t, int64(1000), invoice.InvoiceNumber)
	assert.Len(t, invoice.Items, 4)

	require.NotNil(t, invoice.DueAt)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 14), *invoice.DueAt)
	assert.Len(t, f.recorder.Named("invoice.created"), 1)
}

func TestCreateTotalNeverGoesNegative(t *testing.T) {
	f := newInvoiceFixture(t, nil)

	invoice, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID: f.customer.String(),
		Lines:      lines(10),
		Discounts: []discountdomain.Discount{
			{Name: "Big", Type: discountdomain.TypeFixed, Value: decimal.NewFromInt(500)},
		},
	})
	require.NoError(t, err)
	assert.True(t, invoice.Total.IsZero())
	// A zero invoice settles immediately.
	assert.Equal(t, domain.StatusPaid, invoice.Status)
	require.NotNil(t, invoice.PaidAt)
}

func TestCreateRequiresLines(t *testing.T) {
	f := newInvoiceFixture(t, nil)

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID: f.customer.String(),
	})
	assert.ErrorIs(t, err, domain.ErrNothingToBill)
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	f := newInvoiceFixture(t, nil)
	f.repo.failInserts = 1

	invoice, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID: f.customer.String(),
		Lines:      lines(10),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1001), invoice.InvoiceNumber)

	f.repo.failInserts = numberRetries
	_, err = f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID: f.customer.String(),
		Lines:      lines(10),
	})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestCreateAppliesCredit(t *testing.T) {
	f := newInvoiceFixture(t, nil)
	f.credits.balance = decimal.NewFromInt(30)

	invoice, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID:  f.customer.String(),
		Lines:       lines(100),
		ApplyCredit: true,
	})
	require.NoError(t, err)
	assert.True(t, invoice.CreditApplied.Equal(decimal.NewFromInt(30)))
	assert.True(t, invoice.Total.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, domain.StatusOpen, invoice.Status)

	// The applied credit shows up as its own negative line.
	var creditLine *domain.InvoiceItem
	for i := range invoice.Items {
		if invoice.Items[i].Description == "Credit applied" {
			creditLine = &invoice.Items[i]
		}
	}
	require.NotNil(t, creditLine)
	assert.True(t, creditLine.Amount.Equal(decimal.NewFromInt(-30)))
	assert.True(t, creditLine.IsDiscount)
}

func TestCreateCreditCoveringEverythingSettlesInvoice(t *testing.T) {
	f := newInvoiceFixture(t, nil)
	f.credits.balance = decimal.NewFromInt(500)

	invoice, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID:  f.customer.String(),
		Lines:       lines(100),
		ApplyCredit: true,
	})
	require.NoError(t, err)
	assert.True(t, invoice.CreditApplied.Equal(decimal.NewFromInt(100)))
	assert.True(t, invoice.Total.IsZero())
	assert.Equal(t, domain.StatusPaid, invoice.Status)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newInvoiceFixture(t, nil)

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID: f.customer.String(),
		Lines:      lines(40),
	})
	require.NoError(t, err)

	paid, err := f.svc.MarkPaid(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	again, err := f.svc.MarkPaid(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paid.PaidAt, again.PaidAt)
	assert.Len(t, f.recorder.Named("invoice.paid"), 1)
}

func TestMarkPaidRejectsVoidInvoice(t *testing.T) {
	f := newInvoiceFixture(t, nil)

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID: f.customer.String(),
		Lines:      lines(40),
	})
	require.NoError(t, err)

	_, err = f.svc.Void(context.Background(), created.ID.String())
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(context.Background(), created.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestMarkPaymentFailedCountsAttempts(t *testing.T) {
	f := newInvoiceFixture(t, nil)

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID: f.customer.String(),
		Lines:      lines(40),
	})
	require.NoError(t, err)

	failed, err := f.svc.MarkPaymentFailed(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, failed.AttemptCount)
	assert.Equal(t, domain.StatusOpen, failed.Status)

	failed, err = f.svc.MarkPaymentFailed(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 2, failed.AttemptCount)
	assert.Len(t, f.recorder.Named("invoice.payment_failed"), 2)

	_, err = f.svc.MarkPaid(context.Background(), created.ID.String())
	require.NoError(t, err)
	_, err = f.svc.MarkPaymentFailed(context.Background(), created.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestVoidRejectsPaidInvoice(t *testing.T) {
	f := newInvoiceFixture(t, nil)

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID: f.customer.String(),
		Lines:      lines(40),
	})
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(context.Background(), created.ID.String())
	require.NoError(t, err)

	_, err = f.svc.Void(context.Background(), created.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestRemainingRefundable(t *testing.T) {
	f := newInvoiceFixture(t, nil)

	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CustomerID: f.customer.String(),
		Lines:      lines(40),
	})
	require.NoError(t, err)

	f.repo.refunded = decimal.NewFromInt(15)
	remaining, err := f.svc.RemainingRefundable(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(25)))

	f.repo.refunded = decimal.NewFromInt(100)
	remaining, err = f.svc.RemainingRefundable(context.Background(), created.ID.String())
	require.NoError(t, err)
	assert.True(t, remaining.IsZero())
}

func TestGetByIDUnknown(t *testing.T) {
	f := newInvoiceFixture(t, nil)

	_, err := f.svc.GetByID(context.Background(), snowflake.ID(12345).String())
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}
