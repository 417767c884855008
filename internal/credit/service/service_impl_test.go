package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/credit/domain"
	"github.com/smallbiznis/billing/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// memoryRepo keeps the ledger in a slice so service tests exercise the
// balance and idempotency logic without real row locks.
type memoryRepo struct {
	customers map[snowflake.ID]bool
	entries   []domain.CustomerCredit
}

func newMemoryRepo(customers ...snowflake.ID) *memoryRepo {
	r := &memoryRepo{customers: map[snowflake.ID]bool{}}
	for _, id := range customers {
		r.customers[id] = true
	}
	return r
}

func (r *memoryRepo) LockCustomer(_ context.Context, _ *gorm.DB, customerID snowflake.ID) (bool, error) {
	return r.customers[customerID], nil
}

func (r *memoryRepo) Insert(_ context.Context, _ *gorm.DB, entry *domain.CustomerCredit) error {
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memoryRepo) LatestBalance(_ context.Context, _ *gorm.DB, customerID snowflake.ID) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, e := range r.entries {
		if e.CustomerID == customerID {
			balance = e.BalanceAfter
		}
	}
	return balance, nil
}

func (r *memoryRepo) FindBySource(_ context.Context, _ *gorm.DB, sourceType, sourceID string) (*domain.CustomerCredit, error) {
	for i := range r.entries {
		e := r.entries[i]
		if e.SourceType != nil && *e.SourceType == sourceType && e.SourceID != nil && *e.SourceID == sourceID {
			return &e, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) List(_ context.Context, _ *gorm.DB, customerID snowflake.ID) ([]domain.CustomerCredit, error) {
	var out []domain.CustomerCredit
	for _, e := range r.entries {
		if e.CustomerID == customerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) FindExpirable(_ context.Context, _ *gorm.DB, now time.Time) ([]domain.CustomerCredit, error) {
	var out []domain.CustomerCredit
	for _, e := range r.entries {
		if e.Amount.Sign() > 0 && e.ExpiresAt != nil && !e.ExpiresAt.After(now) && e.ExpiredAt == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkExpired(_ context.Context, _ *gorm.DB, id snowflake.ID, at time.Time) error {
	for i := range r.entries {
		if r.entries[i].ID == id {
			r.entries[i].ExpiredAt = &at
		}
	}
	return nil
}

type creditFixture struct {
	svc      domain.Service
	repo     *memoryRepo
	recorder *events.Recorder
	clock    *clock.FakeClock
	customer snowflake.ID
}

func newCreditFixture(t *testing.T) *creditFixture {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	customer := node.Generate()
	repo := newMemoryRepo(customer)
	recorder := events.NewRecorder()
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repo,
		Sink:  recorder,
	})
	return &creditFixture{svc: svc, repo: repo, recorder: recorder, clock: fake, customer: customer}
}

func TestAddSnapshotsBalance(t *testing.T) {
	f := newCreditFixture(t)

	entry, err := f.svc.Add(context.Background(), domain.AddRequest{
		CustomerID: f.customer.String(),
		Amount:     decimal.NewFromFloat(50),
		Currency:   "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TypeGrant, entry.Type)
	assert.True(t, entry.BalanceBefore.IsZero())
	assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(50)))

	second, err := f.svc.Add(context.Background(), domain.AddRequest{
		CustomerID: f.customer.String(),
		Amount:     decimal.NewFromFloat(25),
		Currency:   "USD",
	})
	require.NoError(t, err)
	assert.True(t, second.BalanceBefore.Equal(decimal.NewFromInt(50)))
	assert.True(t, second.BalanceAfter.Equal(decimal.NewFromInt(75)))

	added := f.recorder.Named("credit.added")
	assert.Len(t, added, 2)
}

func TestAddIsIdempotentPerSource(t *testing.T) {
	f := newCreditFixture(t)

	req := domain.AddRequest{
		CustomerID: f.customer.String(),
		Amount:     decimal.NewFromInt(30),
		Currency:   "USD",
		SourceType: "refund",
		SourceID:   "ref_1",
	}
	first, err := f.svc.Add(context.Background(), req)
	require.NoError(t, err)

	replay, err := f.svc.Add(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)
	assert.Len(t, f.repo.entries, 1)
}

func TestAddValidation(t *testing.T) {
	f := newCreditFixture(t)

	_, err := f.svc.Add(context.Background(), domain.AddRequest{
		CustomerID: f.customer.String(),
		Amount:     decimal.Zero,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Add(context.Background(), domain.AddRequest{
		CustomerID: "not-a-snowflake",
		Amount:     decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)

	_, err = f.svc.Add(context.Background(), domain.AddRequest{
		CustomerID: snowflake.ID(99).String(),
		Amount:     decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
}

func TestDeduct(t *testing.T) {
	f := newCreditFixture(t)

	_, err := f.svc.Add(context.Background(), domain.AddRequest{
		CustomerID: f.customer.String(),
		Amount:     decimal.NewFromInt(40),
		Currency:   "USD",
	})
	require.NoError(t, err)

	entry, err := f.svc.Deduct(context.Background(), domain.DeductRequest{
		CustomerID: f.customer.String(),
		Amount:     decimal.NewFromInt(15),
	})
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(-15)))
	assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(25)))

	_, err = f.svc.Deduct(context.Background(), domain.DeductRequest{
		CustomerID: f.customer.String(),
		Amount:     decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientCredit)
}

func TestApplyToInvoiceCapsAtBalance(t *testing.T) {
	f := newCreditFixture(t)

	_, err := f.svc.Add(context.Background(), domain.AddRequest{
		CustomerID: f.customer.String(),
		Amount:     decimal.NewFromInt(20),
		Currency:   "USD",
	})
	require.NoError(t, err)

	applied, err := f.svc.ApplyToInvoice(context.Background(), f.customer.String(), "inv_1", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, applied.Equal(decimal.NewFromInt(20)))

	balance, err := f.svc.Balance(context.Background(), f.customer.String())
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	// Nothing left: applies zero without error.
	applied, err = f.svc.ApplyToInvoice(context.Background(), f.customer.String(), "inv_2", decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, applied.IsZero())
	assert.Len(t, f.recorder.Named("credit.applied"), 1)
}

func TestApplyToInvoiceIgnoresNonPositiveAmount(t *testing.T) {
	f := newCreditFixture(t)

	applied, err := f.svc.ApplyToInvoice(context.Background(), f.customer.String(), "inv_1", decimal.Zero)
	require.NoError(t, err)
	assert.True(t, applied.IsZero())
}

func TestExpireDueClawsBackUnspentPortion(t *testing.T) {
	f := newCreditFixture(t)
	expires := f.clock.Now().Add(-time.Hour)

	_, err := f.svc.Add(context.Background(), domain.AddRequest{
		CustomerID: f.customer.String(),
		Amount:     decimal.NewFromInt(50),
		Currency:   "USD",
		ExpiresAt:  &expires,
	})
	require.NoError(t, err)

	// Spend part of the grant before it expires.
	_, err = f.svc.Deduct(context.Background(), domain.DeductRequest{
		CustomerID: f.customer.String(),
		Amount:     decimal.NewFromInt(30),
	})
	require.NoError(t, err)

	expired, err := f.svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	balance, err := f.svc.Balance(context.Background(), f.customer.String())
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "only the unspent 20 is clawed back")

	// The grant is stamped and not picked up again.
	expired, err = f.svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, expired)
}
