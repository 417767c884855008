package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]Invoice, error)
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error

	// NextNumber locks the highest issued invoice number and returns the
	// next one, never below starting.
	NextNumber(ctx context.Context, db *gorm.DB, starting int64) (int64, error)

	// SumRefunds totals the invoice's refunds in the given statuses.
	SumRefunds(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, statuses []string) (decimal.Decimal, error)
}
