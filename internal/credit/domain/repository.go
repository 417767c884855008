package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	// LockCustomer takes a row lock on the customer so concurrent ledger
	// writes serialize. It reports whether the customer exists.
	LockCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (bool, error)

	Insert(ctx context.Context, db *gorm.DB, entry *CustomerCredit) error
	LatestBalance(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (decimal.Decimal, error)
	FindBySource(ctx context.Context, db *gorm.DB, sourceType, sourceID string) (*CustomerCredit, error)
	List(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]CustomerCredit, error)
	FindExpirable(ctx context.Context, db *gorm.DB, now time.Time) ([]CustomerCredit, error)
	MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
