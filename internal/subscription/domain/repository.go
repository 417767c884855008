package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/billable"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindActiveByBillable(ctx context.Context, db *gorm.DB, ref billable.Ref) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error

	InsertItems(ctx context.Context, db *gorm.DB, items []SubscriptionItem) error
	FindItems(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]SubscriptionItem, error)
	DeleteItem(ctx context.Context, db *gorm.DB, itemID snowflake.ID) error

	// Sweep queries. Each returns subscription IDs so callers can process
	// one subscription per transaction.
	ListDueForRenewal(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error)
	ListExpiredTrials(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error)
	ListPastDue(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
	ListDueScheduledChanges(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error)
	ListExpiredCancellations(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error)
}
