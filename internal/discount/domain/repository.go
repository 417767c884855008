package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, discount *Discount) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Discount, error)
	FindByCodeForUpdate(ctx context.Context, db *gorm.DB, code string) (*Discount, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Discount, error)
	IncrementRedemptions(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error

	InsertApplied(ctx context.Context, db *gorm.DB, applied *AppliedDiscount) error
	FindApplied(ctx context.Context, db *gorm.DB, subscriptionID, discountID snowflake.ID) (*AppliedDiscount, error)
	UpdateApplied(ctx context.Context, db *gorm.DB, applied *AppliedDiscount) error
	FindActiveApplied(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]AppliedDiscount, error)
	DeactivateApplied(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error
}
