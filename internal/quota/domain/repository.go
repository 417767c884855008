package domain

import (
	"context"

	"github.com/smallbiznis/billing/internal/billable"
	"gorm.io/gorm"
)

type Repository interface {
	FindForUpdate(ctx context.Context, db *gorm.DB, ref billable.Ref, feature string) (*Usage, error)
	Find(ctx context.Context, db *gorm.DB, ref billable.Ref, feature string) (*Usage, error)
	Insert(ctx context.Context, db *gorm.DB, usage *Usage) error
	Update(ctx context.Context, db *gorm.DB, usage *Usage) error
	List(ctx context.Context, db *gorm.DB, ref billable.Ref) ([]Usage, error)
	ResetAll(ctx context.Context, db *gorm.DB, ref billable.Ref) error
}
