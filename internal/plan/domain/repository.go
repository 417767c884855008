package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Plan, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Plan, error)
	List(ctx context.Context, db *gorm.DB, req ListPlanRequest) ([]Plan, error)
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error
}
