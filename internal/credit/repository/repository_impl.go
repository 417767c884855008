package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/credit/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LockCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (bool, error) {
	var id snowflake.ID
	err := db.WithContext(ctx).
		Table("customers").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", customerID).
		Take(&id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.CustomerCredit) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) LatestBalance(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (decimal.Decimal, error) {
	var entry domain.CustomerCredit
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc, id desc").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return entry.BalanceAfter, nil
}

func (r *repo) FindBySource(ctx context.Context, db *gorm.DB, sourceType, sourceID string) (*domain.CustomerCredit, error) {
	var entry domain.CustomerCredit
	err := db.WithContext(ctx).
		First(&entry, "source_type = ? AND source_id = ?", sourceType, sourceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.CustomerCredit, error) {
	var entries []domain.CustomerCredit
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) FindExpirable(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.CustomerCredit, error) {
	var entries []domain.CustomerCredit
	err := db.WithContext(ctx).
		Where("amount > 0 AND expires_at IS NOT NULL AND expires_at <= ? AND expired_at IS NULL", now).
		Order("customer_id asc, created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customer_credits SET expired_at = ? WHERE id = ? AND expired_at IS NULL`,
		at,
		id,
	).Error
}
