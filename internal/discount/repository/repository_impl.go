package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/discount/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, discount *domain.Discount) error {
	return db.WithContext(ctx).Create(discount).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Discount, error) {
	var discount domain.Discount
	err := db.WithContext(ctx).First(&discount, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

func (r *repo) FindByCodeForUpdate(ctx context.Context, db *gorm.DB, code string) (*domain.Discount, error) {
	var discount domain.Discount
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&discount, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Discount, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var discounts []domain.Discount
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&discounts).Error; err != nil {
		return nil, err
	}
	return discounts, nil
}

func (r *repo) IncrementRedemptions(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE discounts SET redemptions = redemptions + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id,
	).Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE discounts SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active,
		id,
	).Error
}

func (r *repo) InsertApplied(ctx context.Context, db *gorm.DB, applied *domain.AppliedDiscount) error {
	return db.WithContext(ctx).Create(applied).Error
}

func (r *repo) FindApplied(ctx context.Context, db *gorm.DB, subscriptionID, discountID snowflake.ID) (*domain.AppliedDiscount, error) {
	var applied domain.AppliedDiscount
	err := db.WithContext(ctx).
		First(&applied, "subscription_id = ? AND discount_id = ?", subscriptionID, discountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &applied, nil
}

func (r *repo) UpdateApplied(ctx context.Context, db *gorm.DB, applied *domain.AppliedDiscount) error {
	return db.WithContext(ctx).Save(applied).Error
}

func (r *repo) FindActiveApplied(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]domain.AppliedDiscount, error) {
	var applied []domain.AppliedDiscount
	err := db.WithContext(ctx).
		Where("subscription_id = ? AND active = ?", subscriptionID, true).
		Order("applied_at asc, id asc").
		Find(&applied).Error
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (r *repo) DeactivateApplied(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE applied_discounts SET active = ?, updated_at = ? WHERE id IN ?`,
		false,
		at,
		ids,
	).Error
}
