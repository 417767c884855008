package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/billing/internal/billable"
	"github.com/smallbiznis/billing/internal/quota/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, ref billable.Ref, feature string) (*domain.Usage, error) {
	var usage domain.Usage
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&usage, "billable_kind = ? AND billable_id = ? AND feature = ?", ref.Kind, ref.ID, feature).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, ref billable.Ref, feature string) (*domain.Usage, error) {
	var usage domain.Usage
	err := db.WithContext(ctx).
		First(&usage, "billable_kind = ? AND billable_id = ? AND feature = ?", ref.Kind, ref.ID, feature).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, usage *domain.Usage) error {
	return db.WithContext(ctx).Create(usage).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, usage *domain.Usage) error {
	return db.WithContext(ctx).Save(usage).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ref billable.Ref) ([]domain.Usage, error) {
	var usages []domain.Usage
	err := db.WithContext(ctx).
		Where("billable_kind = ? AND billable_id = ?", ref.Kind, ref.ID).
		Order("feature asc").
		Find(&usages).Error
	if err != nil {
		return nil, err
	}
	return usages, nil
}

func (r *repo) ResetAll(ctx context.Context, db *gorm.DB, ref billable.Ref) error {
	return db.WithContext(ctx).Exec(
		`UPDATE quota_usages
		 SET used = 0, warned_thresholds = '[]', last_warning_at = NULL, last_exceeded_at = NULL,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE billable_kind = ? AND billable_id = ?`,
		ref.Kind,
		ref.ID,
	).Error
}
