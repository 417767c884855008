package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/billable"
	"github.com/smallbiznis/billing/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindActiveByBillable(ctx context.Context, db *gorm.DB, ref billable.Ref) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).
		Where("billable_kind = ? AND billable_id = ? AND status <> ?", ref.Kind, ref.ID, domain.StatusCanceled).
		Order("created_at desc, id desc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Save(sub).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.SubscriptionItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindItems(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]domain.SubscriptionItem, error) {
	var items []domain.SubscriptionItem
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteItem(ctx context.Context, db *gorm.DB, itemID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM subscription_items WHERE id = ?`,
		itemID,
	).Error
}

func (r *repo) ListDueForRenewal(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error) {
	return r.listIDs(ctx, db,
		`SELECT id FROM subscriptions
		 WHERE status = ? AND current_period_end <= ? AND canceled_at IS NULL
		 ORDER BY current_period_end ASC`,
		domain.StatusActive, now,
	)
}

func (r *repo) ListExpiredTrials(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error) {
	return r.listIDs(ctx, db,
		`SELECT id FROM subscriptions
		 WHERE status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at <= ?
		 ORDER BY trial_ends_at ASC`,
		domain.StatusTrialing, now,
	)
}

func (r *repo) ListPastDue(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	return r.listIDs(ctx, db,
		`SELECT id FROM subscriptions
		 WHERE status = ?
		 ORDER BY current_period_end ASC`,
		domain.StatusPastDue,
	)
}

func (r *repo) ListDueScheduledChanges(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error) {
	return r.listIDs(ctx, db,
		`SELECT id FROM subscriptions
		 WHERE scheduled_plan_id IS NOT NULL AND scheduled_change_at IS NOT NULL AND scheduled_change_at <= ?
		 ORDER BY scheduled_change_at ASC`,
		now,
	)
}

func (r *repo) ListExpiredCancellations(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error) {
	return r.listIDs(ctx, db,
		`SELECT id FROM subscriptions
		 WHERE status <> ? AND canceled_at IS NOT NULL AND ends_at IS NOT NULL AND ends_at <= ?
		 ORDER BY ends_at ASC`,
		domain.StatusCanceled, now,
	)
}

func (r *repo) listIDs(ctx context.Context, db *gorm.DB, query string, args ...any) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
