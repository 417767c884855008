package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/billable"
	"github.com/smallbiznis/billing/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Create(customer).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).First(&customer, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repo) FindByBillable(ctx context.Context, db *gorm.DB, ref billable.Ref) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).
		First(&customer, "billable_kind = ? AND billable_id = ?", ref.Kind, ref.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Save(customer).Error
}

func (r *repo) InsertPaymentMethod(ctx context.Context, db *gorm.DB, method *domain.PaymentMethod) error {
	return db.WithContext(ctx).Create(method).Error
}

func (r *repo) FindPaymentMethods(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.PaymentMethod, error) {
	var methods []domain.PaymentMethod
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at asc, id asc").
		Find(&methods).Error
	if err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *repo) FindDefaultPaymentMethod(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*domain.PaymentMethod, error) {
	var method domain.PaymentMethod
	err := db.WithContext(ctx).
		First(&method, "customer_id = ? AND is_default = ?", customerID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (r *repo) ClearDefaultPaymentMethod(ctx context.Context, db *gorm.DB, customerID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_methods SET is_default = ?, updated_at = CURRENT_TIMESTAMP WHERE customer_id = ?`,
		false,
		customerID,
	).Error
}

func (r *repo) SetDefaultPaymentMethod(ctx context.Context, db *gorm.DB, customerID, methodID snowflake.ID) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_methods SET is_default = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE customer_id = ? AND id = ?`,
		true,
		customerID,
		methodID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrPaymentMethodNotFound
	}
	return nil
}
