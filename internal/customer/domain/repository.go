package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/billable"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByBillable(ctx context.Context, db *gorm.DB, ref billable.Ref) (*Customer, error)
	Update(ctx context.Context, db *gorm.DB, customer *Customer) error

	InsertPaymentMethod(ctx context.Context, db *gorm.DB, method *PaymentMethod) error
	FindPaymentMethods(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]PaymentMethod, error)
	FindDefaultPaymentMethod(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*PaymentMethod, error)
	ClearDefaultPaymentMethod(ctx context.Context, db *gorm.DB, customerID snowflake.ID) error
	SetDefaultPaymentMethod(ctx context.Context, db *gorm.DB, customerID, methodID snowflake.ID) error
}
