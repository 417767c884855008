// Package domain contains customer records and their payment methods.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/billable"
	"gorm.io/datatypes"
)

// Customer is the billing profile backing a billable entity.
type Customer struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	Billable           billable.Ref `gorm:"embedded"`
	Name               string       `gorm:"type:text;not null;default:''"`
	Email              string       `gorm:"type:text;not null;default:''"`
	Currency           string       `gorm:"type:text;not null;default:'USD'"`
	ProviderCustomerID *string      `gorm:"type:text"`
	Metadata           datatypes.JSONMap
	CreatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Customer) TableName() string { return "customers" }

// PaymentMethodKind is the instrument type of a stored payment method.
type PaymentMethodKind string

const (
	PaymentMethodCard PaymentMethodKind = "card"
	PaymentMethodBank PaymentMethodKind = "bank"
)

// PaymentMethod is a payment instrument attached to a customer.
type PaymentMethod struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	CustomerID       snowflake.ID      `gorm:"not null;index"`
	Provider         string            `gorm:"type:text;not null;default:''"`
	ProviderMethodID string            `gorm:"type:text;not null;default:''"`
	Kind             PaymentMethodKind `gorm:"type:text;not null;default:'card'"`
	Last4            string            `gorm:"type:text;not null;default:''"`
	IsDefault        bool              `gorm:"not null;default:false"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }
