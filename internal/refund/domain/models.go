// Package domain contains refund records against paid invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Status is the refund lifecycle state. Refunds start pending and settle
// exactly once.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Refund is money returned against a paid invoice.
type Refund struct {
	ID               snowflake.ID    `gorm:"primaryKey"`
	InvoiceID        snowflake.ID    `gorm:"not null;index"`
	CustomerID       snowflake.ID    `gorm:"not null"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency         string          `gorm:"type:text;not null"`
	Status           Status          `gorm:"type:text;not null;default:'pending'"`
	Reason           string          `gorm:"type:text;not null;default:''"`
	ProviderRefundID *string         `gorm:"type:text"`
	ProcessedAt      *time.Time      `gorm:""`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Refund) TableName() string { return "refunds" }
