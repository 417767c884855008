// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billing/internal/billable"
)

// Status is the invoice lifecycle state.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusOpen          Status = "open"
	StatusPaid          Status = "paid"
	StatusVoid          Status = "void"
	StatusUncollectible Status = "uncollectible"
)

// Invoice is a bill issued against a subscription period.
type Invoice struct {
	ID                snowflake.ID    `gorm:"primaryKey"`
	Billable          billable.Ref    `gorm:"embedded"`
	CustomerID        snowflake.ID    `gorm:"not null;index"`
	SubscriptionID    *snowflake.ID   `gorm:"index"`
	InvoiceNumber     int64           `gorm:"not null;uniqueIndex"`
	Currency          string          `gorm:"type:text;not null"`
	Subtotal          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	DiscountTotal     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	TaxTotal          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreditApplied     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Total             decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status            Status          `gorm:"type:text;not null;default:'draft'"`
	DueAt             *time.Time      `gorm:""`
	PaidAt            *time.Time      `gorm:""`
	PeriodStart       *time.Time      `gorm:""`
	PeriodEnd         *time.Time      `gorm:""`
	AttemptCount      int             `gorm:"not null;default:0"`
	ProviderInvoiceID *string         `gorm:"type:text"`
	CreatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []InvoiceItem `gorm:"-"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is one line on an invoice. Discount lines carry a negative
// amount and IsDiscount set.
type InvoiceItem struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	InvoiceID   snowflake.ID    `gorm:"not null;index"`
	PlanID      *snowflake.ID   `gorm:""`
	Description string          `gorm:"type:text;not null"`
	Quantity    int             `gorm:"not null;default:1"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IsProration bool            `gorm:"not null;default:false"`
	IsDiscount  bool            `gorm:"not null;default:false"`
	PeriodStart *time.Time      `gorm:""`
	PeriodEnd   *time.Time      `gorm:""`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }
