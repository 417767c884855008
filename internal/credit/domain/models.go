// Package domain contains the append-only customer credit ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CreditType labels why a ledger entry exists. Additions carry a positive
// amount, deductions a negative one.
type CreditType string

const (
	TypeGrant       CreditType = "grant"
	TypePromotional CreditType = "promotional"
	TypeRefund      CreditType = "refund"
	TypeProration   CreditType = "proration"
	TypeDeduction   CreditType = "deduction"
	TypeExpiration  CreditType = "expiration"
)

// CustomerCredit is one immutable ledger entry. The running balance is
// snapshotted on every entry so history reads need no aggregation.
type CustomerCredit struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	CustomerID    snowflake.ID    `gorm:"not null;index"`
	Type          CreditType      `gorm:"column:credit_type;type:text;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency      string          `gorm:"type:text;not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Description   string          `gorm:"type:text;not null;default:''"`
	ExpiresAt     *time.Time      `gorm:""`
	ExpiredAt     *time.Time      `gorm:""`
	SourceType    *string         `gorm:"type:text"`
	SourceID      *string         `gorm:"type:text"`
	Metadata      datatypes.JSONMap
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CustomerCredit) TableName() string { return "customer_credits" }
