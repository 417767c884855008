// Package domain contains the payment processor abstraction and the
// webhook event store.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// WebhookEvent is a received processor event. The (provider,
// provider_event_id) pair is unique so redelivered events are dropped.
type WebhookEvent struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:uq_webhook_events,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:uq_webhook_events,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

const (
	EventTypePaymentSucceeded    = "payment_succeeded"
	EventTypePaymentFailed       = "payment_failed"
	EventTypeSubscriptionUpdated = "subscription.updated"
	EventTypeSubscriptionDeleted = "subscription.deleted"
)

// Event is the canonical processor event parsed from a webhook payload.
type Event struct {
	Provider               string
	ProviderEventID        string
	Type                   string
	SubscriptionID         string
	InvoiceID              string
	ProviderSubscriptionID string
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
	OccurredAt             time.Time
	RawPayload             []byte
}
