// Package events carries domain events emitted by billing services.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is implemented by every domain event payload.
type Event interface {
	EventName() string
}

// Envelope wraps an event for transport and logging.
type Envelope struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Event     `json:"payload"`
}

type SubscriptionCreated struct {
	SubscriptionID string   `json:"subscription_id"`
	BillableKind   string   `json:"billable_kind"`
	BillableID     string   `json:"billable_id"`
	Status         string   `json:"status"`
	PlanCodes      []string `json:"plan_codes"`
}

func (SubscriptionCreated) EventName() string { return "subscription.created" }

type SubscriptionCanceled struct {
	SubscriptionID string     `json:"subscription_id"`
	Immediately    bool       `json:"immediately"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
}

func (SubscriptionCanceled) EventName() string { return "subscription.canceled" }

type SubscriptionResumed struct {
	SubscriptionID string `json:"subscription_id"`
}

func (SubscriptionResumed) EventName() string { return "subscription.resumed" }

type SubscriptionRenewed struct {
	SubscriptionID string    `json:"subscription_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
}

func (SubscriptionRenewed) EventName() string { return "subscription.renewed" }

type SubscriptionTrialEnding struct {
	SubscriptionID string    `json:"subscription_id"`
	TrialEndsAt    time.Time `json:"trial_ends_at"`
}

func (SubscriptionTrialEnding) EventName() string { return "subscription.trial_ending" }

type PlanChanged struct {
	SubscriptionID string `json:"subscription_id"`
	FromPlanCode   string `json:"from_plan_code"`
	ToPlanCode     string `json:"to_plan_code"`
	Prorated       bool   `json:"prorated"`
}

func (PlanChanged) EventName() string { return "subscription.plan_changed" }

type PlanChangeScheduled struct {
	SubscriptionID string    `json:"subscription_id"`
	ToPlanCode     string    `json:"to_plan_code"`
	EffectiveAt    time.Time `json:"effective_at"`
}

func (PlanChangeScheduled) EventName() string { return "subscription.plan_change_scheduled" }

type InvoiceCreated struct {
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
}

func (InvoiceCreated) EventName() string { return "invoice.created" }

type InvoicePaid struct {
	InvoiceID string          `json:"invoice_id"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
}

func (InvoicePaid) EventName() string { return "invoice.paid" }

type InvoicePaymentFailed struct {
	InvoiceID    string `json:"invoice_id"`
	AttemptCount int    `json:"attempt_count"`
}

func (InvoicePaymentFailed) EventName() string { return "invoice.payment_failed" }

type CreditAdded struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Balance    decimal.Decimal `json:"balance"`
}

func (CreditAdded) EventName() string { return "credit.added" }

type CreditApplied struct {
	CustomerID string          `json:"customer_id"`
	InvoiceID  string          `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance"`
}

func (CreditApplied) EventName() string { return "credit.applied" }

type CreditExpired struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance"`
}

func (CreditExpired) EventName() string { return "credit.expired" }

type RefundCreated struct {
	RefundID  string          `json:"refund_id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

func (RefundCreated) EventName() string { return "refund.created" }

type RefundSucceeded struct {
	RefundID  string          `json:"refund_id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

func (RefundSucceeded) EventName() string { return "refund.succeeded" }

type RefundFailed struct {
	RefundID string `json:"refund_id"`
	Reason   string `json:"reason,omitempty"`
}

func (RefundFailed) EventName() string { return "refund.failed" }

type RefundCanceled struct {
	RefundID string `json:"refund_id"`
}

func (RefundCanceled) EventName() string { return "refund.canceled" }

type QuotaWarning struct {
	BillableKind string          `json:"billable_kind"`
	BillableID   string          `json:"billable_id"`
	Feature      string          `json:"feature"`
	Threshold    int             `json:"threshold"`
	Used         decimal.Decimal `json:"used"`
	Limit        decimal.Decimal `json:"limit"`
}

func (QuotaWarning) EventName() string { return "quota.warning" }

type QuotaExceeded struct {
	BillableKind string          `json:"billable_kind"`
	BillableID   string          `json:"billable_id"`
	Feature      string          `json:"feature"`
	Used         decimal.Decimal `json:"used"`
	Limit        decimal.Decimal `json:"limit"`
	Overage      decimal.Decimal `json:"overage"`
}

func (QuotaExceeded) EventName() string { return "quota.exceeded" }
