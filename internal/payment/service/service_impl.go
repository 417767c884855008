package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billing/internal/clock"
	invoicedomain "github.com/smallbiznis/billing/internal/invoice/domain"
	"github.com/smallbiznis/billing/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	Subscriptions subscriptiondomain.Service
	Invoices      invoicedomain.Service
}

// Service reconciles canonical processor events against local billing
// state.
type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	subscriptions subscriptiondomain.Service
	invoices      invoicedomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		subscriptions: p.Subscriptions,
		invoices:      p.Invoices,
	}
}

// ProcessEvent stores the event exactly once and applies its effects.
// Redelivered events return ErrEventProcessed without side effects.
func (s *Service) ProcessEvent(ctx context.Context, event *domain.Event, payload []byte) error {
	if event == nil || event.Provider == "" || event.ProviderEventID == "" {
		return domain.ErrInvalidPayload
	}

	record := domain.WebhookEvent{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         payload,
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return err
	}
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrInvalidPayload
		}
		if existing.ProcessedAt != nil {
			return domain.ErrEventProcessed
		}
		record = *existing
	}

	if err := s.processEvent(ctx, event); err != nil {
		return err
	}
	return s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now())
}

func (s *Service) processEvent(ctx context.Context, event *domain.Event) error {
	switch event.Type {
	case domain.EventTypePaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, event)
	case domain.EventTypePaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	case domain.EventTypeSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, event)
	case domain.EventTypeSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		s.log.Debug("ignoring webhook event type",
			zap.String("provider", event.Provider),
			zap.String("type", event.Type),
		)
		return nil
	}
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, event *domain.Event) error {
	if event.InvoiceID != "" {
		if _, err := s.invoices.MarkPaid(ctx, event.InvoiceID); err != nil {
			return err
		}
	}
	if event.SubscriptionID != "" {
		if _, err := s.subscriptions.Activate(ctx, event.SubscriptionID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *domain.Event) error {
	if event.InvoiceID != "" {
		if _, err := s.invoices.MarkPaymentFailed(ctx, event.InvoiceID); err != nil {
			return err
		}
	}
	if event.SubscriptionID != "" {
		if _, err := s.subscriptions.MarkPaymentFailed(ctx, event.SubscriptionID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *domain.Event) error {
	if event.SubscriptionID == "" || event.PeriodStart == nil || event.PeriodEnd == nil {
		return nil
	}
	return s.subscriptions.SyncPeriods(ctx, event.SubscriptionID, *event.PeriodStart, *event.PeriodEnd)
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *domain.Event) error {
	if event.SubscriptionID == "" {
		return nil
	}
	immediately := true
	_, err := s.subscriptions.Cancel(ctx, event.SubscriptionID, subscriptiondomain.CancelOptions{
		Immediately: &immediately,
	})
	if errors.Is(err, subscriptiondomain.ErrAlreadyCanceled) {
		return nil
	}
	return err
}
