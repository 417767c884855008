// Package webhook verifies and ingests payment processor webhooks.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	"github.com/smallbiznis/billing/internal/observability/metrics"
	"github.com/smallbiznis/billing/internal/payment/domain"
	"github.com/smallbiznis/billing/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	BillingCfg *config.BillingConfigHolder
	Processor  *service.Service
	Metrics    *metrics.Metrics
}

type webhookService struct {
	log        *zap.Logger
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder
	processor  *service.Service
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &webhookService{
		log:        p.Log.Named("payment.webhook"),
		clock:      p.Clock,
		billingCfg: p.BillingCfg,
		processor:  p.Processor,
		metrics:    p.Metrics,
	}
}

// envelope is the canonical webhook payload shape.
type envelope struct {
	ID                     string     `json:"id"`
	Type                   string     `json:"type"`
	SubscriptionID         string     `json:"subscription_id"`
	InvoiceID              string     `json:"invoice_id"`
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
	PeriodStart            *time.Time `json:"period_start"`
	PeriodEnd              *time.Time `json:"period_end"`
	OccurredAt             *time.Time `json:"occurred_at"`
}

func (s *webhookService) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		s.metrics.IncWebhookEvent("unknown", "", "invalid_provider")
		return domain.ErrInvalidProvider
	}

	cfg := s.billingCfg.Get().Webhooks
	if err := s.verifySignature(cfg, payload, headers); err != nil {
		outcome := "invalid_signature"
		if errors.Is(err, domain.ErrStaleTimestamp) {
			outcome = "stale_timestamp"
		}
		s.metrics.IncWebhookEvent(provider, "", outcome)
		s.log.Warn("webhook rejected",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return err
	}

	event, err := parseEvent(provider, payload)
	if err != nil {
		s.metrics.IncWebhookEvent(provider, "", "invalid_payload")
		return err
	}

	err = s.processor.ProcessEvent(ctx, event, payload)
	switch {
	case errors.Is(err, domain.ErrEventProcessed):
		s.metrics.IncWebhookEvent(provider, event.Type, "duplicate")
		return err
	case err != nil:
		s.metrics.IncWebhookEvent(provider, event.Type, "error")
		s.log.Error("webhook processing failed",
			zap.String("provider", provider),
			zap.String("event_id", event.ProviderEventID),
			zap.String("type", event.Type),
			zap.Error(err),
		)
		return err
	}

	s.metrics.IncWebhookEvent(provider, event.Type, "ok")
	return nil
}

// verifySignature checks the hex HMAC-SHA256 of "<timestamp>.<payload>"
// against the signature header. A missing shared secret disables
// verification, which is only acceptable in development setups.
func (s *webhookService) verifySignature(cfg config.WebhookConfig, payload []byte, headers http.Header) error {
	if cfg.Secret == "" {
		return nil
	}

	timestampRaw := strings.TrimSpace(headers.Get(cfg.TimestampHeader))
	if timestampRaw == "" {
		return domain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestampRaw, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	sent := time.Unix(unix, 0)
	drift := s.clock.Now().Sub(sent)
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return domain.ErrStaleTimestamp
	}

	signature := strings.TrimSpace(headers.Get(cfg.SignatureHeader))
	if signature == "" {
		return domain.ErrInvalidSignature
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(cfg.Secret))
	mac.Write([]byte(timestampRaw))
	mac.Write([]byte("."))
	mac.Write(payload)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// Sign computes the signature expected for a payload at the given
// timestamp. Exported for test harnesses and outbound deliveries.
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseEvent(provider string, payload []byte) (*domain.Event, error) {
	if !json.Valid(payload) {
		return nil, domain.ErrInvalidPayload
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if env.ID == "" || env.Type == "" {
		return nil, domain.ErrInvalidPayload
	}

	event := &domain.Event{
		Provider:               provider,
		ProviderEventID:        env.ID,
		Type:                   env.Type,
		SubscriptionID:         env.SubscriptionID,
		InvoiceID:              env.InvoiceID,
		ProviderSubscriptionID: env.ProviderSubscriptionID,
		PeriodStart:            env.PeriodStart,
		PeriodEnd:              env.PeriodEnd,
		RawPayload:             payload,
	}
	if env.OccurredAt != nil {
		event.OccurredAt = *env.OccurredAt
	}
	return event, nil
}
