package webhook

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/smallbiznis/billing/internal/clock"
	"github.com/smallbiznis/billing/internal/config"
	"github.com/smallbiznis/billing/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(now time.Time, secret string) *webhookService {
	cfg := config.DefaultBillingConfig()
	cfg.Webhooks.Secret = secret
	return &webhookService{
		log:        zap.NewNop(),
		clock:      clock.NewFakeClock(now),
		billingCfg: config.NewStaticBillingConfigHolder(cfg),
	}
}

func signedHeaders(secret string, at time.Time, payload []byte) http.Header {
	headers := http.Header{}
	headers.Set("X-Billing-Timestamp", strconv.FormatInt(at.Unix(), 10))
	headers.Set("X-Billing-Signature", Sign(secret, at.Unix(), payload))
	return headers
}

func TestVerifySignatureAcceptsValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(now, "whsec_test")
	payload := []byte(`{"id":"evt_1","type":"payment_succeeded"}`)

	err := svc.verifySignature(svc.billingCfg.Get().Webhooks, payload, signedHeaders("whsec_test", now, payload))
	assert.NoError(t, err)
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(now, "whsec_test")
	payload := []byte(`{"id":"evt_1"}`)

	err := svc.verifySignature(svc.billingCfg.Get().Webhooks, payload, signedHeaders("other_secret", now, payload))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifySignatureRejectsTamperedPayload(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(now, "whsec_test")
	headers := signedHeaders("whsec_test", now, []byte(`{"id":"evt_1"}`))

	err := svc.verifySignature(svc.billingCfg.Get().Webhooks, []byte(`{"id":"evt_2"}`), headers)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(now, "whsec_test")
	payload := []byte(`{"id":"evt_1"}`)
	sent := now.Add(-10 * time.Minute)

	err := svc.verifySignature(svc.billingCfg.Get().Webhooks, payload, signedHeaders("whsec_test", sent, payload))
	assert.ErrorIs(t, err, domain.ErrStaleTimestamp)
}

func TestVerifySignatureRejectsMissingHeaders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(now, "whsec_test")

	err := svc.verifySignature(svc.billingCfg.Get().Webhooks, []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifySignatureSkippedWithoutSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(now, "")

	err := svc.verifySignature(svc.billingCfg.Get().Webhooks, []byte(`{}`), http.Header{})
	assert.NoError(t, err)
}

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"id": "evt_42",
		"type": "subscription.updated",
		"subscription_id": "123",
		"provider_subscription_id": "sub_abc",
		"period_start": "2026-03-01T00:00:00Z",
		"period_end": "2026-04-01T00:00:00Z",
		"occurred_at": "2026-03-01T12:00:00Z"
	}`)

	event, err := parseEvent("stripe", payload)
	require.NoError(t, err)
	assert.Equal(t, "stripe", event.Provider)
	assert.Equal(t, "evt_42", event.ProviderEventID)
	assert.Equal(t, "subscription.updated", event.Type)
	assert.Equal(t, "123", event.SubscriptionID)
	assert.Equal(t, "sub_abc", event.ProviderSubscriptionID)
	require.NotNil(t, event.PeriodStart)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), event.PeriodStart.UTC())
	require.NotNil(t, event.PeriodEnd)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), event.OccurredAt.UTC())
}

func TestParseEventRejectsBadPayloads(t *testing.T) {
	_, err := parseEvent("stripe", []byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = parseEvent("stripe", []byte(`{"type":"payment_succeeded"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = parseEvent("stripe", []byte(`{"id":"evt_1"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}
