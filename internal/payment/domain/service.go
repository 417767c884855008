package domain

import (
	"context"
	"net/http"
)

// Service ingests processor webhooks: verify, dedupe, reconcile.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
