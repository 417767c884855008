package payment

import (
	"github.com/smallbiznis/billing/internal/config"
	"github.com/smallbiznis/billing/internal/payment/adapters"
	"github.com/smallbiznis/billing/internal/payment/adapters/noop"
	"github.com/smallbiznis/billing/internal/payment/domain"
	"github.com/smallbiznis/billing/internal/payment/repository"
	paymentservice "github.com/smallbiznis/billing/internal/payment/service"
	"github.com/smallbiznis/billing/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			noop.NewFactory(),
		)
	}),
	fx.Provide(NewGateway),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)

// NewGateway builds the processor adapter selected by configuration.
func NewGateway(cfg config.Config, registry *adapters.Registry) (domain.Gateway, error) {
	provider := cfg.PaymentProvider
	if provider == "" {
		provider = "noop"
	}
	return registry.NewAdapter(provider, domain.AdapterConfig{Provider: provider})
}
