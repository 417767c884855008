package config

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// BillingConfig is the hot-reloadable billing policy.
type BillingConfig struct {
	Currency string        `mapstructure:"currency"`
	Invoice  InvoiceConfig `mapstructure:"invoice"`
	Quota    QuotaConfig   `mapstructure:"quota"`
	Plans    PlanDefaults  `mapstructure:"plan_defaults"`
	Refunds  RefundConfig  `mapstructure:"refunds"`
	Webhooks WebhookConfig `mapstructure:"webhooks"`
}

type InvoiceConfig struct {
	NumberPrefix   string  `mapstructure:"number_prefix"`
	StartingNumber int64   `mapstructure:"starting_number"`
	DueDays        int     `mapstructure:"due_days"`
	TaxRate        float64 `mapstructure:"tax_rate"`
}

type QuotaConfig struct {
	WarningThresholds []int `mapstructure:"warning_thresholds"`
}

type PlanDefaults struct {
	TrialPeriodDays      int    `mapstructure:"trial_period_days"`
	GracePeriodDays      int    `mapstructure:"grace_period_days"`
	CancellationBehavior string `mapstructure:"cancellation_behavior"`
	ChangeBehavior       string `mapstructure:"change_behavior"`
	ProrateChanges       bool   `mapstructure:"prorate_changes"`
}

type RefundConfig struct {
	CreateCredit bool `mapstructure:"create_credit"`
}

type WebhookConfig struct {
	Secret          string        `mapstructure:"secret"`
	Tolerance       time.Duration `mapstructure:"tolerance"`
	SignatureHeader string        `mapstructure:"signature_header"`
	TimestampHeader string        `mapstructure:"timestamp_header"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Currency: "USD",
		Invoice: InvoiceConfig{
			NumberPrefix:   "INV-",
			StartingNumber: 1000,
			DueDays:        14,
			TaxRate:        0,
		},
		Quota: QuotaConfig{
			WarningThresholds: []int{80, 90},
		},
		Plans: PlanDefaults{
			TrialPeriodDays:      0,
			GracePeriodDays:      3,
			CancellationBehavior: "end_of_period",
			ChangeBehavior:       "immediate",
			ProrateChanges:       true,
		},
		Refunds: RefundConfig{
			CreateCredit: true,
		},
		Webhooks: WebhookConfig{
			Tolerance:       5 * time.Minute,
			SignatureHeader: "X-Billing-Signature",
			TimestampHeader: "X-Billing-Timestamp",
		},
	}
}

// TaxRateDecimal returns the flat tax rate as a percentage.
func (c BillingConfig) TaxRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.Invoice.TaxRate)
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed config, used in tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/billing/config") // Volume-mounted config
	v.AddConfigPath("/etc/billing")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.currency", defaults.Currency)
	v.SetDefault("billing.invoice.number_prefix", defaults.Invoice.NumberPrefix)
	v.SetDefault("billing.invoice.starting_number", defaults.Invoice.StartingNumber)
	v.SetDefault("billing.invoice.due_days", defaults.Invoice.DueDays)
	v.SetDefault("billing.invoice.tax_rate", defaults.Invoice.TaxRate)
	v.SetDefault("billing.quota.warning_thresholds", defaults.Quota.WarningThresholds)
	v.SetDefault("billing.plan_defaults.trial_period_days", defaults.Plans.TrialPeriodDays)
	v.SetDefault("billing.plan_defaults.grace_period_days", defaults.Plans.GracePeriodDays)
	v.SetDefault("billing.plan_defaults.cancellation_behavior", defaults.Plans.CancellationBehavior)
	v.SetDefault("billing.plan_defaults.change_behavior", defaults.Plans.ChangeBehavior)
	v.SetDefault("billing.plan_defaults.prorate_changes", defaults.Plans.ProrateChanges)
	v.SetDefault("billing.refunds.create_credit", defaults.Refunds.CreateCredit)
	v.SetDefault("billing.webhooks.tolerance", defaults.Webhooks.Tolerance)
	v.SetDefault("billing.webhooks.signature_header", defaults.Webhooks.SignatureHeader)
	v.SetDefault("billing.webhooks.timestamp_header", defaults.Webhooks.TimestampHeader)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if len(strings.TrimSpace(cfg.Currency)) != 3 {
		return errors.New("billing.currency must be a 3-letter code")
	}
	if cfg.Invoice.StartingNumber <= 0 {
		return errors.New("billing.invoice.starting_number must be positive")
	}
	if cfg.Invoice.TaxRate < 0 || cfg.Invoice.TaxRate >= 100 {
		return errors.New("billing.invoice.tax_rate must be in [0, 100)")
	}
	if len(cfg.Quota.WarningThresholds) == 0 {
		return errors.New("billing.quota.warning_thresholds cannot be empty")
	}
	if !sort.IntsAreSorted(cfg.Quota.WarningThresholds) {
		return errors.New("billing.quota.warning_thresholds must be ascending")
	}
	for _, threshold := range cfg.Quota.WarningThresholds {
		if threshold <= 0 || threshold >= 100 {
			return errors.New("billing.quota.warning_thresholds must be in (0, 100)")
		}
	}
	switch cfg.Plans.CancellationBehavior {
	case "immediately", "end_of_period":
	default:
		return errors.New("billing.plan_defaults.cancellation_behavior must be immediately or end_of_period")
	}
	switch cfg.Plans.ChangeBehavior {
	case "immediate", "scheduled":
	default:
		return errors.New("billing.plan_defaults.change_behavior must be immediate or scheduled")
	}
	if cfg.Plans.GracePeriodDays < 0 || cfg.Plans.TrialPeriodDays < 0 {
		return errors.New("billing.plan_defaults periods cannot be negative")
	}
	return nil
}
