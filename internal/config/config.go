package config

import (
	"os"
	"time"

	"github.com/Skotchmaster/shop_checkout/pkg/config"
)

type ServiceConfig struct {
	config.Config

	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string

	ClientURL  string
	CatalogURL string
	AddressURL string

	OrderEventsTopic string

	CouponSyncInterval  time.Duration
	OrphanSweepInterval time.Duration
	OrphanAfter         time.Duration
	WebhookEventTTL     time.Duration
	ReturnWindow        time.Duration

	RateLimitRPS   int
	RateLimitBurst int
}

// Load reads the service configuration. The webhook secret may be empty: the
// service still starts, but every webhook delivery is answered with 500.
func Load() ServiceConfig {
	sc := read()

	config.MustNonEmpty(sc.DatabaseURL, "DATABASE_URL")
	config.MustNonEmptyBytes(sc.JWTAccessSecret, "JWT_SECRET")
	config.MustNonEmpty(sc.AuthHTTPURL, "AUTH_URL")
	config.MustNonEmpty(sc.StripeSecretKey, "STRIPE_SECRET_KEY")
	config.MustNonEmpty(sc.CatalogURL, "CATALOG_URL")
	config.MustNonEmpty(sc.AddressURL, "ADDRESS_URL")

	return sc
}

// LoadJobs reads the configuration for one-shot maintenance runs, which need
// only the database and the processor.
func LoadJobs() ServiceConfig {
	sc := read()

	config.MustNonEmpty(sc.DatabaseURL, "DATABASE_URL")
	config.MustNonEmpty(sc.StripeSecretKey, "STRIPE_SECRET_KEY")

	return sc
}

func read() ServiceConfig {
	return ServiceConfig{
		Config: config.Load(),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            config.EnvDefault("CURRENCY", "inr"),

		ClientURL:  config.EnvDefault("CLIENT_URL", "http://localhost:3000"),
		CatalogURL: os.Getenv("CATALOG_URL"),
		AddressURL: os.Getenv("ADDRESS_URL"),

		OrderEventsTopic: config.EnvDefault("ORDER_EVENTS_TOPIC", "order_events"),

		CouponSyncInterval:  config.EnvDurationDefault("COUPON_SYNC_INTERVAL", 15*time.Minute),
		OrphanSweepInterval: config.EnvDurationDefault("ORPHAN_SWEEP_INTERVAL", 5*time.Minute),
		OrphanAfter:         config.EnvDurationDefault("ORPHAN_AFTER", 30*time.Minute),
		WebhookEventTTL:     config.EnvDurationDefault("WEBHOOK_EVENT_TTL", 72*time.Hour),
		ReturnWindow:        config.EnvDurationDefault("RETURN_WINDOW", 7*24*time.Hour),

		RateLimitRPS:   config.EnvIntDefault("RATE_LIMIT_RPS", 10),
		RateLimitBurst: config.EnvIntDefault("RATE_LIMIT_BURST", 20),
	}
}
