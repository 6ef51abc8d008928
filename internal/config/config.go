package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// PriceDisplayMode selects whether the storefront shows gross or net
	// prices by default ("gross" or "net").
	PriceDisplayMode string
	// DefaultShippingCountry is assumed until the customer chooses one.
	DefaultShippingCountry string
	// DeliveryCountSaturdays includes Saturdays in business-day counts.
	DeliveryCountSaturdays bool
	// CartTTL controls how long an untouched cart survives.
	CartTTL time.Duration
	// CartSweepInterval is the worker's expired-cart sweep cadence.
	CartSweepInterval time.Duration
	// Currency is the ISO code reported in cart responses.
	Currency string

	// EventWebhookURL receives emitted domain events when set.
	EventWebhookURL string
	// EventWebhookSecret signs webhook deliveries.
	EventWebhookSecret string
	// EventWebhookTimeout bounds one delivery attempt.
	EventWebhookTimeout time.Duration

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	RateLimit string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:                 valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                   valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:            k.String("DATABASE_URL"),
		RedisURL:               k.String("REDIS_URL"),
		CORSAllowedOrigins:     splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PriceDisplayMode:       valueOrDefault(strings.ToLower(k.String("PRICE_DISPLAY_MODE")), "gross"),
		DefaultShippingCountry: valueOrDefault(k.String("DEFAULT_SHIPPING_COUNTRY"), "DE"),
		DeliveryCountSaturdays: parseBool(k.String("DELIVERY_COUNT_SATURDAYS")),
		CartTTL:                parseDuration(k.String("CART_TTL"), "168h"),
		CartSweepInterval:      parseDuration(k.String("CART_SWEEP_INTERVAL"), "15m"),
		Currency:               valueOrDefault(k.String("CURRENCY"), "EUR"),
		EventWebhookURL:        k.String("EVENT_WEBHOOK_URL"),
		EventWebhookSecret:     k.String("EVENT_WEBHOOK_SECRET"),
		EventWebhookTimeout:    parseDuration(k.String("EVENT_WEBHOOK_TIMEOUT"), "5s"),
		JWTSecret:              k.String("JWT_SECRET"),
		JWTIssuer:              k.String("JWT_ISSUER"),
		JWTAudience:            k.String("JWT_AUDIENCE"),
		RateLimit:              valueOrDefault(k.String("RATE_LIMIT"), "120-M"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.PriceDisplayMode != "gross" && cfg.PriceDisplayMode != "net" {
		return nil, fmt.Errorf("PRICE_DISPLAY_MODE must be gross or net, got %q", cfg.PriceDisplayMode)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
