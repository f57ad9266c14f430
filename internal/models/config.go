package models

import "time"

type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	SeedDemoData    bool
}

type SweeperConfig struct {
	VerificationInterval time.Duration
	RentalInterval       time.Duration
	BatchSize            int
}

type WebhookConfig struct {
	ListenAddr     string
	SigningSecret  string
	MetricsEnabled bool
}

type PaymentsConfig struct {
	RateTTL           time.Duration
	ReferralThreshold string // decimal, credits
	ReferralBonus     string // decimal, credits
}

type PricingConfig struct {
	CatalogFile string
}

type Config struct {
	Database DatabaseConfig
	Sweeper  SweeperConfig
	Webhook  WebhookConfig
	Payments PaymentsConfig
	Pricing  PricingConfig
}
