package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"numledger-go/internal/models"
)

func Load() (*models.Config, error) {
	verificationSweep, err := getEnvDuration("SWEEP_VERIFICATION_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}

	rentalSweep, err := getEnvDuration("SWEEP_RENTAL_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	rateTTL, err := getEnvDuration("PAYMENT_RATE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "numledger.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			SeedDemoData:    getEnvBool("SEED_DEMO_DATA", false),
		},
		Sweeper: models.SweeperConfig{
			VerificationInterval: verificationSweep,
			RentalInterval:       rentalSweep,
			BatchSize:            getEnvInt("SWEEP_BATCH_SIZE", 100),
		},
		Webhook: models.WebhookConfig{
			ListenAddr:     getEnvString("WEBHOOK_LISTEN_ADDR", ":8080"),
			SigningSecret:  getEnvString("PAYMENT_WEBHOOK_SECRET", ""),
			MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		},
		Payments: models.PaymentsConfig{
			RateTTL:           rateTTL,
			ReferralThreshold: getEnvString("REFERRAL_THRESHOLD", "50"),
			ReferralBonus:     getEnvString("REFERRAL_BONUS", "0"),
		},
		Pricing: models.PricingConfig{
			CatalogFile: getEnvString("SERVICE_CATALOG_FILE", ""),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
