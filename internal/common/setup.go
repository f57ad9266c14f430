package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"numledger-go/internal/database"
	"numledger-go/internal/models"
	"numledger-go/internal/payments"
	"numledger-go/internal/pricing"
	"numledger-go/internal/provider"
	"numledger-go/internal/rental"
	"numledger-go/internal/verification"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// init loads environment variables from a .env file if one exists.
// Environment can equally come from the shell or the container runtime.
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: no .env file loaded: %v\n", err)
	}
}

type Services struct {
	DbService     *database.Service
	Pricing       *pricing.Engine
	Provider      provider.Client
	Reconciler    *payments.Reconciler
	Verifications *verification.Service
	Rentals       *rental.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// isIgnorableSyncError filters the EINVAL/ENOTTY noise zap emits when
// stderr is a terminal.
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "inappropriate ioctl for device") ||
		strings.Contains(msg, "bad file descriptor")
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	catalog := pricing.NewCatalog(nil)
	if cfg.Pricing.CatalogFile != "" {
		catalog, err = pricing.LoadCatalog(cfg.Pricing.CatalogFile)
		if err != nil {
			dbService.Close()
			return nil, fmt.Errorf("failed to load service catalog: %w", err)
		}
		zap.L().Info("Loaded service catalog", zap.String("file", cfg.Pricing.CatalogFile))
	}
	engine := pricing.NewEngine(pricing.DefaultRateCard(), catalog)

	rates, err := loadRateSource()
	if err != nil {
		dbService.Close()
		return nil, err
	}
	converter := payments.NewRateCache(rates, cfg.Payments.RateTTL)

	referral, err := loadReferralPolicy(cfg.Payments)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	reconciler := payments.NewReconciler(dbService, converter, cfg.Webhook.SigningSecret, referral)

	// The sandbox stands in for the real provider client; production
	// deployments swap it behind the same interface.
	numberProvider := provider.NewSandbox()
	providerTimeout := 10 * time.Second

	return &Services{
		DbService:     dbService,
		Pricing:       engine,
		Provider:      numberProvider,
		Reconciler:    reconciler,
		Verifications: verification.NewService(dbService, engine, numberProvider, providerTimeout),
		Rentals:       rental.NewService(dbService, engine, numberProvider, providerTimeout),
	}, nil
}

func (s *Services) Close() {
	s.DbService.Close()
}

// loadRateSource parses PAYMENT_RATES, a comma-separated list of
// CURRENCY=credits-per-unit pairs, e.g. "USD=10,EUR=11.2".
func loadRateSource() (payments.StaticRateSource, error) {
	raw := os.Getenv("PAYMENT_RATES")
	if raw == "" {
		raw = "USD=10"
	}

	source := payments.StaticRateSource{}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid PAYMENT_RATES entry %q", pair)
		}
		rate, err := decimal.NewFromString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", parts[0], err)
		}
		source[strings.ToUpper(parts[0])] = rate
	}
	return source, nil
}

func loadReferralPolicy(cfg models.PaymentsConfig) (payments.ReferralPolicy, error) {
	threshold, err := decimal.NewFromString(cfg.ReferralThreshold)
	if err != nil {
		return payments.ReferralPolicy{}, fmt.Errorf("invalid REFERRAL_THRESHOLD: %w", err)
	}
	bonus, err := decimal.NewFromString(cfg.ReferralBonus)
	if err != nil {
		return payments.ReferralPolicy{}, fmt.Errorf("invalid REFERRAL_BONUS: %w", err)
	}
	return payments.ReferralPolicy{Threshold: threshold, Bonus: bonus}, nil
}
