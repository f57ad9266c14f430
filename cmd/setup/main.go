package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"numledger-go/internal/common"
	"numledger-go/internal/config"
	"numledger-go/internal/models"
	"numledger-go/internal/store"

	"go.uber.org/zap"
)

// demoAccounts seeds a small fixture set for local development.
var demoAccounts = []store.CreateAccountParams{
	{Email: "alice@example.com", DiscountTier: models.TierNone, FreeUnits: 1},
	{Email: "bob@example.com", DiscountTier: models.TierDeveloper},
	{Email: "carol@example.com", DiscountTier: models.TierEnterprise},
}

func main() {
	seed := flag.Bool("seed", false, "Seed demo accounts after creating the schema")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	fmt.Printf("Schema ready at %s\n", cfg.Database.Path)

	if !*seed && !cfg.Database.SeedDemoData {
		return
	}

	for _, params := range demoAccounts {
		account, err := services.DbService.CreateAccount(ctx, params)
		if errors.Is(err, store.ErrDuplicateAccount) {
			fmt.Printf("  %-22s already exists, skipping\n", params.Email)
			continue
		}
		if err != nil {
			zap.L().Fatal("Failed to seed account",
				zap.String("email", params.Email),
				zap.Error(err))
		}
		fmt.Printf("  %-22s %s tier=%s free_units=%d\n",
			account.Email, account.Id, account.DiscountTier, account.FreeVerificationUnits)
	}
}
