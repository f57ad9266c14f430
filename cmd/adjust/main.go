package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"numledger-go/internal/common"
	"numledger-go/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	accountId := flag.String("account", "", "Account id to adjust (required)")
	amountArg := flag.String("amount", "", "Signed credit amount, e.g. 25.00 or -10.50 (required)")
	reason := flag.String("reason", "", "Audit reason for the adjustment (required)")
	flag.Parse()

	if *accountId == "" || *amountArg == "" || *reason == "" {
		fmt.Fprintln(os.Stderr, "Usage: adjust --account <id> --amount <signed amount> --reason <text>")
		os.Exit(1)
	}

	amount, err := decimal.NewFromString(*amountArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid amount %q: %v\n", *amountArg, err)
		os.Exit(1)
	}

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

	txn, err := services.DbService.AdminAdjust(ctx, *accountId, amount, *reason)
	if err != nil {
		zap.L().Fatal("Adjustment failed",
			zap.String("account_id", *accountId),
			zap.String("amount", amount.String()),
			zap.Error(err))
	}

	zap.L().Info("Adjustment applied",
		zap.String("account_id", *accountId),
		zap.String("transaction_id", txn.Id),
		zap.String("amount", txn.Amount.String()),
		zap.String("balance_after", txn.BalanceAfter.String()))

	fmt.Printf("Applied %s to %s, new balance %s\n", txn.Amount.String(), *accountId, txn.BalanceAfter.String())
}
