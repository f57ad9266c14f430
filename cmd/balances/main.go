package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"numledger-go/internal/common"
	"numledger-go/internal/config"
	"numledger-go/internal/store"

	"go.uber.org/zap"
)

func main() {
	accountId := flag.String("account", "", "Account id to inspect (required)")
	showHistory := flag.Bool("history", false, "Print the transaction history")
	historyLimit := flag.Int("limit", 25, "Maximum history entries to print")
	reconcile := flag.Bool("reconcile", false, "Verify the balance against the transaction log")
	flag.Parse()

	if *accountId == "" {
		fmt.Fprintln(os.Stderr, "Usage: balances --account <id> [--history] [--reconcile]")
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

	account, err := services.DbService.GetAccount(ctx, *accountId)
	if err != nil {
		zap.L().Fatal("Failed to load account", zap.String("account_id", *accountId), zap.Error(err))
	}

	fmt.Printf("Account %s (%s)\n", account.Id, account.Email)
	fmt.Printf("  balance:    %s credits\n", account.CreditBalance.String())
	fmt.Printf("  free units: %d\n", account.FreeVerificationUnits)
	fmt.Printf("  tier:       %s\n", account.DiscountTier)
	fmt.Printf("  funded:     %s\n", account.LifetimeFunded.String())
	if !account.Active {
		fmt.Println("  (deactivated)")
	}

	if *reconcile {
		if err := services.DbService.ReconcileAccount(ctx, account.Id); err != nil {
			fmt.Fprintf(os.Stderr, "RECONCILIATION FAILED: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("  reconciliation: OK")
	}

	if *showHistory {
		history, err := services.DbService.History(ctx, account.Id, store.HistoryFilter{Limit: *historyLimit})
		if err != nil {
			zap.L().Fatal("Failed to load history", zap.Error(err))
		}

		fmt.Printf("\n%-25s %-22s %12s %12s\n", "created", "kind", "amount", "balance")
		for _, txn := range history {
			fmt.Printf("%-25s %-22s %12s %12s\n",
				txn.CreatedAt.Format("2006-01-02 15:04:05"),
				txn.Kind, txn.Amount.String(), txn.BalanceAfter.String())
		}
	}
}
