package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"numledger-go/internal/models"
	"numledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// accountRow is the subset of the account read under the optimistic
// lock for a balance mutation.
type accountRow struct {
	balance        decimal.Decimal
	freeUnits      int64
	lifetimeFunded decimal.Decimal
	referrerId     string
	version        int64
	active         bool
}

func (s *Service) getAccountRowTx(ctx context.Context, tx *sql.Tx, accountId string) (*accountRow, error) {
	var row accountRow
	var balanceStr, lifetimeStr string
	err := tx.QueryRowContext(ctx, queryGetAccountRow, accountId).
		Scan(&balanceStr, &row.freeUnits, &lifetimeStr, &row.referrerId, &row.version, &row.active)
	if err == sql.ErrNoRows {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", accountId, err)
	}

	if row.balance, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	if row.lifetimeFunded, err = decimal.NewFromString(lifetimeStr); err != nil {
		return nil, fmt.Errorf("failed to parse lifetime funded '%s': %w", lifetimeStr, err)
	}
	return &row, nil
}

// applyLedgerTx is the single path that mutates credit_balance. It
// appends the transaction row and compare-and-swaps the account row on
// its version; signedAmount is negative for debits. When fund is true
// the amount also accrues to lifetime_funded.
func (s *Service) applyLedgerTx(ctx context.Context, tx *sql.Tx, accountId string, signedAmount decimal.Decimal, kind models.TransactionKind, referenceId, reason string, fund bool) (*models.Transaction, *accountRow, error) {
	row, err := s.getAccountRowTx(ctx, tx, accountId)
	if err != nil {
		return nil, nil, err
	}
	if !row.active {
		return nil, nil, store.ErrAccountInactive
	}

	newBalance := row.balance.Add(signedAmount)
	if newBalance.IsNegative() {
		return nil, nil, store.ErrInsufficientFunds
	}

	newLifetime := row.lifetimeFunded
	if fund {
		newLifetime = newLifetime.Add(signedAmount)
	}

	now := nowUTC()
	txn := &models.Transaction{
		Id:           uuid.New().String(),
		AccountId:    accountId,
		Amount:       signedAmount,
		Kind:         kind,
		ReferenceId:  referenceId,
		Reason:       reason,
		BalanceAfter: newBalance,
		CreatedAt:    now,
	}

	_, err = tx.ExecContext(ctx, queryInsertTransaction,
		txn.Id, txn.AccountId, txn.Amount.String(), string(txn.Kind),
		txn.ReferenceId, txn.Reason, txn.BalanceAfter.String(), txn.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance,
		newBalance.String(), newLifetime.String(), now, accountId, row.version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil, store.ErrConcurrentModification
	}

	return txn, row, nil
}

// Debit atomically decrements the balance and appends a transaction
// with negative amount. Returns ErrInsufficientFunds without writes
// when the balance is short.
func (s *Service) Debit(ctx context.Context, accountId string, amount decimal.Decimal, kind models.TransactionKind, referenceId string) (*models.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrInvalidAmount
	}

	var txn *models.Transaction
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		txn, _, err = s.applyLedgerTx(ctx, tx, accountId, amount.Neg(), kind, referenceId, "", false)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Debit applied",
		zap.String("account_id", accountId),
		zap.String("amount", amount.String()),
		zap.String("kind", string(kind)),
		zap.String("balance_after", txn.BalanceAfter.String()))
	return txn, nil
}

// Credit atomically increments the balance and appends a transaction
// with positive amount.
func (s *Service) Credit(ctx context.Context, accountId string, amount decimal.Decimal, kind models.TransactionKind, referenceId string) (*models.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrInvalidAmount
	}

	var txn *models.Transaction
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		txn, _, err = s.applyLedgerTx(ctx, tx, accountId, amount, kind, referenceId, "", kind == models.KindFunding)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Credit applied",
		zap.String("account_id", accountId),
		zap.String("amount", amount.String()),
		zap.String("kind", string(kind)),
		zap.String("balance_after", txn.BalanceAfter.String()))
	return txn, nil
}

// AdminAdjust applies a manual correction. Amount is signed; a
// non-empty reason is mandatory for the audit trail.
func (s *Service) AdminAdjust(ctx context.Context, accountId string, amount decimal.Decimal, reason string) (*models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("admin adjustment requires a reason")
	}
	if amount.IsZero() {
		return nil, store.ErrInvalidAmount
	}

	var txn *models.Transaction
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		txn, _, err = s.applyLedgerTx(ctx, tx, accountId, amount, models.KindAdminAdjustment, "", reason, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Admin adjustment applied",
		zap.String("account_id", accountId),
		zap.String("amount", amount.String()),
		zap.String("reason", reason))
	return txn, nil
}

// BalanceOf returns the latest committed balance.
func (s *Service) BalanceOf(ctx context.Context, accountId string) (decimal.Decimal, error) {
	var balanceStr string
	err := s.db.QueryRowContext(ctx, queryGetBalance, accountId).Scan(&balanceStr)
	if err == sql.ErrNoRows {
		return decimal.Zero, store.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	return balance, nil
}

// History returns a snapshot of the transaction log, newest first.
func (s *Service) History(ctx context.Context, accountId string, filter store.HistoryFilter) ([]models.Transaction, error) {
	query := `
		SELECT id, account_id, amount, kind, reference_id, reason, balance_after, created_at
		FROM transactions
		WHERE account_id = ?`
	args := []any{accountId}

	if len(filter.Kinds) > 0 {
		placeholders := make([]string, len(filter.Kinds))
		for i, kind := range filter.Kinds {
			placeholders[i] = "?"
			args = append(args, string(kind))
		}
		query += " AND kind IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.Until.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var history []models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return history, nil
}

func scanTransaction(rows *sql.Rows) (*models.Transaction, error) {
	var txn models.Transaction
	var amountStr, balanceStr, kind string
	err := rows.Scan(&txn.Id, &txn.AccountId, &amountStr, &kind,
		&txn.ReferenceId, &txn.Reason, &balanceStr, &txn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	txn.Kind = models.TransactionKind(kind)
	if txn.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	if txn.BalanceAfter, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance_after '%s': %w", balanceStr, err)
	}
	return &txn, nil
}

// ReconcileAccount verifies that the stored balance equals the sum of
// all transaction amounts for the account.
func (s *Service) ReconcileAccount(ctx context.Context, accountId string) error {
	zap.L().Info("Reconciling account", zap.String("account_id", accountId))

	currentBalance, err := s.BalanceOf(ctx, accountId)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, querySumTransactions, accountId)
	if err != nil {
		return fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	calculated := decimal.Zero
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		calculated = calculated.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating transaction rows: %w", err)
	}

	if !currentBalance.Equal(calculated) {
		zap.L().Error("Account reconciliation failed",
			zap.String("account_id", accountId),
			zap.String("current_balance", currentBalance.String()),
			zap.String("calculated_balance", calculated.String()),
			zap.String("difference", currentBalance.Sub(calculated).String()))
		return fmt.Errorf("balance mismatch: current=%s, calculated=%s", currentBalance.String(), calculated.String())
	}

	zap.L().Info("Account reconciliation successful",
		zap.String("account_id", accountId),
		zap.String("balance", currentBalance.String()))
	return nil
}
