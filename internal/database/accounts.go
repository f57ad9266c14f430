package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"numledger-go/internal/models"
	"numledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateAccount registers a new account with a zero balance.
func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	accountId := params.AccountId
	if accountId == "" {
		accountId = uuid.New().String()
	}
	tier := params.DiscountTier
	if tier == "" {
		tier = models.TierNone
	}
	if params.FreeUnits < 0 {
		return nil, fmt.Errorf("free units cannot be negative, got %d", params.FreeUnits)
	}

	now := nowUTC()
	_, err := s.db.ExecContext(ctx, queryInsertAccount,
		accountId, params.Email, "0", params.FreeUnits, string(tier),
		"0", params.ReferrerAccountId, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateAccount
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	zap.L().Info("Account created",
		zap.String("account_id", accountId),
		zap.String("discount_tier", string(tier)),
		zap.Int64("free_units", params.FreeUnits))

	return s.GetAccount(ctx, accountId)
}

// GetAccount loads one account by id.
func (s *Service) GetAccount(ctx context.Context, accountId string) (*models.Account, error) {
	var account models.Account
	var balanceStr, lifetimeStr, tier string

	err := s.db.QueryRowContext(ctx, queryGetAccount, accountId).
		Scan(&account.Id, &account.Email, &balanceStr, &account.FreeVerificationUnits,
			&tier, &lifetimeStr, &account.ReferrerAccountId, &account.Version,
			&account.Active, &account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", accountId, err)
	}

	account.DiscountTier = models.DiscountTier(tier)
	if account.CreditBalance, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	if account.LifetimeFunded, err = decimal.NewFromString(lifetimeStr); err != nil {
		return nil, fmt.Errorf("failed to parse lifetime funded '%s': %w", lifetimeStr, err)
	}
	return &account, nil
}

// DeactivateAccount blocks future ledger activity. The row and its
// history are retained.
func (s *Service) DeactivateAccount(ctx context.Context, accountId string) error {
	result, err := s.db.ExecContext(ctx, queryDeactivateAccount, nowUTC(), accountId)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrAccountNotFound
	}

	zap.L().Info("Account deactivated", zap.String("account_id", accountId))
	return nil
}

// GrantFreeUnits adds promotional verification units to an account.
func (s *Service) GrantFreeUnits(ctx context.Context, accountId string, units int64) error {
	if units <= 0 {
		return store.ErrInvalidAmount
	}

	result, err := s.db.ExecContext(ctx, queryGrantFreeUnits, units, nowUTC(), accountId)
	if err != nil {
		return fmt.Errorf("failed to grant free units: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrAccountNotFound
	}

	zap.L().Info("Free units granted",
		zap.String("account_id", accountId),
		zap.Int64("units", units))
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique or primary
// key constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
