package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"numledger-go/internal/models"
	"numledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerification(row rowScanner) (*models.Verification, error) {
	var v models.Verification
	var costStr, capability, state string

	err := row.Scan(&v.Id, &v.AccountId, &v.ServiceName, &capability, &costStr,
		&v.UsedFreeUnit, &v.PhoneNumber, &v.ReceivedCode, &state, &v.Refunded,
		&v.CreatedAt, &v.ExpiresAt)
	if err != nil {
		return nil, err
	}

	v.Capability = models.Capability(capability)
	v.State = models.VerificationState(state)
	if v.Cost, err = decimal.NewFromString(costStr); err != nil {
		return nil, fmt.Errorf("failed to parse cost '%s': %w", costStr, err)
	}
	return &v, nil
}

// CreateVerification funds and inserts a PENDING verification in one
// SQL transaction: either the free-unit counter is decremented through
// a compare-and-swap on the account version, or the cost is debited.
// No partial charge survives a failure.
func (s *Service) CreateVerification(ctx context.Context, params store.CreateVerificationParams) (*models.Verification, error) {
	verificationId := uuid.New().String()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if params.UseFreeUnit {
			row, err := s.getAccountRowTx(ctx, tx, params.AccountId)
			if err != nil {
				return err
			}
			if !row.active {
				return store.ErrAccountInactive
			}
			if row.freeUnits <= 0 {
				// The unit was consumed since pricing; the caller
				// re-prices and retries.
				return store.ErrConcurrentModification
			}

			result, err := tx.ExecContext(ctx, queryConsumeFreeUnit, nowUTC(), params.AccountId, row.version)
			if err != nil {
				return fmt.Errorf("failed to consume free unit: %w", err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to check rows affected: %w", err)
			}
			if affected == 0 {
				return store.ErrConcurrentModification
			}
		} else {
			if params.Cost.LessThanOrEqual(decimal.Zero) {
				return store.ErrInvalidAmount
			}
			_, _, err := s.applyLedgerTx(ctx, tx, params.AccountId, params.Cost.Neg(),
				models.KindVerificationCharge, verificationId, "", false)
			if err != nil {
				return err
			}
		}

		cost := params.Cost
		if params.UseFreeUnit {
			cost = decimal.Zero
		}
		_, err := tx.ExecContext(ctx, queryInsertVerification,
			verificationId, params.AccountId, params.ServiceName, string(params.Capability),
			cost.String(), params.UseFreeUnit, params.PhoneNumber, nowUTC(), params.ExpiresAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert verification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Verification created",
		zap.String("verification_id", verificationId),
		zap.String("account_id", params.AccountId),
		zap.String("service", params.ServiceName),
		zap.String("capability", string(params.Capability)),
		zap.Bool("used_free_unit", params.UseFreeUnit),
		zap.String("cost", params.Cost.String()))

	return s.GetVerification(ctx, verificationId)
}

// GetVerification loads one verification by id.
func (s *Service) GetVerification(ctx context.Context, verificationId string) (*models.Verification, error) {
	v, err := scanVerification(s.db.QueryRowContext(ctx, queryGetVerification, verificationId))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification: %w", err)
	}
	return v, nil
}

// CompleteVerification flips PENDING to COMPLETED. No refund.
func (s *Service) CompleteVerification(ctx context.Context, verificationId, receivedCode string) error {
	result, err := s.db.ExecContext(ctx, queryCompleteVerification, receivedCode, verificationId)
	if err != nil {
		return fmt.Errorf("failed to complete verification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetVerification(ctx, verificationId); err != nil {
			return err
		}
		return store.ErrInvalidTransition
	}

	zap.L().Info("Verification completed", zap.String("verification_id", verificationId))
	return nil
}

// FinishVerification flips PENDING to CANCELLED or EXPIRED and refunds
// the credit cost in the same SQL transaction. Whichever caller wins
// the compare-and-swap performs the refund; the loser observes
// ErrInvalidTransition and performs none. Free-unit consumption is not
// restored.
func (s *Service) FinishVerification(ctx context.Context, verificationId string, to models.VerificationState) (decimal.Decimal, error) {
	if to != models.VerificationCancelled && to != models.VerificationExpired {
		return decimal.Zero, fmt.Errorf("cannot finish verification to state %s", to)
	}

	refund := decimal.Zero
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		refund = decimal.Zero

		v, err := scanVerification(tx.QueryRowContext(ctx, queryGetVerification, verificationId))
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get verification: %w", err)
		}
		if v.State != models.VerificationPending {
			return store.ErrInvalidTransition
		}

		result, err := tx.ExecContext(ctx, queryFinishVerification, string(to), verificationId)
		if err != nil {
			return fmt.Errorf("failed to transition verification: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return store.ErrInvalidTransition
		}

		if v.Refunded || v.Cost.LessThanOrEqual(decimal.Zero) {
			return nil
		}

		if _, err := tx.ExecContext(ctx, queryMarkVerificationRefunded, verificationId); err != nil {
			return fmt.Errorf("failed to mark verification refunded: %w", err)
		}
		if _, _, err := s.applyLedgerTx(ctx, tx, v.AccountId, v.Cost,
			models.KindVerificationRefund, verificationId, "", false); err != nil {
			return err
		}
		refund = v.Cost
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	zap.L().Info("Verification finished",
		zap.String("verification_id", verificationId),
		zap.String("state", string(to)),
		zap.String("refund", refund.String()))
	return refund, nil
}

// RefundVerification refunds a terminal verification whose credit cost
// was never returned. Used by the retry path; a no-op when there is
// nothing to refund.
func (s *Service) RefundVerification(ctx context.Context, verificationId string) (decimal.Decimal, error) {
	refund := decimal.Zero
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		refund = decimal.Zero

		v, err := scanVerification(tx.QueryRowContext(ctx, queryGetVerification, verificationId))
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get verification: %w", err)
		}
		if v.State != models.VerificationExpired && v.State != models.VerificationCancelled {
			return store.ErrInvalidTransition
		}
		if v.Refunded || v.Cost.LessThanOrEqual(decimal.Zero) {
			return nil
		}

		result, err := tx.ExecContext(ctx, queryMarkTerminalVerificationRefunded, verificationId)
		if err != nil {
			return fmt.Errorf("failed to mark verification refunded: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}

		if _, _, err := s.applyLedgerTx(ctx, tx, v.AccountId, v.Cost,
			models.KindVerificationRefund, verificationId, "", false); err != nil {
			return err
		}
		refund = v.Cost
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return refund, nil
}

// ListDueVerifications returns PENDING verifications past their expiry.
func (s *Service) ListDueVerifications(ctx context.Context, now time.Time, limit int) ([]models.Verification, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, queryListDueVerifications, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due verifications: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var due []models.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		due = append(due, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verification rows: %w", err)
	}
	return due, nil
}
