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

func scanRental(row rowScanner) (*models.Rental, error) {
	var r models.Rental
	var costStr, mode, state string

	err := row.Scan(&r.Id, &r.AccountId, &r.Scope, &mode, &r.PhoneNumber, &costStr,
		&r.StartedAt, &r.ExpiresAt, &state, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.Mode = models.RentalMode(mode)
	r.State = models.RentalState(state)
	if r.CostPaidToDate, err = decimal.NewFromString(costStr); err != nil {
		return nil, fmt.Errorf("failed to parse cost paid '%s': %w", costStr, err)
	}
	return &r, nil
}

// CreateRental debits the lease cost and inserts the ACTIVE row in one
// SQL transaction.
func (s *Service) CreateRental(ctx context.Context, params store.CreateRentalParams) (*models.Rental, error) {
	if params.Cost.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrInvalidAmount
	}
	if params.Duration <= 0 {
		return nil, fmt.Errorf("rental duration must be positive, got %v", params.Duration)
	}

	rentalId := uuid.New().String()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, _, err := s.applyLedgerTx(ctx, tx, params.AccountId, params.Cost.Neg(),
			models.KindRentalCharge, rentalId, "", false); err != nil {
			return err
		}

		now := nowUTC()
		_, err := tx.ExecContext(ctx, queryInsertRental,
			rentalId, params.AccountId, params.Scope, string(params.Mode), params.PhoneNumber,
			params.Cost.String(), now, now.Add(params.Duration), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert rental: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Rental created",
		zap.String("rental_id", rentalId),
		zap.String("account_id", params.AccountId),
		zap.String("scope", params.Scope),
		zap.String("mode", string(params.Mode)),
		zap.String("cost", params.Cost.String()),
		zap.Duration("duration", params.Duration))

	return s.GetRental(ctx, rentalId)
}

// GetRental loads one rental by id.
func (s *Service) GetRental(ctx context.Context, rentalId string) (*models.Rental, error) {
	r, err := scanRental(s.db.QueryRowContext(ctx, queryGetRental, rentalId))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rental: %w", err)
	}
	return r, nil
}

// ExtendRental debits the extension cost, pushes the expiry out and
// accumulates cost_paid_to_date, all in one SQL transaction. Only
// ACTIVE rentals can be extended.
func (s *Service) ExtendRental(ctx context.Context, rentalId string, cost decimal.Decimal, extension time.Duration) (*models.Rental, error) {
	if cost.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrInvalidAmount
	}
	if extension <= 0 {
		return nil, fmt.Errorf("extension duration must be positive, got %v", extension)
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := scanRental(tx.QueryRowContext(ctx, queryGetRental, rentalId))
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get rental: %w", err)
		}
		if r.State != models.RentalActive {
			return store.ErrInvalidTransition
		}

		if _, _, err := s.applyLedgerTx(ctx, tx, r.AccountId, cost.Neg(),
			models.KindRentalExtension, rentalId, "", false); err != nil {
			return err
		}

		// cost_paid_to_date doubles as the rental's version guard.
		result, err := tx.ExecContext(ctx, queryExtendRental,
			r.ExpiresAt.Add(extension), r.CostPaidToDate.Add(cost).String(), nowUTC(),
			rentalId, r.CostPaidToDate.String())
		if err != nil {
			return fmt.Errorf("failed to extend rental: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return store.ErrConcurrentModification
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Rental extended",
		zap.String("rental_id", rentalId),
		zap.String("cost", cost.String()),
		zap.Duration("extension", extension))

	return s.GetRental(ctx, rentalId)
}

// ReleaseRental flips ACTIVE to RELEASED and credits the prorated
// refund in the same SQL transaction. The compare-and-swap also guards
// cost_paid_to_date so a refund computed against a stale row never
// commits; callers re-read and retry on ErrConcurrentModification.
func (s *Service) ReleaseRental(ctx context.Context, rentalId string, refund, expectedCostPaid decimal.Decimal) (*models.Rental, error) {
	if refund.IsNegative() {
		return nil, store.ErrInvalidAmount
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := scanRental(tx.QueryRowContext(ctx, queryGetRental, rentalId))
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get rental: %w", err)
		}
		if r.State != models.RentalActive {
			return store.ErrInvalidTransition
		}

		result, err := tx.ExecContext(ctx, queryReleaseRental,
			nowUTC(), rentalId, expectedCostPaid.String())
		if err != nil {
			return fmt.Errorf("failed to release rental: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return store.ErrConcurrentModification
		}

		if refund.IsPositive() {
			if _, _, err := s.applyLedgerTx(ctx, tx, r.AccountId, refund,
				models.KindRentalRefund, rentalId, "", false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Rental released",
		zap.String("rental_id", rentalId),
		zap.String("refund", refund.String()))

	return s.GetRental(ctx, rentalId)
}

// ExpireRental flips ACTIVE to EXPIRED. No refund: the full value was
// consumed.
func (s *Service) ExpireRental(ctx context.Context, rentalId string) error {
	result, err := s.db.ExecContext(ctx, queryExpireRental, nowUTC(), rentalId)
	if err != nil {
		return fmt.Errorf("failed to expire rental: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetRental(ctx, rentalId); err != nil {
			return err
		}
		return store.ErrInvalidTransition
	}

	zap.L().Info("Rental expired", zap.String("rental_id", rentalId))
	return nil
}

// ListDueRentals returns ACTIVE rentals past their expiry.
func (s *Service) ListDueRentals(ctx context.Context, now time.Time, limit int) ([]models.Rental, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, queryListDueRentals, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due rentals: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var due []models.Rental
	for rows.Next() {
		r, err := scanRental(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rental: %w", err)
		}
		due = append(due, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rental rows: %w", err)
	}
	return due, nil
}
