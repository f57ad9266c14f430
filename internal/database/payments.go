package database

import (
	"context"
	"database/sql"
	"fmt"

	"numledger-go/internal/models"
	"numledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClaimPaymentEvent atomically records the first sight of an external
// payment. The insert is the claim: a second delivery of the same
// external reference hits the primary key and returns ErrAlreadyClaimed
// without mutation.
func (s *Service) ClaimPaymentEvent(ctx context.Context, params store.ClaimPaymentParams) error {
	if params.ExternalReference == "" {
		return fmt.Errorf("external reference cannot be empty")
	}
	if params.GrossAmount.LessThanOrEqual(decimal.Zero) {
		return store.ErrInvalidAmount
	}

	_, err := s.db.ExecContext(ctx, queryInsertPaymentEvent,
		params.ExternalReference, params.AccountId,
		params.GrossAmount.String(), params.Currency, nowUTC())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyClaimed
		}
		return fmt.Errorf("failed to claim payment event: %w", err)
	}

	zap.L().Info("Payment event claimed",
		zap.String("external_reference", params.ExternalReference),
		zap.String("account_id", params.AccountId),
		zap.String("gross_amount", params.GrossAmount.String()),
		zap.String("currency", params.Currency))
	return nil
}

// GetPaymentEvent loads one payment event by its external reference.
func (s *Service) GetPaymentEvent(ctx context.Context, externalReference string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	var grossStr, convertedStr, status string
	var processedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, queryGetPaymentEvent, externalReference).
		Scan(&event.ExternalReference, &event.AccountId, &grossStr, &event.Currency,
			&convertedStr, &status, &event.CreatedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment event: %w", err)
	}

	event.Status = models.PaymentStatus(status)
	if processedAt.Valid {
		event.ProcessedAt = processedAt.Time
	}
	if event.GrossAmount, err = decimal.NewFromString(grossStr); err != nil {
		return nil, fmt.Errorf("failed to parse gross amount '%s': %w", grossStr, err)
	}
	if event.ConvertedAmount, err = decimal.NewFromString(convertedStr); err != nil {
		return nil, fmt.Errorf("failed to parse converted amount '%s': %w", convertedStr, err)
	}
	return &event, nil
}

// ApplyPaymentEvent finalizes a PENDING event to APPLIED and credits
// the account in the same SQL transaction. The status flip is a
// compare-and-swap, so the funding credit happens exactly once even
// when the webhook and a manual verification race.
func (s *Service) ApplyPaymentEvent(ctx context.Context, params store.ApplyPaymentParams) (*store.PaymentApplication, error) {
	if params.ConvertedAmount.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrInvalidAmount
	}

	var application *store.PaymentApplication
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		event, err := s.getPaymentEventTx(ctx, tx, params.ExternalReference)
		if err != nil {
			return err
		}
		switch event.Status {
		case models.PaymentApplied:
			return store.ErrAlreadyClaimed
		case models.PaymentRejected:
			return store.ErrReconciliationFailed
		}

		result, err := tx.ExecContext(ctx, queryApplyPaymentEvent,
			params.ConvertedAmount.String(), nowUTC(), params.ExternalReference)
		if err != nil {
			return fmt.Errorf("failed to apply payment event: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race to a concurrent apply.
			return store.ErrAlreadyClaimed
		}

		txn, before, err := s.applyLedgerTx(ctx, tx, event.AccountId,
			params.ConvertedAmount, models.KindFunding, params.ExternalReference, "", true)
		if err != nil {
			return err
		}

		application = &store.PaymentApplication{
			Transaction:          txn,
			AccountId:            event.AccountId,
			LifetimeFundedBefore: before.lifetimeFunded,
			LifetimeFundedAfter:  before.lifetimeFunded.Add(params.ConvertedAmount),
			ReferrerAccountId:    before.referrerId,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Payment event applied",
		zap.String("external_reference", params.ExternalReference),
		zap.String("account_id", application.AccountId),
		zap.String("credited", params.ConvertedAmount.String()))
	return application, nil
}

func (s *Service) getPaymentEventTx(ctx context.Context, tx *sql.Tx, externalReference string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	var grossStr, convertedStr, status string
	var processedAt sql.NullTime

	err := tx.QueryRowContext(ctx, queryGetPaymentEvent, externalReference).
		Scan(&event.ExternalReference, &event.AccountId, &grossStr, &event.Currency,
			&convertedStr, &status, &event.CreatedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment event: %w", err)
	}

	event.Status = models.PaymentStatus(status)
	if event.GrossAmount, err = decimal.NewFromString(grossStr); err != nil {
		return nil, fmt.Errorf("failed to parse gross amount '%s': %w", grossStr, err)
	}
	return &event, nil
}

// RejectPaymentEvent finalizes a PENDING event to REJECTED so it is
// never left permanently pending after a processing failure.
func (s *Service) RejectPaymentEvent(ctx context.Context, externalReference string) error {
	result, err := s.db.ExecContext(ctx, queryRejectPaymentEvent, nowUTC(), externalReference)
	if err != nil {
		return fmt.Errorf("failed to reject payment event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrInvalidTransition
	}

	zap.L().Warn("Payment event rejected",
		zap.String("external_reference", externalReference))
	return nil
}
