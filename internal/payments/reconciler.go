// Package payments bridges external payment notifications into
// exactly-once ledger credits.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"numledger-go/internal/models"
	"numledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReferralPolicy rewards the referrer the first time a referred
// account's lifetime funding crosses the threshold. A zero Bonus
// disables the policy.
type ReferralPolicy struct {
	Threshold decimal.Decimal
	Bonus     decimal.Decimal
}

// Crossed reports whether this payment moved lifetime funding over the
// threshold for the first time.
func (p ReferralPolicy) Crossed(before, after decimal.Decimal) bool {
	return p.Bonus.IsPositive() &&
		before.LessThan(p.Threshold) &&
		after.GreaterThanOrEqual(p.Threshold)
}

// Reconciler applies external payment notifications to the ledger at
// most once per external reference.
type Reconciler struct {
	store     store.Store
	converter Converter
	secret    string
	referral  ReferralPolicy
}

func NewReconciler(s store.Store, converter Converter, secret string, referral ReferralPolicy) *Reconciler {
	return &Reconciler{
		store:     s,
		converter: converter,
		secret:    secret,
		referral:  referral,
	}
}

// HandleNotification verifies and applies one webhook delivery. Safe
// to call any number of times with the same payload: replays of an
// applied payment are a successful no-op.
func (r *Reconciler) HandleNotification(ctx context.Context, payload []byte, signature string) error {
	if !VerifySignature(payload, signature, r.secret) {
		zap.L().Warn("Rejected payment webhook with bad signature")
		return store.ErrInvalidSignature
	}

	var notification models.PaymentNotification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return fmt.Errorf("invalid payment payload: %w", err)
	}
	if notification.ExternalReference == "" {
		return fmt.Errorf("payment payload missing external_reference")
	}
	if notification.AccountId == "" {
		return fmt.Errorf("payment payload missing account_id")
	}
	gross, err := decimal.NewFromString(notification.GrossAmount)
	if err != nil {
		return fmt.Errorf("invalid gross_amount %q: %w", notification.GrossAmount, err)
	}

	err = r.store.ClaimPaymentEvent(ctx, store.ClaimPaymentParams{
		ExternalReference: notification.ExternalReference,
		AccountId:         notification.AccountId,
		GrossAmount:       gross,
		Currency:          notification.Currency,
	})
	if err != nil && !errors.Is(err, store.ErrAlreadyClaimed) {
		return fmt.Errorf("failed to claim payment: %w", err)
	}
	if errors.Is(err, store.ErrAlreadyClaimed) {
		// Retried delivery. Resume a stuck PENDING claim, no-op an
		// applied one.
		return r.resume(ctx, notification.ExternalReference)
	}

	return r.apply(ctx, notification.ExternalReference, gross, notification.Currency)
}

// ManualVerify re-drives a payment by its external reference. Used as
// a fallback when the webhook was not delivered or processing crashed
// after the claim; idempotent with the webhook path.
func (r *Reconciler) ManualVerify(ctx context.Context, externalReference string) error {
	return r.resume(ctx, externalReference)
}

func (r *Reconciler) resume(ctx context.Context, externalReference string) error {
	event, err := r.store.GetPaymentEvent(ctx, externalReference)
	if err != nil {
		return fmt.Errorf("failed to load payment event: %w", err)
	}

	switch event.Status {
	case models.PaymentApplied:
		zap.L().Info("Payment already applied, skipping",
			zap.String("external_reference", externalReference))
		return nil
	case models.PaymentRejected:
		return fmt.Errorf("%w: payment %s was rejected", store.ErrReconciliationFailed, externalReference)
	}

	return r.apply(ctx, externalReference, event.GrossAmount, event.Currency)
}

func (r *Reconciler) apply(ctx context.Context, externalReference string, gross decimal.Decimal, currency string) error {
	converted, err := r.converter.Convert(ctx, gross, currency)
	if err != nil {
		// The claim stays PENDING: conversion is transient and the
		// payment is retried via ManualVerify or the next delivery.
		return err
	}

	application, err := r.store.ApplyPaymentEvent(ctx, store.ApplyPaymentParams{
		ExternalReference: externalReference,
		ConvertedAmount:   converted,
	})
	if errors.Is(err, store.ErrAlreadyClaimed) {
		// A concurrent delivery applied it first.
		return nil
	}
	if err != nil {
		if rejectErr := r.store.RejectPaymentEvent(ctx, externalReference); rejectErr != nil &&
			!errors.Is(rejectErr, store.ErrInvalidTransition) {
			zap.L().Error("Failed to reject payment event after apply failure",
				zap.String("external_reference", externalReference),
				zap.Error(rejectErr))
		}
		return fmt.Errorf("%w: %v", store.ErrReconciliationFailed, err)
	}

	r.maybeRewardReferrer(ctx, externalReference, application)
	return nil
}

// maybeRewardReferrer credits the referrer when this payment crossed
// the lifetime-funded threshold. Bonus failures never fail the
// payment; they are logged for manual follow-up.
func (r *Reconciler) maybeRewardReferrer(ctx context.Context, externalReference string, application *store.PaymentApplication) {
	if application.ReferrerAccountId == "" {
		return
	}
	if !r.referral.Crossed(application.LifetimeFundedBefore, application.LifetimeFundedAfter) {
		return
	}

	_, err := r.store.Credit(ctx, application.ReferrerAccountId, r.referral.Bonus,
		models.KindReferralBonus, application.AccountId)
	if err != nil {
		zap.L().Error("Failed to credit referral bonus",
			zap.String("referrer_account_id", application.ReferrerAccountId),
			zap.String("referred_account_id", application.AccountId),
			zap.String("external_reference", externalReference),
			zap.Error(err))
		return
	}

	zap.L().Info("Referral bonus credited",
		zap.String("referrer_account_id", application.ReferrerAccountId),
		zap.String("referred_account_id", application.AccountId),
		zap.String("bonus", r.referral.Bonus.String()))
}
