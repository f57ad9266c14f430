// Package verification drives the verification state machine:
// PENDING -> COMPLETED | EXPIRED | CANCELLED. All funding and refunds
// go through the store so balance changes and state transitions commit
// atomically.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"numledger-go/internal/models"
	"numledger-go/internal/pricing"
	"numledger-go/internal/provider"
	"numledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// createAttempts bounds retries when pricing races a concurrent
// free-unit consumption.
const createAttempts = 3

// pollAttempts and pollBaseDelay bound the provider polling backoff.
const (
	pollAttempts  = 3
	pollBaseDelay = time.Second
)

type Service struct {
	store           store.Store
	pricing         *pricing.Engine
	provider        provider.Client
	providerTimeout time.Duration
	now             func() time.Time
}

func NewService(s store.Store, engine *pricing.Engine, client provider.Client, providerTimeout time.Duration) *Service {
	if providerTimeout <= 0 {
		providerTimeout = 10 * time.Second
	}
	return &Service{
		store:           s,
		pricing:         engine,
		provider:        client,
		providerTimeout: providerTimeout,
		now:             time.Now,
	}
}

// Create prices the request, allocates a number, then atomically funds
// and inserts the PENDING verification. The provider call happens
// before any account state is touched, so the account lock is never
// held across the network.
func (s *Service) Create(ctx context.Context, accountId, serviceName string, capability models.Capability) (*models.Verification, error) {
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		account, err := s.store.GetAccount(ctx, accountId)
		if err != nil {
			return nil, err
		}

		quote := s.pricing.PriceVerification(account, serviceName, capability)

		phoneNumber, err := s.allocateNumber(ctx, serviceName, capability)
		if err != nil {
			return nil, err
		}

		v, err := s.store.CreateVerification(ctx, store.CreateVerificationParams{
			AccountId:   accountId,
			ServiceName: serviceName,
			Capability:  capability,
			Cost:        quote.UnitCost,
			UseFreeUnit: quote.UseFreeUnit,
			PhoneNumber: phoneNumber,
			ExpiresAt:   s.now().Add(s.pricing.VerificationTimeout(serviceName)),
		})
		if errors.Is(err, store.ErrConcurrentModification) {
			// The quoted free unit disappeared under us; re-price.
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, lastErr
}

func (s *Service) allocateNumber(ctx context.Context, serviceName string, capability models.Capability) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	phoneNumber, err := s.provider.AllocateNumber(callCtx, serviceName, capability)
	if err != nil {
		zap.L().Warn("Number allocation failed",
			zap.String("service", serviceName),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", store.ErrProviderUnavailable, err)
	}
	return phoneNumber, nil
}

// Complete flips PENDING to COMPLETED with the received code. No
// refund.
func (s *Service) Complete(ctx context.Context, verificationId, receivedCode string) error {
	return s.store.CompleteVerification(ctx, verificationId, receivedCode)
}

// Cancel flips PENDING to CANCELLED and refunds the credit cost.
// Free-unit consumption is not restored: the promotional unit is spent
// on use, only paid credits come back.
func (s *Service) Cancel(ctx context.Context, verificationId string) (decimal.Decimal, error) {
	return s.store.FinishVerification(ctx, verificationId, models.VerificationCancelled)
}

// Expire flips a due PENDING verification to EXPIRED with the same
// refund behavior as Cancel. Racing a concurrent Complete or Cancel is
// safe: the loser of the transition observes ErrInvalidTransition and
// refunds nothing.
func (s *Service) Expire(ctx context.Context, verificationId string) (decimal.Decimal, error) {
	v, err := s.store.GetVerification(ctx, verificationId)
	if err != nil {
		return decimal.Zero, err
	}
	if s.now().Before(v.ExpiresAt) {
		return decimal.Zero, fmt.Errorf("verification %s is not due until %s", verificationId, v.ExpiresAt)
	}
	return s.store.FinishVerification(ctx, verificationId, models.VerificationExpired)
}

// Retry refunds an EXPIRED or CANCELLED verification if its cost was
// never returned, then creates a fresh request for the same service
// and capability.
func (s *Service) Retry(ctx context.Context, verificationId string) (*models.Verification, error) {
	v, err := s.store.GetVerification(ctx, verificationId)
	if err != nil {
		return nil, err
	}
	if v.State != models.VerificationExpired && v.State != models.VerificationCancelled {
		return nil, store.ErrInvalidTransition
	}

	refund, err := s.store.RefundVerification(ctx, verificationId)
	if err != nil {
		return nil, err
	}
	if refund.IsPositive() {
		zap.L().Info("Refunded verification before retry",
			zap.String("verification_id", verificationId),
			zap.String("refund", refund.String()))
	}

	return s.Create(ctx, v.AccountId, v.ServiceName, v.Capability)
}

// Poll asks the provider for received codes with bounded backoff and
// completes the verification with the first one. Returns
// ErrProviderUnavailable after exhausting attempts; the verification
// stays PENDING until its own expiry.
func (s *Service) Poll(ctx context.Context, verificationId string) (string, error) {
	var lastErr error
	delay := pollBaseDelay

	for attempt := 0; attempt < pollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
		codes, err := s.provider.PollMessages(callCtx, verificationId)
		cancel()
		if err != nil {
			lastErr = err
			zap.L().Debug("Provider poll failed",
				zap.String("verification_id", verificationId),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		if len(codes) == 0 {
			lastErr = nil
			continue
		}

		code := codes[0]
		if err := s.store.CompleteVerification(ctx, verificationId, code); err != nil {
			return "", err
		}
		return code, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", store.ErrProviderUnavailable, lastErr)
	}
	return "", nil
}
