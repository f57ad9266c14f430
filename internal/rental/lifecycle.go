// Package rental drives the number-lease state machine:
// ACTIVE -> RELEASED | EXPIRED, with extensions keeping the lease
// ACTIVE on a pushed-out expiry.
package rental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"numledger-go/internal/models"
	"numledger-go/internal/pricing"
	"numledger-go/internal/provider"
	"numledger-go/internal/store"

	"go.uber.org/zap"
)

// releaseAttempts bounds retries when a release races an extension.
const releaseAttempts = 3

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

// Create prices and purchases a lease. The provider allocation happens
// before the debit so the account lock is never held across the
// network.
func (s *Service) Create(ctx context.Context, accountId, scope string, mode models.RentalMode, duration time.Duration) (*models.Rental, error) {
	cost := s.pricing.PriceRental(scope, mode, duration)

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	phoneNumber, err := s.provider.AllocateNumber(callCtx, scope, models.CapabilitySMS)
	if err != nil {
		zap.L().Warn("Number allocation failed",
			zap.String("scope", scope),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", store.ErrProviderUnavailable, err)
	}

	return s.store.CreateRental(ctx, store.CreateRentalParams{
		AccountId:   accountId,
		Scope:       scope,
		Mode:        mode,
		PhoneNumber: phoneNumber,
		Cost:        cost,
		Duration:    duration,
	})
}

// Extend charges for the additional duration at the rental's original
// scope and mode and pushes the expiry out. Only ACTIVE rentals can be
// extended.
func (s *Service) Extend(ctx context.Context, rentalId string, additional time.Duration) (*models.Rental, error) {
	rental, err := s.store.GetRental(ctx, rentalId)
	if err != nil {
		return nil, err
	}
	if rental.State != models.RentalActive {
		return nil, store.ErrInvalidTransition
	}

	cost := s.pricing.PriceExtension(rental, additional)
	return s.store.ExtendRental(ctx, rentalId, cost, additional)
}

// Release terminates a lease early, refunding half the unused share of
// everything paid. A second release observes the RELEASED state and
// gets ErrInvalidTransition, never a double refund.
func (s *Service) Release(ctx context.Context, rentalId string) (*models.Rental, error) {
	var lastErr error
	for attempt := 0; attempt < releaseAttempts; attempt++ {
		rental, err := s.store.GetRental(ctx, rentalId)
		if err != nil {
			return nil, err
		}
		if rental.State != models.RentalActive {
			return nil, store.ErrInvalidTransition
		}

		refund := s.pricing.EarlyReleaseRefund(rental, s.now())
		released, err := s.store.ReleaseRental(ctx, rentalId, refund, rental.CostPaidToDate)
		if errors.Is(err, store.ErrConcurrentModification) {
			// An extension slipped in between the read and the
			// release; recompute against the fresh row.
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return released, nil
	}
	return nil, lastErr
}

// Expire flips a due ACTIVE rental to EXPIRED. No refund: the full
// paid duration was consumed.
func (s *Service) Expire(ctx context.Context, rentalId string) error {
	rental, err := s.store.GetRental(ctx, rentalId)
	if err != nil {
		return err
	}
	if s.now().Before(rental.ExpiresAt) {
		return fmt.Errorf("rental %s is not due until %s", rentalId, rental.ExpiresAt)
	}
	return s.store.ExpireRental(ctx, rentalId)
}
