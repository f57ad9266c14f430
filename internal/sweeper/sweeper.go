// Package sweeper polls for due verifications and rentals and drives
// their expiry transitions. Cancellation is cooperative: a user cancel
// or release simply wins the compare-and-swap against a not-yet-run
// sweep, and the sweep's loss is logged and skipped.
package sweeper

import (
	"context"
	"errors"
	"time"

	"numledger-go/internal/models"
	"numledger-go/internal/rental"
	"numledger-go/internal/store"
	"numledger-go/internal/verification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "numledger_sweeps_total",
		Help: "Expiry sweep runs by resource.",
	}, []string{"resource"})

	expiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "numledger_expired_total",
		Help: "Rows transitioned to EXPIRED by the sweeper.",
	}, []string{"resource"})

	refundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "numledger_expiry_refunds_total",
		Help: "Refund credits issued by expiry sweeps.",
	})
)

type Sweeper struct {
	store         store.Store
	verifications *verification.Service
	rentals       *rental.Service
	cfg           models.SweeperConfig

	stopChan chan struct{}
	doneChan chan struct{}
}

func New(s store.Store, verifications *verification.Service, rentals *rental.Service, cfg models.SweeperConfig) *Sweeper {
	if cfg.VerificationInterval <= 0 {
		cfg.VerificationInterval = 15 * time.Second
	}
	if cfg.RentalInterval <= 0 {
		cfg.RentalInterval = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		store:         s,
		verifications: verifications,
		rentals:       rentals,
		cfg:           cfg,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start launches both sweep loops. Verification timeouts are measured
// in seconds, so that loop runs on a sub-minute cadence; rental
// expirations are measured in days and sweep hourly.
func (s *Sweeper) Start(ctx context.Context) {
	zap.L().Info("Starting expiry sweeper",
		zap.Duration("verification_interval", s.cfg.VerificationInterval),
		zap.Duration("rental_interval", s.cfg.RentalInterval))

	go s.loop(ctx, s.cfg.VerificationInterval, s.sweepVerifications)
	go s.loop(ctx, s.cfg.RentalInterval, s.sweepRentals)
}

// Stop gracefully stops the sweep loops.
func (s *Sweeper) Stop() {
	zap.L().Info("Stopping expiry sweeper")
	close(s.stopChan)
	<-s.doneChan
	<-s.doneChan
	zap.L().Info("Expiry sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, sweep func(ctx context.Context)) {
	defer func() { s.doneChan <- struct{}{} }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep(ctx)

	for {
		select {
		case <-ticker.C:
			sweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweepVerifications(ctx context.Context) {
	sweepsTotal.WithLabelValues("verification").Inc()

	due, err := s.store.ListDueVerifications(ctx, time.Now(), s.cfg.BatchSize)
	if err != nil {
		zap.L().Error("Failed to list due verifications", zap.Error(err))
		return
	}

	for _, v := range due {
		refund, err := s.verifications.Expire(ctx, v.Id)
		if errors.Is(err, store.ErrInvalidTransition) {
			// A complete or cancel won the race.
			zap.L().Debug("Verification no longer pending, skipping expiry",
				zap.String("verification_id", v.Id))
			continue
		}
		if err != nil {
			zap.L().Error("Failed to expire verification",
				zap.String("verification_id", v.Id),
				zap.Error(err))
			continue
		}

		expiredTotal.WithLabelValues("verification").Inc()
		if refund.IsPositive() {
			refundsTotal.Inc()
		}
	}
}

func (s *Sweeper) sweepRentals(ctx context.Context) {
	sweepsTotal.WithLabelValues("rental").Inc()

	due, err := s.store.ListDueRentals(ctx, time.Now(), s.cfg.BatchSize)
	if err != nil {
		zap.L().Error("Failed to list due rentals", zap.Error(err))
		return
	}

	for _, r := range due {
		err := s.rentals.Expire(ctx, r.Id)
		if errors.Is(err, store.ErrInvalidTransition) {
			zap.L().Debug("Rental no longer active, skipping expiry",
				zap.String("rental_id", r.Id))
			continue
		}
		if err != nil {
			zap.L().Error("Failed to expire rental",
				zap.String("rental_id", r.Id),
				zap.Error(err))
			continue
		}
		expiredTotal.WithLabelValues("rental").Inc()
	}
}
