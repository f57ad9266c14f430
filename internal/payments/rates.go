package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"numledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Converter turns a gross payment amount in an external currency into
// credit units.
type Converter interface {
	Convert(ctx context.Context, grossAmount decimal.Decimal, currency string) (decimal.Decimal, error)
}

// RateSource provides the current credits-per-unit exchange rate for a
// currency.
type RateSource interface {
	Rate(ctx context.Context, currency string) (decimal.Decimal, error)
}

// StaticRateSource serves fixed rates from configuration.
type StaticRateSource map[string]decimal.Decimal

func (s StaticRateSource) Rate(_ context.Context, currency string) (decimal.Decimal, error) {
	rate, ok := s[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate configured for %s", currency)
	}
	return rate, nil
}

type rateEntry struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// RateCache is a TTL-bound cache in front of a RateSource. Staleness
// and refresh policy live here rather than in a package-level variable
// so they are explicit and testable.
type RateCache struct {
	source RateSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]rateEntry
}

var _ Converter = (*RateCache)(nil)

func NewRateCache(source RateSource, ttl time.Duration) *RateCache {
	return &RateCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]rateEntry),
	}
}

// Convert converts a gross amount to credits using the cached rate,
// refreshing it when older than the TTL. Failures surface as
// ErrConversionUnavailable; a stale entry is never served past its TTL.
func (c *RateCache) Convert(ctx context.Context, grossAmount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, err := c.rateFor(ctx, strings.ToUpper(currency))
	if err != nil {
		zap.L().Warn("Currency conversion failed",
			zap.String("currency", currency),
			zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: %v", store.ErrConversionUnavailable, err)
	}
	return grossAmount.Mul(rate).Round(2), nil
}

func (c *RateCache) rateFor(ctx context.Context, currency string) (decimal.Decimal, error) {
	c.mu.Lock()
	entry, ok := c.entries[currency]
	c.mu.Unlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.rate, nil
	}

	rate, err := c.source.Rate(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("non-positive rate %s for %s", rate.String(), currency)
	}

	c.mu.Lock()
	c.entries[currency] = rateEntry{rate: rate, fetchedAt: c.now()}
	c.mu.Unlock()
	return rate, nil
}
