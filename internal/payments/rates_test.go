package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"numledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// countingRateSource counts upstream fetches so tests can observe cache
// hits and expirations.
type countingRateSource struct {
	rates map[string]decimal.Decimal
	calls int
	fail  bool
}

func (s *countingRateSource) Rate(_ context.Context, currency string) (decimal.Decimal, error) {
	s.calls++
	if s.fail {
		return decimal.Zero, fmt.Errorf("rate source down")
	}
	rate, ok := s.rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s", currency)
	}
	return rate, nil
}

func TestStaticRateSource(t *testing.T) {
	source := StaticRateSource{"USD": decimal.RequireFromString("10")}

	rate, err := source.Rate(context.Background(), "usd")
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("10")) {
		t.Errorf("Expected rate 10, got %s", rate.String())
	}

	if _, err := source.Rate(context.Background(), "EUR"); err == nil {
		t.Error("Expected error for unconfigured currency")
	}
}

func TestRateCache_Convert(t *testing.T) {
	source := &countingRateSource{rates: map[string]decimal.Decimal{
		"USD": decimal.RequireFromString("10"),
	}}
	cache := NewRateCache(source, 5*time.Minute)

	converted, err := cache.Convert(context.Background(), decimal.RequireFromString("100.00"), "USD")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !converted.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("Expected 1000.00 credits, got %s", converted.String())
	}

	// Second conversion inside the TTL is served from the cache.
	if _, err := cache.Convert(context.Background(), decimal.RequireFromString("50.00"), "usd"); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if source.calls != 1 {
		t.Errorf("Expected 1 upstream fetch, got %d", source.calls)
	}
}

func TestRateCache_TTLExpiry(t *testing.T) {
	source := &countingRateSource{rates: map[string]decimal.Decimal{
		"USD": decimal.RequireFromString("10"),
	}}
	cache := NewRateCache(source, 5*time.Minute)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	if _, err := cache.Convert(context.Background(), decimal.RequireFromString("1.00"), "USD"); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("Expected 1 upstream fetch, got %d", source.calls)
	}

	// Past the TTL the entry is refetched, never served stale.
	current = current.Add(6 * time.Minute)
	if _, err := cache.Convert(context.Background(), decimal.RequireFromString("1.00"), "USD"); err != nil {
		t.Fatalf("Convert after TTL failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("Expected 2 upstream fetches, got %d", source.calls)
	}

	// An expired entry with a failing source is an error, not a stale
	// answer.
	current = current.Add(6 * time.Minute)
	source.fail = true
	_, err := cache.Convert(context.Background(), decimal.RequireFromString("1.00"), "USD")
	if !errors.Is(err, store.ErrConversionUnavailable) {
		t.Fatalf("Expected ErrConversionUnavailable, got %v", err)
	}
}

func TestRateCache_RejectsNonPositiveRate(t *testing.T) {
	source := &countingRateSource{rates: map[string]decimal.Decimal{
		"BAD": decimal.Zero,
	}}
	cache := NewRateCache(source, time.Minute)

	_, err := cache.Convert(context.Background(), decimal.RequireFromString("1.00"), "BAD")
	if !errors.Is(err, store.ErrConversionUnavailable) {
		t.Fatalf("Expected ErrConversionUnavailable for zero rate, got %v", err)
	}
}
