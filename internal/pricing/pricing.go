// Package pricing computes the credit cost of verifications and
// rentals. All functions are pure: they read the account and the rate
// card and never touch the ledger.
package pricing

import (
	"time"

	"numledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// RateCard holds the base rates and modifiers. Amounts are credits.
type RateCard struct {
	PopularSMSBase decimal.Decimal
	GeneralSMSBase decimal.Decimal
	VoiceSurcharge decimal.Decimal

	ServiceDailyRate decimal.Decimal
	GeneralDailyRate decimal.Decimal

	// Effective-daily-rate factors for longer leases.
	WeeklyFactor  decimal.Decimal // durations >= 7 days
	MonthlyFactor decimal.Decimal // durations >= 30 days

	ManualModeDiscount  decimal.Decimal
	EarlyReleasePenalty decimal.Decimal

	TierDiscounts map[models.DiscountTier]decimal.Decimal
}

// DefaultRateCard returns the production rate card.
func DefaultRateCard() RateCard {
	return RateCard{
		PopularSMSBase:      decimal.RequireFromString("0.50"),
		GeneralSMSBase:      decimal.RequireFromString("1.00"),
		VoiceSurcharge:      decimal.RequireFromString("0.25"),
		ServiceDailyRate:    decimal.RequireFromString("1.50"),
		GeneralDailyRate:    decimal.RequireFromString("3.00"),
		WeeklyFactor:        decimal.RequireFromString("0.85"),
		MonthlyFactor:       decimal.RequireFromString("0.70"),
		ManualModeDiscount:  decimal.RequireFromString("0.30"),
		EarlyReleasePenalty: decimal.RequireFromString("0.50"),
		TierDiscounts: map[models.DiscountTier]decimal.Decimal{
			models.TierDeveloper:  decimal.RequireFromString("0.20"),
			models.TierEnterprise: decimal.RequireFromString("0.35"),
		},
	}
}

// Quote is the priced outcome of a verification request. When
// UseFreeUnit is set, UnitCost is zero and the caller consumes one
// promotional unit atomically with the request.
type Quote struct {
	UnitCost    decimal.Decimal
	UseFreeUnit bool
}

// Engine prices actions against a rate card and service catalog.
type Engine struct {
	rates   RateCard
	catalog *Catalog
}

func NewEngine(rates RateCard, catalog *Catalog) *Engine {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	return &Engine{rates: rates, catalog: catalog}
}

// VerificationTimeout exposes the catalog's per-service window.
func (e *Engine) VerificationTimeout(serviceName string) time.Duration {
	return e.catalog.VerificationTimeout(serviceName)
}

// PriceVerification quotes one verification. Free promotional units
// take priority over credits and are never discounted further.
func (e *Engine) PriceVerification(account *models.Account, serviceName string, capability models.Capability) Quote {
	if account.FreeVerificationUnits > 0 {
		return Quote{UnitCost: decimal.Zero, UseFreeUnit: true}
	}

	base := e.rates.GeneralSMSBase
	if e.catalog.IsPopular(serviceName) {
		base = e.rates.PopularSMSBase
	}
	if capability == models.CapabilityVoice {
		base = base.Add(e.rates.VoiceSurcharge)
	}

	if discount, ok := e.rates.TierDiscounts[account.DiscountTier]; ok {
		base = base.Mul(decimal.NewFromInt(1).Sub(discount))
	}

	return Quote{UnitCost: roundCharge(base)}
}

// PriceRental prices a lease. Sub-day durations bill as one day.
func (e *Engine) PriceRental(scope string, mode models.RentalMode, duration time.Duration) decimal.Decimal {
	dailyRate := e.rates.ServiceDailyRate
	if scope == models.ScopeGeneral {
		dailyRate = e.rates.GeneralDailyRate
	}

	days := decimal.NewFromInt(int64(duration)).Div(decimal.NewFromInt(int64(24 * time.Hour)))
	if days.LessThan(decimal.NewFromInt(1)) {
		days = decimal.NewFromInt(1)
	}

	cost := dailyRate.Mul(days)
	switch {
	case duration >= 30*24*time.Hour:
		cost = cost.Mul(e.rates.MonthlyFactor)
	case duration >= 7*24*time.Hour:
		cost = cost.Mul(e.rates.WeeklyFactor)
	}

	if mode == models.ModeManual {
		cost = cost.Mul(decimal.NewFromInt(1).Sub(e.rates.ManualModeDiscount))
	}

	return roundCharge(cost)
}

// PriceExtension prices the delta duration at the rental's original
// scope and mode.
func (e *Engine) PriceExtension(rental *models.Rental, additional time.Duration) decimal.Decimal {
	return e.PriceRental(rental.Scope, rental.Mode, additional)
}

// EarlyReleaseRefund computes the prorated early-termination refund:
// half the unused share of everything paid to date. Zero once expired.
func (e *Engine) EarlyReleaseRefund(rental *models.Rental, now time.Time) decimal.Decimal {
	if !now.Before(rental.ExpiresAt) {
		return decimal.Zero
	}
	total := rental.TotalDuration()
	if total <= 0 {
		return decimal.Zero
	}

	unused := rental.ExpiresAt.Sub(now)
	// Multiply before dividing so exact ratios stay exact.
	refund := rental.CostPaidToDate.
		Mul(decimal.NewFromInt(int64(unused))).
		Mul(e.rates.EarlyReleasePenalty).
		Div(decimal.NewFromInt(int64(total)))

	// Refunds round down so refund plus consumed value never exceeds
	// the original charge.
	return refund.RoundDown(2)
}

// roundCharge rounds to the minimum credit unit, half-up.
func roundCharge(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
