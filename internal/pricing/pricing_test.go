package pricing

import (
	"testing"
	"time"

	"numledger-go/internal/models"

	"github.com/shopspring/decimal"
)

func testEngine() *Engine {
	return NewEngine(DefaultRateCard(), NewCatalog([]ServiceConfig{
		{Name: "telegram", Popular: true},
		{Name: "whatsapp", Popular: true, Timeout: 5 * time.Minute},
		{Name: "obscureapp", Popular: false, Timeout: 10 * time.Second},
		{Name: "slowapp", Timeout: time.Hour},
	}))
}

func TestPriceVerification(t *testing.T) {
	engine := testEngine()

	cases := []struct {
		name       string
		tier       models.DiscountTier
		service    string
		capability models.Capability
		expected   string
	}{
		{"popular sms", models.TierNone, "telegram", models.CapabilitySMS, "0.50"},
		{"general sms", models.TierNone, "unlisted", models.CapabilitySMS, "1.00"},
		{"popular voice", models.TierNone, "telegram", models.CapabilityVoice, "0.75"},
		{"general voice", models.TierNone, "unlisted", models.CapabilityVoice, "1.25"},
		{"developer discount", models.TierDeveloper, "unlisted", models.CapabilitySMS, "0.80"},
		{"enterprise discount", models.TierEnterprise, "telegram", models.CapabilitySMS, "0.33"},
		{"enterprise voice", models.TierEnterprise, "unlisted", models.CapabilityVoice, "0.81"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			account := &models.Account{DiscountTier: tc.tier}
			quote := engine.PriceVerification(account, tc.service, tc.capability)
			if quote.UseFreeUnit {
				t.Fatal("Expected paid quote, got free unit")
			}
			if !quote.UnitCost.Equal(decimal.RequireFromString(tc.expected)) {
				t.Errorf("Expected cost %s, got %s", tc.expected, quote.UnitCost.String())
			}
		})
	}
}

func TestPriceVerification_FreeUnitFirst(t *testing.T) {
	engine := testEngine()

	// Free units win even for discounted tiers and are never priced.
	account := &models.Account{DiscountTier: models.TierEnterprise, FreeVerificationUnits: 2}
	quote := engine.PriceVerification(account, "telegram", models.CapabilitySMS)
	if !quote.UseFreeUnit {
		t.Fatal("Expected free-unit quote")
	}
	if !quote.UnitCost.IsZero() {
		t.Errorf("Expected zero cost, got %s", quote.UnitCost.String())
	}

	account.FreeVerificationUnits = 0
	quote = engine.PriceVerification(account, "telegram", models.CapabilitySMS)
	if quote.UseFreeUnit {
		t.Fatal("Expected paid quote once units are drained")
	}
}

func TestPriceRental(t *testing.T) {
	engine := testEngine()

	cases := []struct {
		name     string
		scope    string
		mode     models.RentalMode
		duration time.Duration
		expected string
	}{
		{"service one day", "telegram", models.ModeAlwaysReady, 24 * time.Hour, "1.50"},
		{"general one day", models.ScopeGeneral, models.ModeAlwaysReady, 24 * time.Hour, "3.00"},
		{"sub-day bills as one day", "telegram", models.ModeAlwaysReady, 6 * time.Hour, "1.50"},
		{"weekly factor", "telegram", models.ModeAlwaysReady, 7 * 24 * time.Hour, "8.93"},
		{"monthly factor", "telegram", models.ModeAlwaysReady, 30 * 24 * time.Hour, "31.50"},
		{"general monthly", models.ScopeGeneral, models.ModeAlwaysReady, 30 * 24 * time.Hour, "63.00"},
		{"manual discount", "telegram", models.ModeManual, 24 * time.Hour, "1.05"},
		{"manual weekly", "telegram", models.ModeManual, 7 * 24 * time.Hour, "6.25"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cost := engine.PriceRental(tc.scope, tc.mode, tc.duration)
			if !cost.Equal(decimal.RequireFromString(tc.expected)) {
				t.Errorf("Expected cost %s, got %s", tc.expected, cost.String())
			}
		})
	}
}

func TestPriceExtension_UsesOriginalTerms(t *testing.T) {
	engine := testEngine()

	rental := &models.Rental{Scope: "telegram", Mode: models.ModeManual}
	cost := engine.PriceExtension(rental, 24*time.Hour)
	if !cost.Equal(decimal.RequireFromString("1.05")) {
		t.Errorf("Expected extension cost 1.05, got %s", cost.String())
	}
}

func TestEarlyReleaseRefund(t *testing.T) {
	engine := testEngine()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rental := &models.Rental{
		CostPaidToDate: decimal.RequireFromString("700.00"),
		StartedAt:      start,
		ExpiresAt:      start.Add(7 * 24 * time.Hour),
	}

	// 4 of 7 days unused: 700 * 4/7 * 0.5 = 200 exactly.
	refund := engine.EarlyReleaseRefund(rental, start.Add(3*24*time.Hour))
	if !refund.Equal(decimal.RequireFromString("200.00")) {
		t.Errorf("Expected refund 200.00, got %s", refund.String())
	}

	// Non-terminating ratios round down to the credit unit.
	rental.CostPaidToDate = decimal.RequireFromString("10.00")
	refund = engine.EarlyReleaseRefund(rental, start.Add(4*24*time.Hour))
	if !refund.Equal(decimal.RequireFromString("2.14")) {
		t.Errorf("Expected refund 2.14, got %s", refund.String())
	}

	// At or past expiry there is nothing unused.
	refund = engine.EarlyReleaseRefund(rental, rental.ExpiresAt)
	if !refund.IsZero() {
		t.Errorf("Expected zero refund at expiry, got %s", refund.String())
	}
	refund = engine.EarlyReleaseRefund(rental, rental.ExpiresAt.Add(time.Hour))
	if !refund.IsZero() {
		t.Errorf("Expected zero refund past expiry, got %s", refund.String())
	}
}

func TestVerificationTimeout_Clamped(t *testing.T) {
	engine := testEngine()

	cases := []struct {
		service  string
		expected time.Duration
	}{
		{"unlisted", 120 * time.Second},
		{"telegram", 120 * time.Second},
		{"whatsapp", 5 * time.Minute},
		{"obscureapp", 45 * time.Second},
		{"slowapp", 15 * time.Minute},
	}
	for _, tc := range cases {
		if got := engine.VerificationTimeout(tc.service); got != tc.expected {
			t.Errorf("VerificationTimeout(%s): expected %v, got %v", tc.service, tc.expected, got)
		}
	}
}
