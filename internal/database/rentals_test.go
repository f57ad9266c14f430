package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"numledger-go/internal/models"
	"numledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func createTestRental(t *testing.T, service *Service, accountId, cost string, duration time.Duration) *models.Rental {
	t.Helper()
	r, err := service.CreateRental(context.Background(), store.CreateRentalParams{
		AccountId:   accountId,
		Scope:       "telegram",
		Mode:        models.ModeAlwaysReady,
		PhoneNumber: "+15551234567",
		Cost:        decimal.RequireFromString(cost),
		Duration:    duration,
	})
	if err != nil {
		t.Fatalf("CreateRental failed: %v", err)
	}
	return r
}

func TestCreateRental_DebitsCost(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, service, store.CreateAccountParams{Email: "rental@test.local"})
	fundAccount(t, service, account.Id, "100.00")

	r := createTestRental(t, service, account.Id, "8.93", 7*24*time.Hour)
	if r.State != models.RentalActive {
		t.Errorf("Expected state %s, got %s", models.RentalActive, r.State)
	}
	if !r.CostPaidToDate.Equal(decimal.RequireFromString("8.93")) {
		t.Errorf("Expected cost paid 8.93, got %s", r.CostPaidToDate.String())
	}
	if got := r.TotalDuration(); got != 7*24*time.Hour {
		t.Errorf("Expected total duration 168h, got %v", got)
	}

	balance, err := service.BalanceOf(ctx, account.Id)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("91.07")) {
		t.Errorf("Expected balance 91.07, got %s", balance.String())
	}
}

func TestCreateRental_InsufficientFunds(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, service, store.CreateAccountParams{Email: "rentalshort@test.local"})
	fundAccount(t, service, account.Id, "1.00")

	_, err := service.CreateRental(ctx, store.CreateRentalParams{
		AccountId:   account.Id,
		Scope:       "telegram",
		Mode:        models.ModeAlwaysReady,
		PhoneNumber: "+15551234567",
		Cost:        decimal.RequireFromString("8.93"),
		Duration:    7 * 24 * time.Hour,
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	due, err := service.ListDueRentals(ctx, time.Now().Add(30*24*time.Hour), 10)
	if err != nil {
		t.Fatalf("ListDueRentals failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("Expected no rental rows after failed create, got %d", len(due))
	}
}

func TestExtendRental(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, service, store.CreateAccountParams{Email: "extend@test.local"})
	fundAccount(t, service, account.Id, "100.00")

	r := createTestRental(t, service, account.Id, "8.93", 7*24*time.Hour)
	originalExpiry := r.ExpiresAt

	extended, err := service.ExtendRental(ctx, r.Id, decimal.RequireFromString("4.50"), 3*24*time.Hour)
	if err != nil {
		t.Fatalf("ExtendRental failed: %v", err)
	}
	if !extended.CostPaidToDate.Equal(decimal.RequireFromString("13.43")) {
		t.Errorf("Expected cost paid 13.43, got %s", extended.CostPaidToDate.String())
	}
	if got := extended.ExpiresAt.Sub(originalExpiry); got != 3*24*time.Hour {
		t.Errorf("Expected expiry pushed out by 72h, got %v", got)
	}
	if extended.State != models.RentalActive {
		t.Errorf("Expected state %s, got %s", models.RentalActive, extended.State)
	}

	balance, err := service.BalanceOf(ctx, account.Id)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("86.57")) {
		t.Errorf("Expected balance 86.57, got %s", balance.String())
	}
}

func TestReleaseRental_RefundAndStaleGuard(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, service, store.CreateAccountParams{Email: "release@test.local"})
	fundAccount(t, service, account.Id, "100.00")

	r := createTestRental(t, service, account.Id, "8.93", 7*24*time.Hour)

	// A release computed against a stale cost_paid_to_date must not
	// commit.
	_, err := service.ReleaseRental(ctx, r.Id, decimal.RequireFromString("4.00"), decimal.RequireFromString("7.00"))
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification for stale guard, got %v", err)
	}

	released, err := service.ReleaseRental(ctx, r.Id, decimal.RequireFromString("4.00"), r.CostPaidToDate)
	if err != nil {
		t.Fatalf("ReleaseRental failed: %v", err)
	}
	if released.State != models.RentalReleased {
		t.Errorf("Expected state %s, got %s", models.RentalReleased, released.State)
	}

	balance, err := service.BalanceOf(ctx, account.Id)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("95.07")) {
		t.Errorf("Expected balance 95.07, got %s", balance.String())
	}

	// A second release observes the terminal state.
	_, err = service.ReleaseRental(ctx, r.Id, decimal.RequireFromString("4.00"), released.CostPaidToDate)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition for second release, got %v", err)
	}
	if err := service.ReconcileAccount(ctx, account.Id); err != nil {
		t.Fatalf("ReconcileAccount failed: %v", err)
	}
}

func TestExpireRental_NoRefund(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, service, store.CreateAccountParams{Email: "expire@test.local"})
	fundAccount(t, service, account.Id, "100.00")

	r := createTestRental(t, service, account.Id, "8.93", 7*24*time.Hour)

	if err := service.ExpireRental(ctx, r.Id); err != nil {
		t.Fatalf("ExpireRental failed: %v", err)
	}

	loaded, err := service.GetRental(ctx, r.Id)
	if err != nil {
		t.Fatalf("GetRental failed: %v", err)
	}
	if loaded.State != models.RentalExpired {
		t.Errorf("Expected state %s, got %s", models.RentalExpired, loaded.State)
	}

	balance, err := service.BalanceOf(ctx, account.Id)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("91.07")) {
		t.Errorf("Expected balance 91.07, got %s", balance.String())
	}

	// Expiring a terminal rental is a transition error.
	if err := service.ExpireRental(ctx, r.Id); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
	// Extensions on terminal rentals are rejected too.
	if _, err := service.ExtendRental(ctx, r.Id, decimal.RequireFromString("1.00"), 24*time.Hour); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition on extend, got %v", err)
	}
}

func TestListDueRentals(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, service, store.CreateAccountParams{Email: "duerental@test.local"})
	fundAccount(t, service, account.Id, "100.00")

	short := createTestRental(t, service, account.Id, "1.50", time.Minute)
	createTestRental(t, service, account.Id, "8.93", 7*24*time.Hour)

	due, err := service.ListDueRentals(ctx, time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("ListDueRentals failed: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("Expected 1 due rental, got %d", len(due))
	}
	if due[0].Id != short.Id {
		t.Errorf("Expected due rental %s, got %s", short.Id, due[0].Id)
	}
}
