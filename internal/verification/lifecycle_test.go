package verification

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"numledger-go/internal/database"
	"numledger-go/internal/models"
	"numledger-go/internal/pricing"
	"numledger-go/internal/provider"
	"numledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func newTestService(t *testing.T) (*Service, *database.Service, *provider.Sandbox, func()) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	dbService := database.NewServiceFromDB(db)
	if err := dbService.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	engine := pricing.NewEngine(pricing.DefaultRateCard(), pricing.NewCatalog([]pricing.ServiceConfig{
		{Name: "telegram", Popular: true},
	}))
	sandbox := provider.NewSandbox()
	service := NewService(dbService, engine, sandbox, 5*time.Second)

	return service, dbService, sandbox, func() { db.Close() }
}

func fundedAccount(t *testing.T, dbService *database.Service, params store.CreateAccountParams, amount string) *models.Account {
	t.Helper()
	ctx := context.Background()
	account, err := dbService.CreateAccount(ctx, params)
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if amount != "" {
		if _, err := dbService.Credit(ctx, account.Id, decimal.RequireFromString(amount), models.KindFunding, "test-funding"); err != nil {
			t.Fatalf("Funding credit failed: %v", err)
		}
	}
	return account
}

func TestCreate_PaidVerification(t *testing.T) {
	service, dbService, _, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	account := fundedAccount(t, dbService, store.CreateAccountParams{Email: "create@test.local"}, "10.00")

	v, err := service.Create(ctx, account.Id, "telegram", models.CapabilitySMS)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if v.State != models.VerificationPending {
		t.Errorf("Expected state %s, got %s", models.VerificationPending, v.State)
	}
	if v.PhoneNumber == "" {
		t.Error("Expected an allocated phone number")
	}
	if !v.Cost.Equal(decimal.RequireFromString("0.50")) {
		t.Errorf("Expected popular rate 0.50, got %s", v.Cost.String())
	}
	if got := v.ExpiresAt.Sub(v.CreatedAt); got < 100*time.Second || got > 140*time.Second {
		t.Errorf("Expected roughly the default verification window, got %v", got)
	}

	balance, err := dbService.BalanceOf(ctx, account.Id)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("9.50")) {
		t.Errorf("Expected balance 9.50, got %s", balance.String())
	}
}

func TestCreate_FreeUnitBeforeCredits(t *testing.T) {
	service, dbService, _, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	account := fundedAccount(t, dbService, store.CreateAccountParams{Email: "freeunit@test.local", FreeUnits: 1}, "10.00")

	v, err := service.Create(ctx, account.Id, "telegram", models.CapabilitySMS)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !v.UsedFreeUnit {
		t.Error("Expected the free unit to fund the verification")
	}

	balance, err := dbService.BalanceOf(ctx, account.Id)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("Expected untouched balance 10.00, got %s", balance.String())
	}

	// The next verification is paid.
	v, err = service.Create(ctx, account.Id, "telegram", models.CapabilitySMS)
	if err != nil {
		t.Fatalf("Second create failed: %v", err)
	}
	if v.UsedFreeUnit {
		t.Error("Expected paid verification once units are drained")
	}
}

func TestCreate_ProviderDown(t *testing.T) {
	service, dbService, sandbox, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	account := fundedAccount(t, dbService, store.CreateAccountParams{Email: "down@test.local"}, "10.00")

	sandbox.SetDown(true)
	_, err := service.Create(ctx, account.Id, "telegram", models.CapabilitySMS)
	if !errors.Is(err, store.ErrProviderUnavailable) {
		t.Fatalf("Expected ErrProviderUnavailable, got %v", err)
	}

	// No charge without an allocated number.
	balance, err := dbService.BalanceOf(ctx, account.Id)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("Expected untouched balance 10.00, got %s", balance.String())
	}
}

func TestPoll_CompletesWithFirstCode(t *testing.T) {
	service, dbService, sandbox, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	account := fundedAccount(t, dbService, store.CreateAccountParams{Email: "poll@test.local"}, "10.00")

	v, err := service.Create(ctx, account.Id, "telegram", models.CapabilitySMS)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sandbox.DeliverCode(v.Id, "424242")
	code, err := service.Poll(ctx, v.Id)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if code != "424242" {
		t.Errorf("Expected code 424242, got %q", code)
	}

	loaded, err := dbService.GetVerification(ctx, v.Id)
	if err != nil {
		t.Fatalf("GetVerification failed: %v", err)
	}
	if loaded.State != models.VerificationCompleted {
		t.Errorf("Expected state %s, got %s", models.VerificationCompleted, loaded.State)
	}
}

func TestCancel_RefundsPaidCost(t *testing.T) {
	service, dbService, _, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	account := fundedAccount(t, dbService, store.CreateAccountParams{Email: "cancel@test.local"}, "10.00")

	v, err := service.Create(ctx, account.Id, "telegram", models.CapabilitySMS)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	refund, err := service.Cancel(ctx, v.Id)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !refund.Equal(decimal.RequireFromString("0.50")) {
		t.Errorf("Expected refund 0.50, got %s", refund.String())
	}

	balance, err := dbService.BalanceOf(ctx, account.Id)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("Expected balance restored to 10.00, got %s", balance.String())
	}

	// The loser of a second transition refunds nothing.
	if _, err := service.Cancel(ctx, v.Id); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition for second cancel, got %v", err)
	}
}

func TestExpire_OnlyWhenDue(t *testing.T) {
	service, dbService, _, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	account := fundedAccount(t, dbService, store.CreateAccountParams{Email: "expire@test.local"}, "10.00")

	v, err := service.Create(ctx, account.Id, "telegram", models.CapabilitySMS)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Not due yet.
	if _, err := service.Expire(ctx, v.Id); err == nil {
		t.Fatal("Expected error expiring an undue verification")
	}

	service.now = func() time.Time { return time.Now().Add(3 * time.Minute) }
	refund, err := service.Expire(ctx, v.Id)
	if err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if !refund.Equal(decimal.RequireFromString("0.50")) {
		t.Errorf("Expected refund 0.50, got %s", refund.String())
	}

	loaded, err := dbService.GetVerification(ctx, v.Id)
	if err != nil {
		t.Fatalf("GetVerification failed: %v", err)
	}
	if loaded.State != models.VerificationExpired {
		t.Errorf("Expected state %s, got %s", models.VerificationExpired, loaded.State)
	}
}

func TestRetry_CreatesFreshAttempt(t *testing.T) {
	service, dbService, _, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	account := fundedAccount(t, dbService, store.CreateAccountParams{Email: "retry@test.local"}, "10.00")

	v, err := service.Create(ctx, account.Id, "telegram", models.CapabilitySMS)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Retrying a live verification is not allowed.
	if _, err := service.Retry(ctx, v.Id); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition for pending retry, got %v", err)
	}

	if _, err := service.Cancel(ctx, v.Id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	fresh, err := service.Retry(ctx, v.Id)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if fresh.Id == v.Id {
		t.Error("Expected a new verification id")
	}
	if fresh.ServiceName != v.ServiceName || fresh.Capability != v.Capability {
		t.Error("Expected retry to keep the service and capability")
	}

	// Cancel refunded 0.50, retry charged 0.50 again.
	balance, err := dbService.BalanceOf(ctx, account.Id)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("9.50")) {
		t.Errorf("Expected balance 9.50, got %s", balance.String())
	}
	if err := dbService.ReconcileAccount(ctx, account.Id); err != nil {
		t.Fatalf("ReconcileAccount failed: %v", err)
	}
}
