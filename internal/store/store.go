package store

import (
	"context"
	"errors"
	"time"

	"numledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across the backend and the components that
// sit on top of it. Callers match with errors.Is.
var (
	// ErrInsufficientFunds rejects a debit that would take the balance
	// negative. No state is changed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidTransition reports a lifecycle call against a row that
	// is no longer in the required state, including the loser of a
	// cancel-vs-expire race. No state is changed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidAmount rejects a non-positive credit or debit amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAlreadyClaimed reports that a payment event with the same
	// external reference already exists. For retried webhook delivery
	// this is a successful no-op, not a failure.
	ErrAlreadyClaimed = errors.New("payment event already claimed")

	// ErrInvalidSignature rejects a webhook whose HMAC does not match.
	ErrInvalidSignature = errors.New("invalid payment signature")

	// ErrReconciliationFailed reports a payment that was claimed but
	// could not be applied; safe to retry via manual verification.
	ErrReconciliationFailed = errors.New("payment reconciliation failed")

	// ErrConversionUnavailable reports a failed currency conversion;
	// the payment event stays PENDING for retry.
	ErrConversionUnavailable = errors.New("currency conversion unavailable")

	// ErrProviderUnavailable reports a transient SMS/voice provider
	// failure. The verification stays PENDING until its own expiry.
	ErrProviderUnavailable = errors.New("number provider unavailable")

	// ErrConcurrentModification surfaces an exhausted optimistic-lock
	// retry on an account row.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountInactive  = errors.New("account is deactivated")
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateAccount = errors.New("account already exists")
)

// CreateAccountParams contains the parameters for registering an account.
type CreateAccountParams struct {
	AccountId         string // optional; generated when empty
	Email             string
	DiscountTier      models.DiscountTier
	FreeUnits         int64
	ReferrerAccountId string
}

// HistoryFilter narrows a transaction history query. Zero values mean
// no filtering on that dimension.
type HistoryFilter struct {
	Kinds  []models.TransactionKind
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// ClaimPaymentParams records the first sight of an external payment.
type ClaimPaymentParams struct {
	ExternalReference string
	AccountId         string
	GrossAmount       decimal.Decimal
	Currency          string
}

// ApplyPaymentParams finalizes a claimed payment with its converted
// credit amount.
type ApplyPaymentParams struct {
	ExternalReference string
	ConvertedAmount   decimal.Decimal
}

// PaymentApplication reports the outcome of applying a payment,
// including the lifetime-funded movement the referral policy needs.
type PaymentApplication struct {
	Transaction          *models.Transaction
	AccountId            string
	LifetimeFundedBefore decimal.Decimal
	LifetimeFundedAfter  decimal.Decimal
	ReferrerAccountId    string
}

// CreateVerificationParams inserts a priced verification. Exactly one
// of UseFreeUnit or a positive Cost funds the request.
type CreateVerificationParams struct {
	AccountId   string
	ServiceName string
	Capability  models.Capability
	Cost        decimal.Decimal
	UseFreeUnit bool
	PhoneNumber string
	ExpiresAt   time.Time
}

// CreateRentalParams inserts a paid number lease.
type CreateRentalParams struct {
	AccountId   string
	Scope       string
	Mode        models.RentalMode
	PhoneNumber string
	Cost        decimal.Decimal
	Duration    time.Duration
}

// Store defines the contract the persistence backend must satisfy.
// All balance mutation flows through Debit/Credit or the lifecycle
// methods below; nothing else touches credit_balance.
type Store interface {
	// --- Accounts ---
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	DeactivateAccount(ctx context.Context, accountId string) error
	GrantFreeUnits(ctx context.Context, accountId string, units int64) error

	// --- Ledger ---
	Debit(ctx context.Context, accountId string, amount decimal.Decimal, kind models.TransactionKind, referenceId string) (*models.Transaction, error)
	Credit(ctx context.Context, accountId string, amount decimal.Decimal, kind models.TransactionKind, referenceId string) (*models.Transaction, error)
	AdminAdjust(ctx context.Context, accountId string, amount decimal.Decimal, reason string) (*models.Transaction, error)
	BalanceOf(ctx context.Context, accountId string) (decimal.Decimal, error)
	History(ctx context.Context, accountId string, filter HistoryFilter) ([]models.Transaction, error)
	ReconcileAccount(ctx context.Context, accountId string) error

	// --- Payment events (idempotency guard) ---
	ClaimPaymentEvent(ctx context.Context, params ClaimPaymentParams) error
	GetPaymentEvent(ctx context.Context, externalReference string) (*models.PaymentEvent, error)
	ApplyPaymentEvent(ctx context.Context, params ApplyPaymentParams) (*PaymentApplication, error)
	RejectPaymentEvent(ctx context.Context, externalReference string) error

	// --- Verifications ---
	CreateVerification(ctx context.Context, params CreateVerificationParams) (*models.Verification, error)
	GetVerification(ctx context.Context, verificationId string) (*models.Verification, error)
	CompleteVerification(ctx context.Context, verificationId, receivedCode string) error
	FinishVerification(ctx context.Context, verificationId string, to models.VerificationState) (decimal.Decimal, error)
	RefundVerification(ctx context.Context, verificationId string) (decimal.Decimal, error)
	ListDueVerifications(ctx context.Context, now time.Time, limit int) ([]models.Verification, error)

	// --- Rentals ---
	CreateRental(ctx context.Context, params CreateRentalParams) (*models.Rental, error)
	GetRental(ctx context.Context, rentalId string) (*models.Rental, error)
	ExtendRental(ctx context.Context, rentalId string, cost decimal.Decimal, extension time.Duration) (*models.Rental, error)
	ReleaseRental(ctx context.Context, rentalId string, refund, expectedCostPaid decimal.Decimal) (*models.Rental, error)
	ExpireRental(ctx context.Context, rentalId string) error
	ListDueRentals(ctx context.Context, now time.Time, limit int) ([]models.Rental, error)

	// --- Lifecycle ---
	Close()
}
