package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountTier is an account's pricing tier.
type DiscountTier string

const (
	TierNone       DiscountTier = "NONE"
	TierDeveloper  DiscountTier = "DEVELOPER"
	TierEnterprise DiscountTier = "ENTERPRISE"
)

// TransactionKind is the business reason for a ledger entry.
type TransactionKind string

const (
	KindFunding            TransactionKind = "FUNDING"
	KindVerificationCharge TransactionKind = "VERIFICATION_CHARGE"
	KindVerificationRefund TransactionKind = "VERIFICATION_REFUND"
	KindRentalCharge       TransactionKind = "RENTAL_CHARGE"
	KindRentalRefund       TransactionKind = "RENTAL_REFUND"
	KindRentalExtension    TransactionKind = "RENTAL_EXTENSION"
	KindAdminAdjustment    TransactionKind = "ADMIN_ADJUSTMENT"
	KindReferralBonus      TransactionKind = "REFERRAL_BONUS"
)

// PaymentStatus tracks an externally reported payment through processing.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentApplied  PaymentStatus = "APPLIED"
	PaymentRejected PaymentStatus = "REJECTED"
)

// Capability selects the delivery channel of a verification.
type Capability string

const (
	CapabilitySMS   Capability = "SMS"
	CapabilityVoice Capability = "VOICE"
)

// VerificationState is the lifecycle state of a verification attempt.
// PENDING is the only non-terminal state.
type VerificationState string

const (
	VerificationPending   VerificationState = "PENDING"
	VerificationCompleted VerificationState = "COMPLETED"
	VerificationExpired   VerificationState = "EXPIRED"
	VerificationCancelled VerificationState = "CANCELLED"
)

// RentalScope selects the service binding of a rented number.
// ScopeGeneral numbers receive messages for any service.
const ScopeGeneral = "GENERAL"

// RentalMode selects how the rented number is kept.
type RentalMode string

const (
	ModeAlwaysReady RentalMode = "ALWAYS_READY"
	ModeManual      RentalMode = "MANUAL"
)

// RentalState is the lifecycle state of a number lease.
type RentalState string

const (
	RentalActive   RentalState = "ACTIVE"
	RentalReleased RentalState = "RELEASED"
	RentalExpired  RentalState = "EXPIRED"
)

// Account owns one credit balance. Mutated only through the ledger;
// never deleted, only deactivated.
type Account struct {
	Id                    string          `db:"id"`
	Email                 string          `db:"email"`
	CreditBalance         decimal.Decimal `db:"credit_balance"`
	FreeVerificationUnits int64           `db:"free_verification_units"`
	DiscountTier          DiscountTier    `db:"discount_tier"`
	LifetimeFunded        decimal.Decimal `db:"lifetime_funded"`
	ReferrerAccountId     string          `db:"referrer_account_id"`
	Version               int64           `db:"version"`
	Active                bool            `db:"active"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

// Transaction is one immutable ledger entry. Amount is signed:
// positive = credit, negative = debit.
type Transaction struct {
	Id           string          `db:"id"`
	AccountId    string          `db:"account_id"`
	Amount       decimal.Decimal `db:"amount"`
	Kind         TransactionKind `db:"kind"`
	ReferenceId  string          `db:"reference_id"`
	Reason       string          `db:"reason"`
	BalanceAfter decimal.Decimal `db:"balance_after"`
	CreatedAt    time.Time       `db:"created_at"`
}

// PaymentEvent records one externally reported payment. The external
// reference is the idempotency key: the row is inserted exactly once
// and transitions to APPLIED exactly once.
type PaymentEvent struct {
	ExternalReference string          `db:"external_reference"`
	AccountId         string          `db:"account_id"`
	GrossAmount       decimal.Decimal `db:"gross_amount"`
	Currency          string          `db:"currency"`
	ConvertedAmount   decimal.Decimal `db:"converted_credit_amount"`
	Status            PaymentStatus   `db:"status"`
	CreatedAt         time.Time       `db:"created_at"`
	ProcessedAt       time.Time       `db:"processed_at"`
}

// Verification is one verification attempt. Cost is the credits
// charged at creation, zero when a free unit was consumed.
type Verification struct {
	Id           string            `db:"id"`
	AccountId    string            `db:"account_id"`
	ServiceName  string            `db:"service_name"`
	Capability   Capability        `db:"capability"`
	Cost         decimal.Decimal   `db:"cost"`
	UsedFreeUnit bool              `db:"used_free_unit"`
	PhoneNumber  string            `db:"phone_number"`
	ReceivedCode string            `db:"received_code"`
	State        VerificationState `db:"state"`
	Refunded     bool              `db:"refunded"`
	CreatedAt    time.Time         `db:"created_at"`
	ExpiresAt    time.Time         `db:"expires_at"`
}

// Rental is one number lease.
type Rental struct {
	Id             string          `db:"id"`
	AccountId      string          `db:"account_id"`
	Scope          string          `db:"scope"`
	Mode           RentalMode      `db:"mode"`
	PhoneNumber    string          `db:"phone_number"`
	CostPaidToDate decimal.Decimal `db:"cost_paid_to_date"`
	StartedAt      time.Time       `db:"started_at"`
	ExpiresAt      time.Time       `db:"expires_at"`
	State          RentalState     `db:"state"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// TotalDuration is the full paid-for span of the lease.
func (r *Rental) TotalDuration() time.Duration {
	return r.ExpiresAt.Sub(r.StartedAt)
}
