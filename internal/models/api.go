package models

// PaymentNotification is the inbound webhook payload. The HMAC
// signature travels in a header and is computed over the raw body,
// so handlers must verify before decoding.
type PaymentNotification struct {
	ExternalReference string `json:"external_reference"`
	AccountId         string `json:"account_id"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency"`
}

// BalanceResponse is the ops API view of an account balance.
type BalanceResponse struct {
	AccountId             string `json:"account_id"`
	CreditBalance         string `json:"credit_balance"`
	FreeVerificationUnits int64  `json:"free_verification_units"`
	DiscountTier          string `json:"discount_tier"`
}

// TransactionResponse is the ops API view of one ledger entry.
type TransactionResponse struct {
	Id           string `json:"id"`
	Amount       string `json:"amount"`
	Kind         string `json:"kind"`
	ReferenceId  string `json:"reference_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
	BalanceAfter string `json:"balance_after"`
	CreatedAt    string `json:"created_at"`
}
