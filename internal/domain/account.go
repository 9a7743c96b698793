package domain

import "time"

// Account is the billing-facing view of a customer. The ID is the external
// identity-provider identifier and is treated as opaque.
type Account struct {
	ID                 string
	Name               string
	PaidPlan           bool // set when the account has an active subscription
	FreeCallsRemaining int
	APIKeyID           string // public half of the API key, used for lookup
	APIKeyHash         []byte // bcrypt hash of the secret half
	CreatedAt          time.Time
}

// HasFreeCalls reports whether the account can still ingest on the free tier.
func (a *Account) HasFreeCalls() bool {
	return a.FreeCallsRemaining > 0
}
