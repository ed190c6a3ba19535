package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VerificationResponse is the normalized result of re-checking a charge
// against the provider that processed it.
type VerificationResponse struct {
	Reference string            `json:"reference"`
	Status    Status            `json:"status"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	PaidAt    *time.Time        `json:"paid_at,omitempty"`
	Channel   string            `json:"channel,omitempty"`
	CardType  string            `json:"card_type,omitempty"`
	Bank      string            `json:"bank,omitempty"`
	Customer  *Customer         `json:"customer,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Provider  string            `json:"provider"`
}

// VerificationContext pairs a provider with the provider-specific identifier
// needed to re-check a reference. It is reconstructed on every verify call
// and never persisted beyond the context cache TTL.
type VerificationContext struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"provider_id,omitempty"`
}
