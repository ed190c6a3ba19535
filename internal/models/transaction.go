package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the persisted record of a charge. It is created when a
// charge succeeds and mutated by verify calls and webhook deliveries; the
// reference never changes once assigned.
type Transaction struct {
	Reference  string            `json:"reference"`
	Provider   string            `json:"provider"`
	ProviderID string            `json:"provider_id,omitempty"`
	Status     Status            `json:"status"`
	Amount     decimal.Decimal   `json:"amount"`
	Currency   string            `json:"currency"`
	Channel    string            `json:"channel,omitempty"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Customer   *Customer         `json:"customer,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
