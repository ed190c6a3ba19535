package dto

import (
	"github.com/shopspring/decimal"

	"github.com/paygate-ng/paygate/internal/models"
)

type ChargeRequestBody struct {
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Email          string            `json:"email"`
	Reference      string            `json:"reference,omitempty"`
	CallbackURL    string            `json:"callback_url,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Channels       []string          `json:"channels,omitempty"`
	Customer       *models.Customer  `json:"customer,omitempty"`
	Providers      []string          `json:"providers,omitempty"`
}

type ErrorResponse struct {
	Error     string            `json:"error"`
	Providers map[string]string `json:"providers,omitempty"`
}
