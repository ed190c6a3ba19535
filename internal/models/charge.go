package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid charge request: %s %s", e.Field, e.Reason)
}

type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// ChargeRequest carries everything a driver needs to create a charge.
// Construct it through NewChargeRequest so an instance is either fully
// valid or never exists; callers must not mutate it afterwards.
type ChargeRequest struct {
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Email          string            `json:"email"`
	Reference      string            `json:"reference,omitempty"`
	CallbackURL    string            `json:"callback_url,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Channels       []string          `json:"channels,omitempty"`
	Customer       *Customer         `json:"customer,omitempty"`
}

func NewChargeRequest(amount decimal.Decimal, currency, email string) (*ChargeRequest, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 || strings.IndexFunc(currency, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
		return nil, &ValidationError{Field: "currency", Reason: "must be a three-letter ISO 4217 code"}
	}
	if !strings.Contains(email, "@") {
		return nil, &ValidationError{Field: "email", Reason: "must be a valid address"}
	}
	return &ChargeRequest{
		Amount:   amount,
		Currency: currency,
		Email:    email,
	}, nil
}

// ChargeResponse is the provider's answer to a successful charge creation.
// Status carries the provider-native token as issued at creation time.
type ChargeResponse struct {
	Reference        string            `json:"reference"`
	AuthorizationURL string            `json:"authorization_url"`
	AccessCode       string            `json:"access_code,omitempty"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Provider         string            `json:"provider"`
}
