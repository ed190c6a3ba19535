package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChargeRequest(t *testing.T) {
	req, err := NewChargeRequest(decimal.NewFromFloat(1250.50), "ngn", "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, "NGN", req.Currency)
	assert.True(t, decimal.NewFromFloat(1250.50).Equal(req.Amount))
}

func TestNewChargeRequestRejectsBadInput(t *testing.T) {
	cases := []struct {
		name     string
		amount   decimal.Decimal
		currency string
		email    string
		field    string
	}{
		{"zero amount", decimal.Zero, "NGN", "a@b.com", "amount"},
		{"negative amount", decimal.NewFromInt(-1), "NGN", "a@b.com", "amount"},
		{"short currency", decimal.NewFromInt(1), "NG", "a@b.com", "currency"},
		{"numeric currency", decimal.NewFromInt(1), "566", "a@b.com", "currency"},
		{"missing email", decimal.NewFromInt(1), "NGN", "", "email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChargeRequest(tc.amount, tc.currency, tc.email)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestStatusIsCanonical(t *testing.T) {
	for _, s := range []Status{StatusSuccess, StatusFailed, StatusPending, StatusCancelled} {
		assert.True(t, s.IsCanonical())
	}
	assert.False(t, Status("overpaid").IsCanonical())
	assert.False(t, Status("").IsCanonical())
}
