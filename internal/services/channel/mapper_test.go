package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapNilAndEmptyOmit(t *testing.T) {
	m := NewMapper()

	out, omit := m.Map("paystack", nil)
	assert.True(t, omit)
	assert.Nil(t, out)

	out, omit = m.Map("paystack", []string{})
	assert.True(t, omit)
	assert.Nil(t, out)
}

func TestMapTranslatesToProviderVocabulary(t *testing.T) {
	m := NewMapper()

	out, omit := m.Map("flutterwave", []string{Card, BankTransfer, MobileMoney})
	assert.False(t, omit)
	assert.Equal(t, []string{"card", "banktransfer", "mobilemoney"}, out)

	out, omit = m.Map("monnify", []string{BankTransfer})
	assert.False(t, omit)
	assert.Equal(t, []string{"ACCOUNT_TRANSFER"}, out)
}

func TestMapDropsUnsupportedCanonicalChannels(t *testing.T) {
	m := NewMapper()

	// Monnify's table has no mobile money or QR entries.
	out, omit := m.Map("monnify", []string{Card, MobileMoney, QRCode})
	assert.False(t, omit)
	assert.Equal(t, []string{"CARD"}, out)
}

func TestMapAllDroppedBecomesOmit(t *testing.T) {
	m := NewMapper()

	out, omit := m.Map("monnify", []string{MobileMoney, QRCode})
	assert.True(t, omit)
	assert.Nil(t, out)
}

func TestMapUnknownTokenPassesThrough(t *testing.T) {
	m := NewMapper()

	out, omit := m.Map("paystack", []string{"crypto"})
	assert.False(t, omit)
	assert.Equal(t, []string{"crypto"}, out)
}

func TestMapUnregisteredProviderPassesThrough(t *testing.T) {
	m := NewMapper()

	channels := []string{Card, USSD}
	out, omit := m.Map("gtpay", channels)
	assert.False(t, omit)
	assert.Equal(t, channels, out)

	// The result is a copy, not an alias of the input.
	out[0] = "mutated"
	assert.Equal(t, Card, channels[0])
}

func TestMapNilRegistrationOmitsEverything(t *testing.T) {
	m := NewMapper()

	out, omit := m.Map("paypal", []string{Card, BankTransfer})
	assert.True(t, omit)
	assert.Nil(t, out)
}
