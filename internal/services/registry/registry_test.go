package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-ng/paygate/internal/models"
	"github.com/paygate-ng/paygate/internal/services/driver"
)

type stubDriver struct {
	name string
}

func (d *stubDriver) Name() string { return d.name }
func (d *stubDriver) Charge(context.Context, *models.ChargeRequest) (*models.ChargeResponse, error) {
	return nil, errors.New("not implemented")
}
func (d *stubDriver) Verify(context.Context, string) (*models.VerificationResponse, error) {
	return nil, errors.New("not implemented")
}
func (d *stubDriver) ValidateWebhook(map[string]string, []byte) bool { return false }
func (d *stubDriver) HealthCheck(context.Context) bool               { return true }
func (d *stubDriver) SupportsCurrency(string) bool                   { return true }
func (d *stubDriver) Currencies() []string                           { return nil }
func (d *stubDriver) ResolveVerificationID(reference, providerID string) string {
	return reference
}
func (d *stubDriver) ExtractWebhookReference([]byte) (string, error) { return "", nil }
func (d *stubDriver) ExtractWebhookStatus([]byte) (string, error)    { return "", nil }
func (d *stubDriver) ExtractWebhookChannel([]byte) (string, error)   { return "", nil }

func stubConstructor(name string) Constructor {
	return func(config driver.Config) (driver.Driver, error) {
		return &stubDriver{name: name}, nil
	}
}

func TestResolveExplicitRegistrationWins(t *testing.T) {
	reg := New()
	reg.Register("paystack", stubConstructor("explicit"))
	reg.RegisterImplementation("PaystackDriver", stubConstructor("convention"))
	reg.Configure("paystack", "PaystackDriver")

	drv, err := reg.Resolve("paystack")
	require.NoError(t, err)
	assert.Equal(t, "explicit", drv.Name())
}

func TestResolveConfiguredImplementation(t *testing.T) {
	reg := New()
	reg.RegisterImplementation("SandboxDriver", stubConstructor("sandbox"))
	reg.RegisterImplementation("PaystackDriver", stubConstructor("convention"))
	reg.Configure("paystack", "SandboxDriver")

	drv, err := reg.Resolve("paystack")
	require.NoError(t, err)
	assert.Equal(t, "sandbox", drv.Name())
}

func TestResolveByConvention(t *testing.T) {
	reg := New()
	reg.RegisterImplementation("PaystackDriver", stubConstructor("convention"))

	drv, err := reg.Resolve("paystack")
	require.NoError(t, err)
	assert.Equal(t, "convention", drv.Name())
}

func TestResolveLiteralFallback(t *testing.T) {
	reg := New()
	reg.Register("flutterwave", stubConstructor("flutterwave"))
	// "backup" has no implementation of its own; its configured value names
	// another registered provider.
	reg.Configure("backup", "flutterwave")

	drv, err := reg.Resolve("backup")
	require.NoError(t, err)
	assert.Equal(t, "flutterwave", drv.Name())
}

func TestResolveUnknownProvider(t *testing.T) {
	reg := New()

	_, err := reg.Resolve("stripe")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "stripe", notFound.Provider)
}

func TestResolvePassesConfig(t *testing.T) {
	reg := New()
	var seen driver.Config
	reg.Register("paystack", func(config driver.Config) (driver.Driver, error) {
		seen = config
		return &stubDriver{name: "paystack"}, nil
	})
	reg.SetConfig("paystack", driver.Config{"secret_key": "sk_test"})

	_, err := reg.Resolve("paystack")
	require.NoError(t, err)
	assert.Equal(t, "sk_test", seen["secret_key"])
}

func TestResolveConstructorFailure(t *testing.T) {
	reg := New()
	reg.Register("monnify", func(config driver.Config) (driver.Driver, error) {
		return nil, config.Require("monnify", "api_key")
	})

	_, err := reg.Resolve("monnify")
	var cfgErr *driver.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "api_key", cfgErr.Field)
}

func TestProvidersKeepsRegistrationOrder(t *testing.T) {
	reg := New()
	reg.Register("paystack", stubConstructor("paystack"))
	reg.Register("flutterwave", stubConstructor("flutterwave"))
	reg.Register("paystack", stubConstructor("paystack"))

	assert.Equal(t, []string{"paystack", "flutterwave"}, reg.Providers())
}

func TestConventionName(t *testing.T) {
	cases := map[string]string{
		"paystack":     "PaystackDriver",
		"flutterwave":  "FlutterwaveDriver",
		"monnify":      "MonnifyDriver",
		"paypal":       "PayPalDriver",
		"payu":         "PayUDriver",
		"gtpay":        "GTPayDriver",
		"interswitch":  "InterswitchDriver",
		"quick_teller": "QuickTellerDriver",
		"bank-direct":  "BankDirectDriver",
		"PAYSTACK":     "PaystackDriver",
	}
	for provider, want := range cases {
		assert.Equal(t, want, ConventionName(provider), "provider %q", provider)
	}
}
