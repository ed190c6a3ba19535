package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-ng/paygate/internal/models"
	"github.com/paygate-ng/paygate/internal/services/cache"
	"github.com/paygate-ng/paygate/internal/services/detect"
	"github.com/paygate-ng/paygate/internal/services/driver"
	"github.com/paygate-ng/paygate/internal/services/registry"
	"github.com/paygate-ng/paygate/internal/services/status"
	"github.com/paygate-ng/paygate/internal/services/store"
)

type fakeDriver struct {
	name       string
	currencies []string
	healthy    bool

	mu             sync.Mutex
	chargeCalls    int
	verifyCalls    []string
	chargeErr      error
	verifyErr      error
	verifyStatus   string
	verifyByRef    bool
	lastProviderID string
}

func newFakeDriver(name string) *fakeDriver {
	return &fakeDriver{
		name:         name,
		currencies:   []string{"NGN", "USD"},
		healthy:      true,
		verifyStatus: "successful",
		verifyByRef:  true,
	}
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Charge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chargeCalls++
	if d.chargeErr != nil {
		return nil, d.chargeErr
	}
	reference := req.Reference
	if reference == "" {
		reference = driver.GenerateReference(d.name)
	}
	return &models.ChargeResponse{
		Reference:        reference,
		AuthorizationURL: "https://checkout.example.com/" + reference,
		AccessCode:       d.name + "-access",
		Status:           "pending",
		Provider:         d.name,
	}, nil
}

func (d *fakeDriver) Verify(ctx context.Context, id string) (*models.VerificationResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verifyCalls = append(d.verifyCalls, id)
	if d.verifyErr != nil {
		return nil, d.verifyErr
	}
	return &models.VerificationResponse{
		Reference: id,
		Status:    models.Status(d.verifyStatus),
		Amount:    decimal.NewFromInt(100),
		Currency:  "NGN",
		Provider:  d.name,
	}, nil
}

func (d *fakeDriver) ValidateWebhook(map[string]string, []byte) bool { return true }
func (d *fakeDriver) HealthCheck(context.Context) bool               { return d.healthy }
func (d *fakeDriver) Currencies() []string                           { return d.currencies }

func (d *fakeDriver) SupportsCurrency(currency string) bool {
	return driver.SupportsCurrency(d.currencies, currency)
}

func (d *fakeDriver) ResolveVerificationID(reference, storedProviderID string) string {
	d.mu.Lock()
	d.lastProviderID = storedProviderID
	d.mu.Unlock()
	if !d.verifyByRef && storedProviderID != "" {
		return storedProviderID
	}
	return reference
}

func (d *fakeDriver) ExtractWebhookReference([]byte) (string, error) { return "", nil }
func (d *fakeDriver) ExtractWebhookStatus([]byte) (string, error)    { return "", nil }
func (d *fakeDriver) ExtractWebhookChannel([]byte) (string, error)   { return "", nil }

type fixture struct {
	orch     *Orchestrator
	drivers  map[string]*fakeDriver
	contexts *cache.Memory
	store    *store.MemoryTransactionStore
	ctors    map[string]int
}

func newFixture(t *testing.T, cfg Config, names ...string) *fixture {
	t.Helper()
	f := &fixture{
		drivers:  make(map[string]*fakeDriver),
		contexts: cache.NewMemory(),
		store:    store.NewMemoryTransactionStore(),
		ctors:    make(map[string]int),
	}
	reg := registry.New()
	detector := detect.NewDetector()
	for _, name := range names {
		name := name
		f.drivers[name] = newFakeDriver(name)
		reg.Register(name, func(config driver.Config) (driver.Driver, error) {
			f.ctors[name]++
			return f.drivers[name], nil
		})
		detector.RegisterProvider(name)
	}
	if len(cfg.Chain) == 0 {
		cfg.Chain = names
	}
	cfg.TransactionLogEnabled = true
	f.orch = New(reg, status.NewNormalizer(), detector, f.contexts, f.store, cfg)
	return f
}

func chargeRequest(t *testing.T) *models.ChargeRequest {
	t.Helper()
	req, err := models.NewChargeRequest(decimal.NewFromInt(100), "NGN", "buyer@example.com")
	require.NoError(t, err)
	return req
}

func TestChargeFirstProviderWins(t *testing.T) {
	f := newFixture(t, Config{}, "paystack", "flutterwave")

	resp, err := f.orch.Charge(context.Background(), chargeRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "paystack", resp.Provider)
	assert.Equal(t, 1, f.drivers["paystack"].chargeCalls)
	assert.Equal(t, 0, f.drivers["flutterwave"].chargeCalls)
}

func TestChargeFallsBackInOrder(t *testing.T) {
	f := newFixture(t, Config{}, "paystack", "flutterwave", "monnify")
	f.drivers["paystack"].chargeErr = &driver.ChargeError{Provider: "paystack", Message: "insufficient funds"}
	f.drivers["flutterwave"].chargeErr = errors.New("connection refused")

	resp, err := f.orch.Charge(context.Background(), chargeRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "monnify", resp.Provider)

	// Exactly one transaction despite two failed attempts.
	assert.Equal(t, 1, f.store.Len())
	tx, err := f.store.FindByReference(context.Background(), resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, "monnify", tx.Provider)
	assert.Equal(t, models.StatusPending, tx.Status)
}

func TestChargeAllFailAggregatesInOrder(t *testing.T) {
	f := newFixture(t, Config{}, "paystack", "flutterwave")
	f.drivers["paystack"].chargeErr = errors.New("timeout")
	f.drivers["flutterwave"].chargeErr = errors.New("invalid key")

	_, err := f.orch.Charge(context.Background(), chargeRequest(t))
	var aggregate *AggregateError
	require.ErrorAs(t, err, &aggregate)
	require.Len(t, aggregate.Attempts, 2)
	assert.Equal(t, "paystack", aggregate.Attempts[0].Provider)
	assert.Equal(t, "flutterwave", aggregate.Attempts[1].Provider)

	messages := aggregate.Messages()
	assert.Contains(t, messages["paystack"], "timeout")
	assert.Contains(t, messages["flutterwave"], "invalid key")
	assert.Equal(t, 0, f.store.Len())
}

func TestChargeSkipsUnsupportedCurrency(t *testing.T) {
	f := newFixture(t, Config{}, "monnify", "paypal")
	f.drivers["monnify"].currencies = []string{"NGN"}
	f.drivers["paypal"].currencies = []string{"USD", "EUR"}

	req, err := models.NewChargeRequest(decimal.NewFromInt(100), "USD", "buyer@example.com")
	require.NoError(t, err)

	resp, err := f.orch.Charge(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "paypal", resp.Provider)
	assert.Equal(t, 0, f.drivers["monnify"].chargeCalls)
}

func TestChargeSkipsUnhealthyProvider(t *testing.T) {
	f := newFixture(t, Config{HealthChecksEnabled: true}, "paystack", "flutterwave")
	f.drivers["paystack"].healthy = false

	resp, err := f.orch.Charge(context.Background(), chargeRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "flutterwave", resp.Provider)
	assert.Equal(t, 0, f.drivers["paystack"].chargeCalls)
}

func TestChargeExplicitProvidersOverrideChain(t *testing.T) {
	f := newFixture(t, Config{}, "paystack", "flutterwave")

	resp, err := f.orch.Charge(context.Background(), chargeRequest(t), "flutterwave")
	require.NoError(t, err)
	assert.Equal(t, "flutterwave", resp.Provider)
	assert.Equal(t, 0, f.drivers["paystack"].chargeCalls)
}

func TestChargeCachesVerificationContext(t *testing.T) {
	f := newFixture(t, Config{}, "paystack")

	resp, err := f.orch.Charge(context.Background(), chargeRequest(t))
	require.NoError(t, err)

	data, err := f.contexts.Get(context.Background(), contextKeyPrefix+resp.Reference)
	require.NoError(t, err)
	var vctx models.VerificationContext
	require.NoError(t, json.Unmarshal([]byte(data), &vctx))
	assert.Equal(t, "paystack", vctx.Provider)
	assert.Equal(t, "paystack-access", vctx.ProviderID)
}

func TestDriverIsConstructedOnce(t *testing.T) {
	f := newFixture(t, Config{}, "paystack")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drv, err := f.orch.Driver("paystack")
			assert.NoError(t, err)
			assert.NotNil(t, drv)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.ctors["paystack"])
}

func TestVerifyExplicitProviderIsPinned(t *testing.T) {
	f := newFixture(t, Config{}, "paystack", "flutterwave")
	f.drivers["flutterwave"].verifyErr = errors.New("not found")

	_, err := f.orch.Verify(context.Background(), "PAYSTACK_1_aa", "flutterwave")
	var aggregate *AggregateError
	require.ErrorAs(t, err, &aggregate)
	require.Len(t, aggregate.Attempts, 1)
	assert.Equal(t, "flutterwave", aggregate.Attempts[0].Provider)
	// No sweep past the pinned provider.
	assert.Empty(t, f.drivers["paystack"].verifyCalls)
}

func TestVerifyUsesCachedContextFirst(t *testing.T) {
	f := newFixture(t, Config{}, "paystack", "flutterwave")

	// The store says paystack, the cache says flutterwave; the cache is
	// fresher and must win.
	require.NoError(t, f.store.Create(context.Background(), &models.Transaction{
		Reference: "PAYSTACK_1_aa",
		Provider:  "paystack",
	}))
	vctx, _ := json.Marshal(models.VerificationContext{Provider: "flutterwave", ProviderID: "4099920"})
	require.NoError(t, f.contexts.Put(context.Background(), contextKeyPrefix+"PAYSTACK_1_aa", string(vctx), time.Hour))

	resp, err := f.orch.Verify(context.Background(), "PAYSTACK_1_aa", "")
	require.NoError(t, err)
	assert.Equal(t, "flutterwave", resp.Provider)
	assert.Equal(t, "4099920", f.drivers["flutterwave"].lastProviderID)
	assert.Empty(t, f.drivers["paystack"].verifyCalls)
}

func TestVerifyFallsBackToStoreThenDetector(t *testing.T) {
	f := newFixture(t, Config{}, "paystack", "flutterwave")

	// Store tier.
	require.NoError(t, f.store.Create(context.Background(), &models.Transaction{
		Reference: "REF_NO_PREFIX_MATCH",
		Provider:  "flutterwave",
	}))
	resp, err := f.orch.Verify(context.Background(), "REF_NO_PREFIX_MATCH", "")
	require.NoError(t, err)
	assert.Equal(t, "flutterwave", resp.Provider)

	// Detector tier: nothing cached or stored, the prefix decides.
	resp, err = f.orch.Verify(context.Background(), "PAYSTACK_1700000000_ab12cd34ef56", "")
	require.NoError(t, err)
	assert.Equal(t, "paystack", resp.Provider)
}

func TestVerifySweepsRemainingProviders(t *testing.T) {
	f := newFixture(t, Config{}, "paystack", "flutterwave", "monnify")
	f.drivers["paystack"].verifyErr = errors.New("not found")
	f.drivers["flutterwave"].verifyErr = errors.New("not found")

	// Unknown reference: no tier resolves it, every enabled provider is
	// tried in chain order until one answers.
	resp, err := f.orch.Verify(context.Background(), "UNKNOWN-REF-123", "")
	require.NoError(t, err)
	assert.Equal(t, "monnify", resp.Provider)
}

func TestVerifyAllFail(t *testing.T) {
	f := newFixture(t, Config{}, "paystack", "flutterwave")
	f.drivers["paystack"].verifyErr = errors.New("not found")
	f.drivers["flutterwave"].verifyErr = errors.New("not found")

	_, err := f.orch.Verify(context.Background(), "UNKNOWN-REF-123", "")
	var aggregate *AggregateError
	require.ErrorAs(t, err, &aggregate)
	assert.Len(t, aggregate.Attempts, 2)
}

func TestVerifyNormalizesStatusAndPersists(t *testing.T) {
	f := newFixture(t, Config{}, "paystack")
	f.drivers["paystack"].verifyStatus = "abandoned"

	require.NoError(t, f.store.Create(context.Background(), &models.Transaction{
		Reference: "PAYSTACK_1_aa",
		Provider:  "paystack",
		Status:    models.StatusPending,
	}))

	resp, err := f.orch.Verify(context.Background(), "PAYSTACK_1_aa", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, resp.Status)

	tx, err := f.store.FindByReference(context.Background(), "PAYSTACK_1_aa")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, tx.Status)
}

func TestHealthReport(t *testing.T) {
	f := newFixture(t, Config{}, "paystack", "flutterwave")
	f.drivers["flutterwave"].healthy = false

	report := f.orch.Health(context.Background())
	assert.Equal(t, "ok", report.Status)
	assert.True(t, report.Providers["paystack"].Healthy)
	assert.False(t, report.Providers["flutterwave"].Healthy)
	assert.Equal(t, []string{"NGN", "USD"}, report.Providers["paystack"].Currencies)
}

func TestHealthReportDegradedWhenAllDown(t *testing.T) {
	f := newFixture(t, Config{}, "paystack")
	f.drivers["paystack"].healthy = false

	report := f.orch.Health(context.Background())
	assert.Equal(t, "degraded", report.Status)
}
