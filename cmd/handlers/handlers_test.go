package handlers

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	json "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-ng/paygate/internal/models"
	"github.com/paygate-ng/paygate/internal/services/cache"
	"github.com/paygate-ng/paygate/internal/services/detect"
	"github.com/paygate-ng/paygate/internal/services/driver"
	"github.com/paygate-ng/paygate/internal/services/events"
	"github.com/paygate-ng/paygate/internal/services/orchestrator"
	"github.com/paygate-ng/paygate/internal/services/registry"
	"github.com/paygate-ng/paygate/internal/services/status"
	"github.com/paygate-ng/paygate/internal/services/store"
	"github.com/paygate-ng/paygate/internal/services/webhook"
)

type testDriver struct{}

func (d *testDriver) Name() string { return "paystack" }

func (d *testDriver) Charge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResponse, error) {
	reference := req.Reference
	if reference == "" {
		reference = driver.GenerateReference("paystack")
	}
	return &models.ChargeResponse{
		Reference:        reference,
		AuthorizationURL: "https://checkout.example.com/" + reference,
		Status:           "pending",
		Provider:         "paystack",
	}, nil
}

func (d *testDriver) Verify(ctx context.Context, id string) (*models.VerificationResponse, error) {
	if id != "PAYSTACK_1_aa" {
		return nil, errors.New("transaction not found")
	}
	return &models.VerificationResponse{
		Reference: id,
		Status:    models.Status("successful"),
		Amount:    decimal.NewFromInt(100),
		Currency:  "NGN",
		Provider:  "paystack",
	}, nil
}

// ValidateWebhook accepts only the shared test token; handler tests drive
// both outcomes through this.
func (d *testDriver) ValidateWebhook(headers map[string]string, body []byte) bool {
	return driver.Header(headers, "x-test-signature") == "valid-signature"
}

func (d *testDriver) HealthCheck(context.Context) bool { return true }
func (d *testDriver) SupportsCurrency(string) bool     { return true }
func (d *testDriver) Currencies() []string             { return []string{"NGN"} }
func (d *testDriver) ResolveVerificationID(reference, providerID string) string {
	return reference
}

func (d *testDriver) ExtractWebhookReference(payload []byte) (string, error) {
	var event struct {
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", err
	}
	return event.Reference, nil
}

func (d *testDriver) ExtractWebhookStatus(payload []byte) (string, error)  { return "successful", nil }
func (d *testDriver) ExtractWebhookChannel(payload []byte) (string, error) { return "card", nil }

type stubQueue struct {
	mu     sync.Mutex
	pushed [][]byte
}

func (q *stubQueue) Push(ctx context.Context, queue string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, payload)
	return nil
}

func (q *stubQueue) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *stubQueue) PushDelayed(ctx context.Context, queue string, payload []byte, readyAt time.Time) error {
	return q.Push(ctx, queue, payload)
}

func (q *stubQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pushed)
}

func newTestApp(t *testing.T) (*fiber.App, *stubQueue) {
	t.Helper()

	reg := registry.New()
	reg.Register("paystack", func(config driver.Config) (driver.Driver, error) {
		return &testDriver{}, nil
	})
	detector := detect.NewDetector()
	detector.RegisterProvider("paystack")

	orch := orchestrator.New(reg, status.NewNormalizer(), detector, cache.NewMemory(), store.NewMemoryTransactionStore(), orchestrator.Config{
		Chain:                 []string{"paystack"},
		TransactionLogEnabled: true,
	})
	queue := &stubQueue{}
	processor := webhook.NewProcessor(1, queue, cache.NewMemory(), store.NewMemoryTransactionStore(), status.NewNormalizer(), orch, events.NewHub())

	Orchestrator = orch
	Processor = processor

	app := fiber.New()
	app.Post("/charges", HandlePostCharge)
	app.Get("/transactions/:reference/verify", HandleVerify)
	app.Post("/webhooks/:provider", HandleWebhook)
	app.Get("/health", HandleHealth)
	return app, queue
}

func TestWebhookAcceptedWhenSignatureValid(t *testing.T) {
	app, queue := newTestApp(t)

	req := httptest.NewRequest("POST", "/webhooks/paystack", strings.NewReader(`{"reference":"PAYSTACK_1_aa"}`))
	req.Header.Set("x-test-signature", "valid-signature")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, queue.count())
}

func TestWebhookRejectedWhenSignatureInvalid(t *testing.T) {
	app, queue := newTestApp(t)

	req := httptest.NewRequest("POST", "/webhooks/paystack", strings.NewReader(`{"reference":"PAYSTACK_1_aa"}`))
	req.Header.Set("x-test-signature", "forged")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	// A rejected delivery is never enqueued.
	assert.Equal(t, 0, queue.count())
}

func TestWebhookUnknownProvider(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{}`))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestPostChargeCreated(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/charges", strings.NewReader(`{"amount":"1250.50","currency":"NGN","email":"buyer@example.com"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body models.ChargeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "paystack", body.Provider)
	assert.NotEmpty(t, body.AuthorizationURL)
}

func TestPostChargeValidationFailure(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/charges", strings.NewReader(`{"amount":"0","currency":"NGN","email":"buyer@example.com"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestVerifyEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/transactions/PAYSTACK_1_aa/verify", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body models.VerificationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, models.StatusSuccess, body.Status)
}

func TestVerifyEndpointNotFound(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/transactions/UNKNOWN_9_zz/verify", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var report orchestrator.HealthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "ok", report.Status)
	assert.True(t, report.Providers["paystack"].Healthy)
}
