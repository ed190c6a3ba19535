// Package paystack implements the driver contract for Paystack. Webhooks
// are authenticated with scheme (a): HMAC-SHA512 over the raw body,
// hex-compared against the x-paystack-signature header.
package paystack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/paygate-ng/paygate/internal/models"
	"github.com/paygate-ng/paygate/internal/services/channel"
	"github.com/paygate-ng/paygate/internal/services/driver"
	"github.com/paygate-ng/paygate/internal/services/webhookauth"
)

const (
	Name           = "paystack"
	defaultBaseURL = "https://api.paystack.co"

	signatureHeader = "x-paystack-signature"
)

var defaultCurrencies = []string{"NGN", "USD", "GHS", "ZAR", "KES"}

type Driver struct {
	secretKey  string
	baseURL    string
	client     *http.Client
	currencies []string
	channels   *channel.Mapper
	health     *driver.HealthMemo
	guard      *webhookauth.ReplayGuard
}

func New(config driver.Config) (driver.Driver, error) {
	if err := config.Require(Name, "secret_key"); err != nil {
		return nil, err
	}
	timeout, _ := time.ParseDuration(config.Get("http_timeout", "30s"))
	tolerance, _ := time.ParseDuration(config.Get("webhook_tolerance", ""))

	currencies := defaultCurrencies
	if list := config.Get("currencies", ""); list != "" {
		currencies = strings.Split(list, ",")
	}
	return &Driver{
		secretKey:  config["secret_key"],
		baseURL:    strings.TrimSuffix(config.Get("base_url", defaultBaseURL), "/"),
		client:     driver.NewHTTPClient(timeout),
		currencies: currencies,
		channels:   channel.NewMapper(),
		health:     driver.NewHealthMemo(driver.DefaultHealthTTL),
		guard:      webhookauth.NewReplayGuard(tolerance),
	}, nil
}

func (d *Driver) Name() string { return Name }

func (d *Driver) Currencies() []string { return d.currencies }

func (d *Driver) SupportsCurrency(currency string) bool {
	return driver.SupportsCurrency(d.currencies, currency)
}

// ResolveVerificationID returns the merchant reference: Paystack's verify
// endpoint re-checks by reference, never by an internal id.
func (d *Driver) ResolveVerificationID(reference, storedProviderID string) string {
	return reference
}

type initializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Channels    []string          `json:"channels,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (d *Driver) Charge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResponse, error) {
	reference := req.Reference
	if reference == "" {
		reference = driver.GenerateReference(Name)
	}

	payload := initializeRequest{
		Email:       req.Email,
		Amount:      req.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Currency:    req.Currency,
		Reference:   reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	}
	if mapped, omit := d.channels.Map(Name, req.Channels); !omit {
		payload.Channels = mapped
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "failed to marshal charge request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "failed to build request", Err: err}
	}
	d.authorize(httpReq)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed initializeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || resp.StatusCode >= 300 || !parsed.Status {
		return nil, &driver.ChargeError{
			Provider: Name,
			Message:  fmt.Sprintf("initialize returned %d: %s", resp.StatusCode, parsed.Message),
		}
	}

	return &models.ChargeResponse{
		Reference:        parsed.Data.Reference,
		AuthorizationURL: parsed.Data.AuthorizationURL,
		AccessCode:       parsed.Data.AccessCode,
		Status:           "pending",
		Metadata:         req.Metadata,
		Provider:         Name,
	}, nil
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status        string            `json:"status"`
		Reference     string            `json:"reference"`
		Amount        int64             `json:"amount"`
		Currency      string            `json:"currency"`
		PaidAt        string            `json:"paid_at"`
		Channel       string            `json:"channel"`
		Metadata      map[string]string `json:"metadata"`
		Authorization struct {
			CardType string `json:"card_type"`
			Bank     string `json:"bank"`
		} `json:"authorization"`
		Customer struct {
			Email     string `json:"email"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"customer"`
	} `json:"data"`
}

func (d *Driver) Verify(ctx context.Context, id string) (*models.VerificationResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/transaction/verify/"+id, nil)
	if err != nil {
		return nil, &driver.VerificationError{Provider: Name, Message: "failed to build request", Err: err}
	}
	d.authorize(httpReq)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &driver.VerificationError{Provider: Name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed verifyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || resp.StatusCode >= 300 || !parsed.Status {
		return nil, &driver.VerificationError{
			Provider: Name,
			Message:  fmt.Sprintf("verify returned %d: %s", resp.StatusCode, parsed.Message),
		}
	}

	result := &models.VerificationResponse{
		Reference: parsed.Data.Reference,
		Status:    models.Status(parsed.Data.Status),
		Amount:    decimal.NewFromInt(parsed.Data.Amount).Div(decimal.NewFromInt(100)),
		Currency:  parsed.Data.Currency,
		Channel:   parsed.Data.Channel,
		CardType:  parsed.Data.Authorization.CardType,
		Bank:      parsed.Data.Authorization.Bank,
		Metadata:  parsed.Data.Metadata,
		Provider:  Name,
	}
	if paidAt := driver.ParseTime(parsed.Data.PaidAt); !paidAt.IsZero() {
		result.PaidAt = &paidAt
	}
	if parsed.Data.Customer.Email != "" {
		result.Customer = &models.Customer{
			Email:     parsed.Data.Customer.Email,
			FirstName: parsed.Data.Customer.FirstName,
			LastName:  parsed.Data.Customer.LastName,
		}
	}
	return result, nil
}

// HealthCheck probes with a deliberately-invalid verify; any response below
// 500 proves the API is up.
func (d *Driver) HealthCheck(ctx context.Context) bool {
	return d.health.Check(func() bool {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/transaction/verify/health_probe_invalid", nil)
		if err != nil {
			return false
		}
		d.authorize(httpReq)
		resp, err := d.client.Do(httpReq)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return driver.HealthyStatus(resp.StatusCode)
	})
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Channel   string `json:"channel"`
		PaidAt    string `json:"paid_at"`
		CreatedAt string `json:"created_at"`
	} `json:"data"`
}

func (d *Driver) ValidateWebhook(headers map[string]string, body []byte) bool {
	signature := driver.Header(headers, signatureHeader)
	if signature == "" || !webhookauth.VerifyHMACSHA512Hex(d.secretKey, body, signature) {
		return false
	}
	event, err := parseEvent(body)
	if err != nil {
		return false
	}
	issuedAt := driver.ParseTime(event.Data.PaidAt)
	if issuedAt.IsZero() {
		issuedAt = driver.ParseTime(event.Data.CreatedAt)
	}
	return d.guard.Allow(issuedAt)
}

func (d *Driver) ExtractWebhookReference(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	return event.Data.Reference, nil
}

func (d *Driver) ExtractWebhookStatus(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	if event.Data.Status != "" {
		return event.Data.Status, nil
	}
	return event.Event, nil
}

func (d *Driver) ExtractWebhookChannel(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	return event.Data.Channel, nil
}

func (d *Driver) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+d.secretKey)
	req.Header.Set("Content-Type", "application/json")
}

func parseEvent(payload []byte) (*webhookEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("paystack: failed to parse webhook payload: %w", err)
	}
	return &event, nil
}
