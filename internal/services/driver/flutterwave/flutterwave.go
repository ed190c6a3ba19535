// Package flutterwave implements the driver contract for Flutterwave.
// Webhooks use scheme (c): the verif-hash header carries the shared secret
// itself and is compared in constant time, no hashing involved.
package flutterwave

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
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
	Name           = "flutterwave"
	defaultBaseURL = "https://api.flutterwave.com/v3"

	signatureHeader = "verif-hash"
)

var defaultCurrencies = []string{"NGN", "USD", "GHS", "KES", "UGX", "TZS"}

type Driver struct {
	secretKey   string
	webhookHash string
	baseURL     string
	client      *http.Client
	currencies  []string
	channels    *channel.Mapper
	health      *driver.HealthMemo
	guard       *webhookauth.ReplayGuard
}

func New(config driver.Config) (driver.Driver, error) {
	if err := config.Require(Name, "secret_key", "webhook_hash"); err != nil {
		return nil, err
	}
	timeout, _ := time.ParseDuration(config.Get("http_timeout", "30s"))
	tolerance, _ := time.ParseDuration(config.Get("webhook_tolerance", ""))

	currencies := defaultCurrencies
	if list := config.Get("currencies", ""); list != "" {
		currencies = strings.Split(list, ",")
	}
	return &Driver{
		secretKey:   config["secret_key"],
		webhookHash: config["webhook_hash"],
		baseURL:     strings.TrimSuffix(config.Get("base_url", defaultBaseURL), "/"),
		client:      driver.NewHTTPClient(timeout),
		currencies:  currencies,
		channels:    channel.NewMapper(),
		health:      driver.NewHealthMemo(driver.DefaultHealthTTL),
		guard:       webhookauth.NewReplayGuard(tolerance),
	}, nil
}

func (d *Driver) Name() string { return Name }

func (d *Driver) Currencies() []string { return d.currencies }

func (d *Driver) SupportsCurrency(currency string) bool {
	return driver.SupportsCurrency(d.currencies, currency)
}

// ResolveVerificationID prefers the provider-issued transaction id the
// charge callback recorded; without one it falls back to the merchant
// reference, which routes through verify_by_reference.
func (d *Driver) ResolveVerificationID(reference, storedProviderID string) string {
	if storedProviderID != "" {
		return storedProviderID
	}
	return reference
}

type paymentRequest struct {
	TxRef          string            `json:"tx_ref"`
	Amount         string            `json:"amount"`
	Currency       string            `json:"currency"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	PaymentOptions string            `json:"payment_options,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
	Customer       struct {
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
		Phone string `json:"phonenumber,omitempty"`
	} `json:"customer"`
}

type paymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

func (d *Driver) Charge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResponse, error) {
	reference := req.Reference
	if reference == "" {
		reference = driver.GenerateReference(Name)
	}

	payload := paymentRequest{
		TxRef:       reference,
		Amount:      req.Amount.String(),
		Currency:    req.Currency,
		RedirectURL: req.CallbackURL,
		Meta:        req.Metadata,
	}
	payload.Customer.Email = req.Email
	if req.Customer != nil {
		payload.Customer.Name = strings.TrimSpace(req.Customer.FirstName + " " + req.Customer.LastName)
		payload.Customer.Phone = req.Customer.Phone
	}
	if mapped, omit := d.channels.Map(Name, req.Channels); !omit {
		payload.PaymentOptions = strings.Join(mapped, ",")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "failed to marshal charge request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/payments", bytes.NewReader(body))
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
	var parsed paymentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || resp.StatusCode >= 300 || parsed.Status != "success" {
		return nil, &driver.ChargeError{
			Provider: Name,
			Message:  fmt.Sprintf("payments returned %d: %s", resp.StatusCode, parsed.Message),
		}
	}

	return &models.ChargeResponse{
		Reference:        reference,
		AuthorizationURL: parsed.Data.Link,
		Status:           "pending",
		Metadata:         req.Metadata,
		Provider:         Name,
	}, nil
}

type verifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID          int64   `json:"id"`
		TxRef       string  `json:"tx_ref"`
		Status      string  `json:"status"`
		Amount      float64 `json:"amount"`
		Currency    string  `json:"currency"`
		CreatedAt   string  `json:"created_at"`
		PaymentType string  `json:"payment_type"`
		Card        struct {
			Type   string `json:"type"`
			Issuer string `json:"issuer"`
		} `json:"card"`
		Customer struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"customer"`
	} `json:"data"`
}

func (d *Driver) Verify(ctx context.Context, id string) (*models.VerificationResponse, error) {
	// Provider-issued numeric ids verify directly; merchant references
	// (always delimiter-separated) route through the by-reference endpoint.
	endpoint := d.baseURL + "/transactions/" + id + "/verify"
	if strings.Contains(id, "_") {
		endpoint = d.baseURL + "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(id)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
	if err := json.Unmarshal(raw, &parsed); err != nil || resp.StatusCode >= 300 || parsed.Status != "success" {
		return nil, &driver.VerificationError{
			Provider: Name,
			Message:  fmt.Sprintf("verify returned %d: %s", resp.StatusCode, parsed.Message),
		}
	}

	result := &models.VerificationResponse{
		Reference: parsed.Data.TxRef,
		Status:    models.Status(parsed.Data.Status),
		Amount:    decimal.NewFromFloat(parsed.Data.Amount),
		Currency:  parsed.Data.Currency,
		Channel:   parsed.Data.PaymentType,
		CardType:  parsed.Data.Card.Type,
		Bank:      parsed.Data.Card.Issuer,
		Provider:  Name,
	}
	if paidAt := driver.ParseTime(parsed.Data.CreatedAt); !paidAt.IsZero() {
		result.PaidAt = &paidAt
	}
	if parsed.Data.Customer.Email != "" {
		result.Customer = &models.Customer{Email: parsed.Data.Customer.Email}
	}
	return result, nil
}

func (d *Driver) HealthCheck(ctx context.Context) bool {
	return d.health.Check(func() bool {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/transactions/0/verify", nil)
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
		ID          int64  `json:"id"`
		TxRef       string `json:"tx_ref"`
		Status      string `json:"status"`
		CreatedAt   string `json:"created_at"`
		PaymentType string `json:"payment_type"`
	} `json:"data"`
}

func (d *Driver) ValidateWebhook(headers map[string]string, body []byte) bool {
	if !webhookauth.VerifySharedSecret(d.webhookHash, driver.Header(headers, signatureHeader)) {
		return false
	}
	event, err := parseEvent(body)
	if err != nil {
		return false
	}
	return d.guard.Allow(driver.ParseTime(event.Data.CreatedAt))
}

func (d *Driver) ExtractWebhookReference(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	return event.Data.TxRef, nil
}

func (d *Driver) ExtractWebhookStatus(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	return event.Data.Status, nil
}

func (d *Driver) ExtractWebhookChannel(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	return event.Data.PaymentType, nil
}

func (d *Driver) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+d.secretKey)
	req.Header.Set("Content-Type", "application/json")
}

func parseEvent(payload []byte) (*webhookEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("flutterwave: failed to parse webhook payload: %w", err)
	}
	return &event, nil
}
