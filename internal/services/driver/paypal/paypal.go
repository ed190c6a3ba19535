// Package paypal implements the driver contract for PayPal. Webhook
// authenticity supports two first-class modes selected by the
// webhook_verify_mode config field: "api" (scheme d) delegates to PayPal's
// verify-webhook-signature endpoint; "cert" (scheme e) fetches the signing
// certificate from the transmission headers and checks the signature over
// the composed transmission string locally.
package paypal

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/paygate-ng/paygate/internal/models"
	"github.com/paygate-ng/paygate/internal/services/driver"
	"github.com/paygate-ng/paygate/internal/services/webhookauth"
)

const (
	Name           = "paypal"
	defaultBaseURL = "https://api-m.paypal.com"

	transmissionIDHeader   = "paypal-transmission-id"
	transmissionTimeHeader = "paypal-transmission-time"
	transmissionSigHeader  = "paypal-transmission-sig"
	certURLHeader          = "paypal-cert-url"
	authAlgoHeader         = "paypal-auth-algo"

	tokenExpirySlack = time.Minute
)

var defaultCurrencies = []string{"USD", "EUR", "GBP", "CAD", "AUD"}

type Driver struct {
	clientID     string
	clientSecret string
	webhookID    string
	verifyMode   string
	baseURL      string
	client       *http.Client
	currencies   []string
	health       *driver.HealthMemo
	guard        *webhookauth.ReplayGuard

	tokenMu      sync.Mutex
	token        string
	tokenExpires time.Time
}

func New(config driver.Config) (driver.Driver, error) {
	if err := config.Require(Name, "client_id", "client_secret", "webhook_id"); err != nil {
		return nil, err
	}
	timeout, _ := time.ParseDuration(config.Get("http_timeout", "30s"))
	tolerance, _ := time.ParseDuration(config.Get("webhook_tolerance", ""))

	currencies := defaultCurrencies
	if list := config.Get("currencies", ""); list != "" {
		currencies = strings.Split(list, ",")
	}
	return &Driver{
		clientID:     config["client_id"],
		clientSecret: config["client_secret"],
		webhookID:    config["webhook_id"],
		verifyMode:   config.Get("webhook_verify_mode", "api"),
		baseURL:      strings.TrimSuffix(config.Get("base_url", defaultBaseURL), "/"),
		client:       driver.NewHTTPClient(timeout),
		currencies:   currencies,
		health:       driver.NewHealthMemo(driver.DefaultHealthTTL),
		guard:        webhookauth.NewReplayGuard(tolerance),
	}, nil
}

func (d *Driver) Name() string { return Name }

func (d *Driver) Currencies() []string { return d.currencies }

func (d *Driver) SupportsCurrency(currency string) bool {
	return driver.SupportsCurrency(d.currencies, currency)
}

// ResolveVerificationID prefers the provider-issued order id; the orders
// API has no lookup by merchant reference.
func (d *Driver) ResolveVerificationID(reference, storedProviderID string) string {
	if storedProviderID != "" {
		return storedProviderID
	}
	return reference
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (d *Driver) accessToken(ctx context.Context) (string, error) {
	d.tokenMu.Lock()
	defer d.tokenMu.Unlock()
	if d.token != "" && time.Now().Before(d.tokenExpires) {
		return d.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal: failed to build token request: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(d.clientID + ":" + d.clientSecret))
	httpReq.Header.Set("Authorization", "Basic "+credentials)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("paypal: token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed tokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.AccessToken == "" {
		return "", fmt.Errorf("paypal: token endpoint returned %d", resp.StatusCode)
	}

	d.token = parsed.AccessToken
	d.tokenExpires = time.Now().Add(time.Duration(parsed.ExpiresIn)*time.Second - tokenExpirySlack)
	return d.token, nil
}

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string      `json:"reference_id"`
	CustomID    string      `json:"custom_id"`
	Amount      orderAmount `json:"amount"`
}

type createOrderRequest struct {
	Intent             string         `json:"intent"`
	PurchaseUnits      []purchaseUnit `json:"purchase_units"`
	ApplicationContext struct {
		ReturnURL string `json:"return_url,omitempty"`
	} `json:"application_context"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	CreateTime    string         `json:"create_time"`
	UpdateTime    string         `json:"update_time"`
	Payer         struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	Message string `json:"message"`
}

func (d *Driver) Charge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResponse, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "authentication failed", Err: err}
	}

	reference := req.Reference
	if reference == "" {
		reference = driver.GenerateReference(Name)
	}

	var payload createOrderRequest
	payload.Intent = "CAPTURE"
	payload.PurchaseUnits = []purchaseUnit{{
		ReferenceID: reference,
		CustomID:    reference,
		Amount: orderAmount{
			CurrencyCode: req.Currency,
			Value:        req.Amount.StringFixed(2),
		},
	}}
	payload.ApplicationContext.ReturnURL = req.CallbackURL

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "failed to marshal charge request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v2/checkout/orders", bytes.NewReader(body))
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("PayPal-Request-Id", req.IdempotencyKey)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed orderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || resp.StatusCode >= 300 || parsed.ID == "" {
		return nil, &driver.ChargeError{
			Provider: Name,
			Message:  fmt.Sprintf("create order returned %d: %s", resp.StatusCode, parsed.Message),
		}
	}

	approveURL := ""
	for _, link := range parsed.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}

	return &models.ChargeResponse{
		Reference:        reference,
		AuthorizationURL: approveURL,
		AccessCode:       parsed.ID,
		Status:           strings.ToLower(parsed.Status),
		Metadata:         req.Metadata,
		Provider:         Name,
	}, nil
}

func (d *Driver) Verify(ctx context.Context, id string) (*models.VerificationResponse, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return nil, &driver.VerificationError{Provider: Name, Message: "authentication failed", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/v2/checkout/orders/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, &driver.VerificationError{Provider: Name, Message: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &driver.VerificationError{Provider: Name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed orderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || resp.StatusCode >= 300 || parsed.ID == "" {
		return nil, &driver.VerificationError{
			Provider: Name,
			Message:  fmt.Sprintf("get order returned %d: %s", resp.StatusCode, parsed.Message),
		}
	}

	result := &models.VerificationResponse{
		Status:   models.Status(strings.ToLower(parsed.Status)),
		Provider: Name,
	}
	if len(parsed.PurchaseUnits) > 0 {
		unit := parsed.PurchaseUnits[0]
		result.Reference = unit.CustomID
		if result.Reference == "" {
			result.Reference = unit.ReferenceID
		}
		result.Currency = unit.Amount.CurrencyCode
		if amount, err := decimal.NewFromString(unit.Amount.Value); err == nil {
			result.Amount = amount
		}
	}
	if paidAt := driver.ParseTime(parsed.UpdateTime); !paidAt.IsZero() && strings.EqualFold(parsed.Status, "COMPLETED") {
		result.PaidAt = &paidAt
	}
	if parsed.Payer.EmailAddress != "" {
		result.Customer = &models.Customer{Email: parsed.Payer.EmailAddress}
	}
	return result, nil
}

// HealthCheck probes the token endpoint; an auth rejection still proves
// the API is reachable.
func (d *Driver) HealthCheck(ctx context.Context) bool {
	return d.health.Check(func() bool {
		form := url.Values{"grant_type": {"client_credentials"}}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return false
		}
		credentials := base64.StdEncoding.EncodeToString([]byte(d.clientID + ":" + d.clientSecret))
		httpReq.Header.Set("Authorization", "Basic "+credentials)
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := d.client.Do(httpReq)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return driver.HealthyStatus(resp.StatusCode)
	})
}

type webhookEvent struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Resource   struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		CustomID string `json:"custom_id"`
	} `json:"resource"`
}

func (d *Driver) ValidateWebhook(headers map[string]string, body []byte) bool {
	verified := false
	switch d.verifyMode {
	case "cert":
		verified = d.verifyByCertificate(headers, body)
	default:
		verified = d.verifyByAPI(headers, body)
	}
	if !verified {
		return false
	}
	event, err := parseEvent(body)
	if err != nil {
		return false
	}
	return d.guard.Allow(driver.ParseTime(event.CreateTime))
}

type verifySignatureRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifySignatureResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// verifyByAPI is scheme (d): PayPal itself is asked whether the delivery
// is authentic, passing the transmission metadata and the raw event.
func (d *Driver) verifyByAPI(headers map[string]string, body []byte) bool {
	token, err := d.accessToken(context.Background())
	if err != nil {
		return false
	}

	payload := verifySignatureRequest{
		AuthAlgo:         driver.Header(headers, authAlgoHeader),
		CertURL:          driver.Header(headers, certURLHeader),
		TransmissionID:   driver.Header(headers, transmissionIDHeader),
		TransmissionSig:  driver.Header(headers, transmissionSigHeader),
		TransmissionTime: driver.Header(headers, transmissionTimeHeader),
		WebhookID:        d.webhookID,
		WebhookEvent:     json.RawMessage(body),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	httpReq, err := http.NewRequest(http.MethodPost, d.baseURL+"/v1/notifications/verify-webhook-signature", bytes.NewReader(encoded))
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed verifySignatureResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false
	}
	return parsed.VerificationStatus == "SUCCESS"
}

// verifyByCertificate is scheme (e): download the signing certificate and
// check the signature over id|timestamp|webhookID|crc32(payload) locally.
func (d *Driver) verifyByCertificate(headers map[string]string, body []byte) bool {
	certURL := driver.Header(headers, certURLHeader)
	signature := driver.Header(headers, transmissionSigHeader)
	transmissionID := driver.Header(headers, transmissionIDHeader)
	transmissionTime := driver.Header(headers, transmissionTimeHeader)
	if certURL == "" || signature == "" || transmissionID == "" || transmissionTime == "" {
		return false
	}

	cert, err := webhookauth.FetchCertificate(d.client, certURL)
	if err != nil {
		return false
	}
	message := webhookauth.ComposeCertMessage(transmissionID, transmissionTime, d.webhookID, body)
	return webhookauth.VerifyCertSignature(cert, message, signature)
}

func (d *Driver) ExtractWebhookReference(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	if event.Resource.CustomID != "" {
		return event.Resource.CustomID, nil
	}
	return event.Resource.ID, nil
}

func (d *Driver) ExtractWebhookStatus(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	if event.Resource.Status != "" {
		return event.Resource.Status, nil
	}
	return event.EventType, nil
}

// ExtractWebhookChannel always reports empty: PayPal events carry no
// channel concept this core recognizes.
func (d *Driver) ExtractWebhookChannel(payload []byte) (string, error) {
	if _, err := parseEvent(payload); err != nil {
		return "", err
	}
	return "", nil
}

func parseEvent(payload []byte) (*webhookEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("paypal: failed to parse webhook payload: %w", err)
	}
	return &event, nil
}
