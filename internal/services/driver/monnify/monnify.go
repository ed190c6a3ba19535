// Package monnify implements the driver contract for Monnify. Webhooks use
// scheme (b): HMAC-SHA256 over the raw body, base64-compared against the
// monnify-signature header. API calls authenticate with a short-lived
// bearer token obtained from the basic-auth login endpoint and memoized
// until shortly before expiry.
package monnify

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
	"github.com/paygate-ng/paygate/internal/services/channel"
	"github.com/paygate-ng/paygate/internal/services/driver"
	"github.com/paygate-ng/paygate/internal/services/webhookauth"
)

const (
	Name           = "monnify"
	defaultBaseURL = "https://api.monnify.com"

	signatureHeader = "monnify-signature"

	// Tokens are refreshed a minute before the provider expires them.
	tokenExpirySlack = time.Minute
)

var defaultCurrencies = []string{"NGN"}

type Driver struct {
	apiKey       string
	secretKey    string
	contractCode string
	baseURL      string
	client       *http.Client
	currencies   []string
	channels     *channel.Mapper
	health       *driver.HealthMemo
	guard        *webhookauth.ReplayGuard

	tokenMu      sync.Mutex
	token        string
	tokenExpires time.Time
}

func New(config driver.Config) (driver.Driver, error) {
	if err := config.Require(Name, "api_key", "secret_key", "contract_code"); err != nil {
		return nil, err
	}
	timeout, _ := time.ParseDuration(config.Get("http_timeout", "30s"))
	tolerance, _ := time.ParseDuration(config.Get("webhook_tolerance", ""))

	currencies := defaultCurrencies
	if list := config.Get("currencies", ""); list != "" {
		currencies = strings.Split(list, ",")
	}
	return &Driver{
		apiKey:       config["api_key"],
		secretKey:    config["secret_key"],
		contractCode: config["contract_code"],
		baseURL:      strings.TrimSuffix(config.Get("base_url", defaultBaseURL), "/"),
		client:       driver.NewHTTPClient(timeout),
		currencies:   currencies,
		channels:     channel.NewMapper(),
		health:       driver.NewHealthMemo(driver.DefaultHealthTTL),
		guard:        webhookauth.NewReplayGuard(tolerance),
	}, nil
}

func (d *Driver) Name() string { return Name }

func (d *Driver) Currencies() []string { return d.currencies }

func (d *Driver) SupportsCurrency(currency string) bool {
	return driver.SupportsCurrency(d.currencies, currency)
}

// ResolveVerificationID prefers the provider-issued transactionReference;
// the merchant paymentReference only works through the query endpoint.
func (d *Driver) ResolveVerificationID(reference, storedProviderID string) string {
	if storedProviderID != "" {
		return storedProviderID
	}
	return reference
}

type loginResponse struct {
	RequestSuccessful bool `json:"requestSuccessful"`
	ResponseBody      struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	} `json:"responseBody"`
}

func (d *Driver) accessToken(ctx context.Context) (string, error) {
	d.tokenMu.Lock()
	defer d.tokenMu.Unlock()
	if d.token != "" && time.Now().Before(d.tokenExpires) {
		return d.token, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/v1/auth/login", nil)
	if err != nil {
		return "", fmt.Errorf("monnify: failed to build login request: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(d.apiKey + ":" + d.secretKey))
	httpReq.Header.Set("Authorization", "Basic "+credentials)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("monnify: login request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed loginResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || !parsed.RequestSuccessful || parsed.ResponseBody.AccessToken == "" {
		return "", fmt.Errorf("monnify: login returned %d", resp.StatusCode)
	}

	d.token = parsed.ResponseBody.AccessToken
	d.tokenExpires = time.Now().Add(time.Duration(parsed.ResponseBody.ExpiresIn)*time.Second - tokenExpirySlack)
	return d.token, nil
}

type initTransactionRequest struct {
	Amount             float64  `json:"amount"`
	CustomerName       string   `json:"customerName"`
	CustomerEmail      string   `json:"customerEmail"`
	PaymentReference   string   `json:"paymentReference"`
	PaymentDescription string   `json:"paymentDescription"`
	CurrencyCode       string   `json:"currencyCode"`
	ContractCode       string   `json:"contractCode"`
	RedirectURL        string   `json:"redirectUrl,omitempty"`
	PaymentMethods     []string `json:"paymentMethods,omitempty"`
}

type initTransactionResponse struct {
	RequestSuccessful bool   `json:"requestSuccessful"`
	ResponseMessage   string `json:"responseMessage"`
	ResponseBody      struct {
		TransactionReference string `json:"transactionReference"`
		PaymentReference     string `json:"paymentReference"`
		CheckoutURL          string `json:"checkoutUrl"`
	} `json:"responseBody"`
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

	amount, _ := req.Amount.Float64()
	payload := initTransactionRequest{
		Amount:             amount,
		CustomerEmail:      req.Email,
		PaymentReference:   reference,
		PaymentDescription: "Charge " + reference,
		CurrencyCode:       req.Currency,
		ContractCode:       d.contractCode,
		RedirectURL:        req.CallbackURL,
	}
	if req.Customer != nil {
		payload.CustomerName = strings.TrimSpace(req.Customer.FirstName + " " + req.Customer.LastName)
	}
	if payload.CustomerName == "" {
		payload.CustomerName = req.Email
	}
	if mapped, omit := d.channels.Map(Name, req.Channels); !omit {
		payload.PaymentMethods = mapped
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "failed to marshal charge request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/v1/merchant/transactions/init-transaction", bytes.NewReader(body))
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &driver.ChargeError{Provider: Name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed initTransactionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || resp.StatusCode >= 300 || !parsed.RequestSuccessful {
		return nil, &driver.ChargeError{
			Provider: Name,
			Message:  fmt.Sprintf("init-transaction returned %d: %s", resp.StatusCode, parsed.ResponseMessage),
		}
	}

	return &models.ChargeResponse{
		Reference:        parsed.ResponseBody.PaymentReference,
		AuthorizationURL: parsed.ResponseBody.CheckoutURL,
		AccessCode:       parsed.ResponseBody.TransactionReference,
		Status:           "pending",
		Metadata:         req.Metadata,
		Provider:         Name,
	}, nil
}

type transactionStatusResponse struct {
	RequestSuccessful bool   `json:"requestSuccessful"`
	ResponseMessage   string `json:"responseMessage"`
	ResponseBody      struct {
		PaymentReference string  `json:"paymentReference"`
		PaymentStatus    string  `json:"paymentStatus"`
		AmountPaid       float64 `json:"amountPaid"`
		CurrencyCode     string  `json:"currencyCode"`
		PaymentMethod    string  `json:"paymentMethod"`
		CompletedOn      string  `json:"completedOn"`
		CustomerDTO      struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"customerDTO"`
	} `json:"responseBody"`
}

func (d *Driver) Verify(ctx context.Context, id string) (*models.VerificationResponse, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return nil, &driver.VerificationError{Provider: Name, Message: "authentication failed", Err: err}
	}

	// Provider transactionReferences resolve on the v2 endpoint; merchant
	// references fall back to the query endpoint.
	endpoint := d.baseURL + "/api/v2/transactions/" + url.PathEscape(id)
	if strings.HasPrefix(strings.ToUpper(id), strings.ToUpper(Name)) || strings.Count(id, "_") >= 2 {
		endpoint = d.baseURL + "/api/v2/merchant/transactions/query?paymentReference=" + url.QueryEscape(id)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
	var parsed transactionStatusResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || resp.StatusCode >= 300 || !parsed.RequestSuccessful {
		return nil, &driver.VerificationError{
			Provider: Name,
			Message:  fmt.Sprintf("transaction query returned %d: %s", resp.StatusCode, parsed.ResponseMessage),
		}
	}

	result := &models.VerificationResponse{
		Reference: parsed.ResponseBody.PaymentReference,
		Status:    models.Status(parsed.ResponseBody.PaymentStatus),
		Amount:    decimal.NewFromFloat(parsed.ResponseBody.AmountPaid),
		Currency:  parsed.ResponseBody.CurrencyCode,
		Channel:   parsed.ResponseBody.PaymentMethod,
		Provider:  Name,
	}
	if paidAt := driver.ParseTime(parsed.ResponseBody.CompletedOn); !paidAt.IsZero() {
		result.PaidAt = &paidAt
	}
	if parsed.ResponseBody.CustomerDTO.Email != "" {
		result.Customer = &models.Customer{Email: parsed.ResponseBody.CustomerDTO.Email}
	}
	return result, nil
}

func (d *Driver) HealthCheck(ctx context.Context) bool {
	return d.health.Check(func() bool {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/v1/merchant/transactions/query?paymentReference=health_probe_invalid", nil)
		if err != nil {
			return false
		}
		resp, err := d.client.Do(httpReq)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return driver.HealthyStatus(resp.StatusCode)
	})
}

type webhookEvent struct {
	EventType string `json:"eventType"`
	EventData struct {
		PaymentReference     string `json:"paymentReference"`
		TransactionReference string `json:"transactionReference"`
		PaymentStatus        string `json:"paymentStatus"`
		PaymentMethod        string `json:"paymentMethod"`
		PaidOn               string `json:"paidOn"`
	} `json:"eventData"`
}

func (d *Driver) ValidateWebhook(headers map[string]string, body []byte) bool {
	signature := driver.Header(headers, signatureHeader)
	if signature == "" || !webhookauth.VerifyHMACSHA256Base64(d.secretKey, body, signature) {
		return false
	}
	event, err := parseEvent(body)
	if err != nil {
		return false
	}
	return d.guard.Allow(driver.ParseTime(event.EventData.PaidOn))
}

func (d *Driver) ExtractWebhookReference(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	return event.EventData.PaymentReference, nil
}

func (d *Driver) ExtractWebhookStatus(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	return event.EventData.PaymentStatus, nil
}

func (d *Driver) ExtractWebhookChannel(payload []byte) (string, error) {
	event, err := parseEvent(payload)
	if err != nil {
		return "", err
	}
	return event.EventData.PaymentMethod, nil
}

func parseEvent(payload []byte) (*webhookEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("monnify: failed to parse webhook payload: %w", err)
	}
	return &event, nil
}
