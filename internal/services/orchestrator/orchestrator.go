// Package orchestrator owns the charge fallback loop, the three-tier
// verification-context resolution and the per-provider driver cache.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/paygate-ng/paygate/internal/models"
	"github.com/paygate-ng/paygate/internal/services/cache"
	"github.com/paygate-ng/paygate/internal/services/detect"
	"github.com/paygate-ng/paygate/internal/services/driver"
	"github.com/paygate-ng/paygate/internal/services/registry"
	"github.com/paygate-ng/paygate/internal/services/status"
	"github.com/paygate-ng/paygate/internal/services/store"
)

const contextKeyPrefix = "paygate:vctx:"

type Config struct {
	Chain                 []string
	HealthChecksEnabled   bool
	TransactionLogEnabled bool
	ContextTTL            time.Duration
}

type Orchestrator struct {
	registry   *registry.Registry
	normalizer *status.Normalizer
	detector   *detect.Detector
	contexts   cache.KV
	store      store.TransactionStore
	cfg        Config

	driverMu sync.Mutex
	drivers  map[string]driver.Driver
	breakers map[string]*gobreaker.CircuitBreaker
}

func New(
	reg *registry.Registry,
	normalizer *status.Normalizer,
	detector *detect.Detector,
	contexts cache.KV,
	txStore store.TransactionStore,
	cfg Config,
) *Orchestrator {
	if cfg.ContextTTL <= 0 {
		cfg.ContextTTL = time.Hour
	}
	return &Orchestrator{
		registry:   reg,
		normalizer: normalizer,
		detector:   detector,
		contexts:   contexts,
		store:      txStore,
		cfg:        cfg,
		drivers:    make(map[string]driver.Driver),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Driver returns the singleton driver for a provider, constructing it on
// first access. The mutex doubles as the construct-once guard: concurrent
// first accesses never build two instances.
func (o *Orchestrator) Driver(provider string) (driver.Driver, error) {
	o.driverMu.Lock()
	defer o.driverMu.Unlock()
	if drv, ok := o.drivers[provider]; ok {
		return drv, nil
	}
	drv, err := o.registry.Resolve(provider)
	if err != nil {
		return nil, err
	}
	o.drivers[provider] = drv
	return drv, nil
}

func (o *Orchestrator) breaker(provider string) *gobreaker.CircuitBreaker {
	o.driverMu.Lock()
	defer o.driverMu.Unlock()
	if cb, ok := o.breakers[provider]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	o.breakers[provider] = cb
	return cb
}

// Charge walks the provider chain in order and returns the first success.
// Candidates are never raced: ordering is a user-visible preference and
// error attribution must stay ordered.
func (o *Orchestrator) Charge(ctx context.Context, req *models.ChargeRequest, providers ...string) (*models.ChargeResponse, error) {
	chain := providers
	if len(chain) == 0 {
		chain = o.cfg.Chain
	}

	var attempts []Attempt
	for _, name := range chain {
		drv, err := o.Driver(name)
		if err != nil {
			attempts = append(attempts, Attempt{Provider: name, Err: err})
			continue
		}
		if o.cfg.HealthChecksEnabled && !drv.HealthCheck(ctx) {
			attempts = append(attempts, Attempt{Provider: name, Err: fmt.Errorf("provider reported unhealthy, skipped")})
			continue
		}
		if !drv.SupportsCurrency(req.Currency) {
			attempts = append(attempts, Attempt{Provider: name, Err: fmt.Errorf("currency %s not supported, skipped", req.Currency)})
			continue
		}

		result, err := o.breaker(name).Execute(func() (interface{}, error) {
			return drv.Charge(ctx, req)
		})
		if err != nil {
			log.Warn().Str("component", "orchestrator").Str("provider", name).Err(err).Msg("charge attempt failed")
			attempts = append(attempts, Attempt{Provider: name, Err: err})
			continue
		}

		resp := result.(*models.ChargeResponse)
		o.recordCharge(ctx, req, resp)
		return resp, nil
	}
	return nil, &AggregateError{Operation: "charge", Attempts: attempts}
}

// recordCharge persists the transaction and caches the verification
// context. Both writes are best-effort: a store or cache outage must not
// fail a charge the provider already accepted.
func (o *Orchestrator) recordCharge(ctx context.Context, req *models.ChargeRequest, resp *models.ChargeResponse) {
	if o.cfg.TransactionLogEnabled && o.store != nil {
		tx := &models.Transaction{
			Reference:  resp.Reference,
			Provider:   resp.Provider,
			ProviderID: resp.AccessCode,
			Status:     models.StatusPending,
			Amount:     req.Amount,
			Currency:   req.Currency,
			Metadata:   req.Metadata,
			Customer:   req.Customer,
		}
		if err := o.store.Create(ctx, tx); err != nil {
			log.Warn().Str("component", "orchestrator").Str("reference", resp.Reference).Err(err).Msg("failed to persist transaction")
		}
	}

	vctx := models.VerificationContext{Provider: resp.Provider, ProviderID: resp.AccessCode}
	data, err := json.Marshal(vctx)
	if err == nil {
		err = o.contexts.Put(ctx, contextKeyPrefix+resp.Reference, string(data), o.cfg.ContextTTL)
	}
	if err != nil {
		log.Warn().Str("component", "orchestrator").Str("reference", resp.Reference).Err(err).Msg("failed to cache verification context")
	}
}

// Verify re-checks a reference. With an explicit provider only that
// provider is queried; otherwise the context is resolved cache-first,
// store second, reference-prefix heuristic last, and remaining enabled
// providers are swept before an aggregate failure is declared.
func (o *Orchestrator) Verify(ctx context.Context, reference, provider string) (*models.VerificationResponse, error) {
	if provider != "" {
		resp, err := o.verifyWith(ctx, provider, reference, "")
		if err != nil {
			return nil, &AggregateError{Operation: "verify", Attempts: []Attempt{{Provider: provider, Err: err}}}
		}
		return resp, nil
	}

	vctx := o.resolveContext(ctx, reference)
	candidates := o.enabledProviders()
	if vctx.Provider != "" {
		ordered := []string{vctx.Provider}
		for _, name := range candidates {
			if name != vctx.Provider {
				ordered = append(ordered, name)
			}
		}
		candidates = ordered
	}

	var attempts []Attempt
	for _, name := range candidates {
		providerID := ""
		if name == vctx.Provider {
			providerID = vctx.ProviderID
		}
		resp, err := o.verifyWith(ctx, name, reference, providerID)
		if err != nil {
			log.Debug().Str("component", "orchestrator").Str("provider", name).Str("reference", reference).Err(err).Msg("verify attempt failed")
			attempts = append(attempts, Attempt{Provider: name, Err: err})
			continue
		}
		return resp, nil
	}
	return nil, &AggregateError{Operation: "verify", Attempts: attempts}
}

func (o *Orchestrator) verifyWith(ctx context.Context, provider, reference, providerID string) (*models.VerificationResponse, error) {
	drv, err := o.Driver(provider)
	if err != nil {
		return nil, err
	}
	id := drv.ResolveVerificationID(reference, providerID)
	resp, err := drv.Verify(ctx, id)
	if err != nil {
		return nil, err
	}
	resp.Status = o.normalizer.Normalize(provider, string(resp.Status))
	o.recordVerification(ctx, resp)
	return resp, nil
}

func (o *Orchestrator) recordVerification(ctx context.Context, resp *models.VerificationResponse) {
	if !o.cfg.TransactionLogEnabled || o.store == nil {
		return
	}
	fields := store.Update{Status: &resp.Status}
	if resp.Channel != "" {
		fields.Channel = &resp.Channel
	}
	if resp.PaidAt != nil {
		fields.PaidAt = resp.PaidAt
	}
	if err := o.store.Update(ctx, resp.Reference, fields); err != nil {
		log.Warn().Str("component", "orchestrator").Str("reference", resp.Reference).Err(err).Msg("failed to persist verification update")
	}
}

// resolveContext walks the three tiers. The cache always outranks the
// store: it reflects the most recent charge routing.
func (o *Orchestrator) resolveContext(ctx context.Context, reference string) models.VerificationContext {
	if data, err := o.contexts.Get(ctx, contextKeyPrefix+reference); err == nil {
		var vctx models.VerificationContext
		if err := json.Unmarshal([]byte(data), &vctx); err == nil && vctx.Provider != "" {
			return vctx
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Str("component", "orchestrator").Str("reference", reference).Err(err).Msg("context cache lookup failed")
	}

	if o.cfg.TransactionLogEnabled && o.store != nil {
		tx, err := o.store.FindByReference(ctx, reference)
		if err == nil {
			return models.VerificationContext{Provider: tx.Provider, ProviderID: tx.ProviderID}
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Str("component", "orchestrator").Str("reference", reference).Err(err).Msg("transaction store lookup failed")
		}
	}

	if provider := o.detector.DetectFromReference(reference); provider != "" {
		return models.VerificationContext{Provider: provider}
	}
	return models.VerificationContext{}
}

// enabledProviders returns the configured chain followed by any other
// registered providers, in stable order.
func (o *Orchestrator) enabledProviders() []string {
	seen := make(map[string]bool, len(o.cfg.Chain))
	out := make([]string, 0, len(o.cfg.Chain))
	for _, name := range o.cfg.Chain {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, name := range o.registry.Providers() {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// ProviderHealth is one provider's entry in the aggregated health report.
type ProviderHealth struct {
	Healthy    bool     `json:"healthy"`
	Currencies []string `json:"currencies"`
}

// HealthReport aggregates every enabled provider's cached health probe.
type HealthReport struct {
	Status    string                    `json:"status"`
	Providers map[string]ProviderHealth `json:"providers"`
}

func (o *Orchestrator) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    "degraded",
		Providers: make(map[string]ProviderHealth),
	}
	for _, name := range o.enabledProviders() {
		drv, err := o.Driver(name)
		if err != nil {
			report.Providers[name] = ProviderHealth{Healthy: false}
			continue
		}
		health := ProviderHealth{
			Healthy:    drv.HealthCheck(ctx),
			Currencies: drv.Currencies(),
		}
		report.Providers[name] = health
		if health.Healthy {
			report.Status = "ok"
		}
	}
	return report
}
