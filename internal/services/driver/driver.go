// Package driver defines the capability contract every payment provider
// implementation satisfies, plus the scaffolding they share: validated
// config maps, HTTP client construction, reference generation and the
// TTL-cached health probe.
package driver

import (
	"context"

	"github.com/paygate-ng/paygate/internal/models"
)

// Driver is implemented once per provider. Implementations are stateless
// beyond their HTTP client and memoized credentials; the orchestrator
// caches exactly one instance per provider name.
type Driver interface {
	Name() string

	// Charge creates a charge with the provider. A missing request
	// reference is filled with a generated one before the provider call.
	Charge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResponse, error)

	// Verify re-checks a transaction using the identifier this provider's
	// verification endpoint expects (see ResolveVerificationID).
	Verify(ctx context.Context, id string) (*models.VerificationResponse, error)

	// ValidateWebhook authenticates an inbound webhook delivery: signature
	// scheme first, replay guard second. Extraction methods must never be
	// called on a payload that failed validation.
	ValidateWebhook(headers map[string]string, body []byte) bool

	// HealthCheck reports provider reachability through the cached probe;
	// at most one real network call per TTL window.
	HealthCheck(ctx context.Context) bool

	SupportsCurrency(currency string) bool
	Currencies() []string

	// ResolveVerificationID picks the value Verify actually needs: the
	// merchant reference for providers that verify by reference, the
	// stored provider-issued id for those that do not.
	ResolveVerificationID(reference, storedProviderID string) string

	ExtractWebhookReference(payload []byte) (string, error)
	ExtractWebhookStatus(payload []byte) (string, error)
	ExtractWebhookChannel(payload []byte) (string, error)
}
