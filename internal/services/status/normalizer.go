package status

import (
	"strings"

	"github.com/paygate-ng/paygate/internal/models"
)

// Normalizer folds provider-native status tokens into the canonical
// four-state vocabulary. Lookups are case-insensitive; per-provider
// overrides win over the default table; unknown tokens are lowercased and
// passed through so an unseen provider status never breaks the pipeline.
type Normalizer struct {
	defaults  map[string]models.Status
	overrides map[string]map[string]models.Status
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		defaults: map[string]models.Status{
			"success":        models.StatusSuccess,
			"successful":     models.StatusSuccess,
			"succeeded":      models.StatusSuccess,
			"paid":           models.StatusSuccess,
			"completed":      models.StatusSuccess,
			"approved":       models.StatusSuccess,
			"charge.success": models.StatusSuccess,

			"failed":        models.StatusFailed,
			"failure":       models.StatusFailed,
			"declined":      models.StatusFailed,
			"error":         models.StatusFailed,
			"denied":        models.StatusFailed,
			"charge.failed": models.StatusFailed,

			"pending":               models.StatusPending,
			"processing":            models.StatusPending,
			"ongoing":               models.StatusPending,
			"created":               models.StatusPending,
			"initiated":             models.StatusPending,
			"payer_action_required": models.StatusPending,

			"cancelled": models.StatusCancelled,
			"canceled":  models.StatusCancelled,
			"abandoned": models.StatusCancelled,
			"reversed":  models.StatusCancelled,
			"voided":    models.StatusCancelled,
			"expired":   models.StatusCancelled,
		},
		overrides: map[string]map[string]models.Status{
			"monnify": {
				"overpaid":       models.StatusSuccess,
				"partially_paid": models.StatusPending,
			},
			"flutterwave": {
				"successful-charge": models.StatusSuccess,
			},
		},
	}
}

// Override registers a provider-specific mapping consulted before the
// default table.
func (n *Normalizer) Override(provider, token string, status models.Status) {
	provider = strings.ToLower(provider)
	if n.overrides[provider] == nil {
		n.overrides[provider] = make(map[string]models.Status)
	}
	n.overrides[provider][strings.ToLower(token)] = status
}

// Normalize is total: it never fails, and a value that is already canonical
// comes back unchanged.
func (n *Normalizer) Normalize(provider, token string) models.Status {
	key := strings.ToLower(strings.TrimSpace(token))
	if byProvider, ok := n.overrides[strings.ToLower(provider)]; ok {
		if status, ok := byProvider[key]; ok {
			return status
		}
	}
	if status, ok := n.defaults[key]; ok {
		return status
	}
	return models.Status(key)
}
