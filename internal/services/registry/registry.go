// Package registry resolves provider names to constructible drivers.
// Resolution is convention-driven so new providers plug in through
// registration alone, with no orchestrator changes.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/paygate-ng/paygate/internal/services/driver"
)

// Constructor builds a driver from its validated configuration map.
type Constructor func(config driver.Config) (driver.Driver, error)

// NotFoundError reports an unknown or disabled provider name.
type NotFoundError struct {
	Provider string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: no driver registered for provider %q", e.Provider)
}

// Registry holds driver registrations. Resolution priority:
//  1. a constructor registered explicitly for the provider name
//  2. the provider's configured implementation name
//  3. the naming convention {PascalCase(provider)}Driver
//  4. literal fallback: the configured string treated as an
//     already-resolved provider name
type Registry struct {
	mu              sync.RWMutex
	constructors    map[string]Constructor
	implementations map[string]Constructor
	configured      map[string]string
	configs         map[string]driver.Config
	order           []string
}

func New() *Registry {
	return &Registry{
		constructors:    make(map[string]Constructor),
		implementations: make(map[string]Constructor),
		configured:      make(map[string]string),
		configs:         make(map[string]driver.Config),
	}
}

// Register binds a constructor directly to a provider name (tier 1).
func (r *Registry) Register(provider string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.constructors[provider]; !seen {
		r.order = append(r.order, provider)
	}
	r.constructors[provider] = ctor
}

// RegisterImplementation publishes a named implementation for tiers 2 and 3.
func (r *Registry) RegisterImplementation(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.implementations[name] = ctor
}

// Configure points a provider at a named implementation (tier 2), or at
// another provider name for the literal fallback (tier 4).
func (r *Registry) Configure(provider, implementation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configured[provider] = implementation
}

// SetConfig stores the configuration map passed to the provider's
// constructor at resolution time.
func (r *Registry) SetConfig(provider string, config driver.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[provider] = config
}

// Providers lists explicitly registered providers in registration order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve constructs a driver for the provider through the four-tier
// priority. Construction itself may fail fast with a ConfigError.
func (r *Registry) Resolve(provider string) (driver.Driver, error) {
	r.mu.RLock()
	ctor := r.lookup(provider)
	config := r.configs[provider]
	r.mu.RUnlock()

	if ctor == nil {
		return nil, &NotFoundError{Provider: provider}
	}
	if config == nil {
		config = driver.Config{}
	}
	return ctor(config)
}

func (r *Registry) lookup(provider string) Constructor {
	if ctor, ok := r.constructors[provider]; ok {
		return ctor
	}
	if implName, ok := r.configured[provider]; ok && implName != "" {
		if ctor, ok := r.implementations[implName]; ok {
			return ctor
		}
	}
	if ctor, ok := r.implementations[ConventionName(provider)]; ok {
		return ctor
	}
	// Literal fallback: the configured value may itself be a registered
	// provider name.
	if implName, ok := r.configured[provider]; ok && implName != "" {
		if ctor, ok := r.constructors[implName]; ok {
			return ctor
		}
	}
	return nil
}

// brandCasing overrides pascal-casing for providers whose canonical form
// is not a simple capitalize.
var brandCasing = map[string]string{
	"paypal":   "PayPal",
	"paystack": "Paystack",
	"payu":     "PayU",
	"gtpay":    "GTPay",
}

// ConventionName derives the {PascalCase(provider)}Driver implementation
// name, splitting on underscores and hyphens.
func ConventionName(provider string) string {
	key := strings.ToLower(provider)
	if cased, ok := brandCasing[key]; ok {
		return cased + "Driver"
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	b.WriteString("Driver")
	return b.String()
}
