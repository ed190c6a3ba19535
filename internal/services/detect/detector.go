package detect

import (
	"strings"
	"sync"
)

// Delimiter separates the provider prefix from the rest of a generated
// reference ({PROVIDER}_{unixTime}_{randomHex}).
const Delimiter = "_"

// Detector infers a provider from a reference's prefix. Matching requires
// the prefix to be terminated by the delimiter, so a reference starting
// "MONACO_" can never match a provider registered under "MON".
type Detector struct {
	mu       sync.RWMutex
	prefixes map[string]string
}

func NewDetector() *Detector {
	return &Detector{prefixes: make(map[string]string)}
}

// RegisterProvider maps the default prefix (the upper-cased provider name)
// to the provider.
func (d *Detector) RegisterProvider(provider string) {
	d.Register(strings.ToUpper(provider), provider)
}

// Register maps an explicit prefix to a provider, overriding any default.
func (d *Detector) Register(prefix, provider string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prefixes[strings.ToUpper(prefix)] = provider
}

// DetectFromReference returns the provider owning the reference's prefix,
// or "" when the prefix is unknown or not delimiter-terminated.
func (d *Detector) DetectFromReference(reference string) string {
	prefix, _, ok := strings.Cut(reference, Delimiter)
	if !ok || prefix == "" {
		return ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.prefixes[strings.ToUpper(prefix)]
}
