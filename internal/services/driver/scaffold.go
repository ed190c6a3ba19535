package driver

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHealthTTL is how long a health probe result is memoized.
const DefaultHealthTTL = 5 * time.Minute

// NewHTTPClient builds the client drivers use for provider calls. Pooling
// parameters follow the values tuned for the charge path.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// GenerateReference produces a collision-resistant merchant reference in
// the {PROVIDER}_{unixTime}_{randomHex} format the provider detector
// understands.
func GenerateReference(provider string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%d_%s", strings.ToUpper(provider), time.Now().Unix(), random)
}

// HealthyStatus classifies a probe response. Anything under 500 counts as
// healthy, including the 400/404 bodies strict providers return for the
// deliberately-invalid probe requests.
func HealthyStatus(code int) bool {
	return code < 500
}

// HealthMemo caches a boolean probe result for a TTL window so repeated
// health checks cost at most one network call per window.
type HealthMemo struct {
	mu      sync.Mutex
	ttl     time.Duration
	healthy bool
	expires time.Time
	now     func() time.Time
}

func NewHealthMemo(ttl time.Duration) *HealthMemo {
	if ttl <= 0 {
		ttl = DefaultHealthTTL
	}
	return &HealthMemo{ttl: ttl, now: time.Now}
}

// Check returns the memoized result when fresh, otherwise runs probe and
// memoizes its answer.
func (m *HealthMemo) Check(probe func() bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.now().Before(m.expires) {
		return m.healthy
	}
	m.healthy = probe()
	m.expires = m.now().Add(m.ttl)
	return m.healthy
}

// Header does a case-insensitive lookup in a delivered header map.
func Header(headers map[string]string, name string) string {
	if value, ok := headers[name]; ok {
		return value
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ParseTime accepts the timestamp formats seen across provider payloads.
func ParseTime(value string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SupportsCurrency is the shared allowlist check backing the contract
// method of the same name.
func SupportsCurrency(currencies []string, currency string) bool {
	for _, c := range currencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}
