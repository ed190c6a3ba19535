package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type EnvironmentVariables struct {
	Port                  string
	RedisAddr             string
	DefaultProvider       string
	FallbackProviders     []string
	HealthChecksEnabled   bool
	TransactionLogEnabled bool
	WebhookTolerance      time.Duration
	WebhookWorkers        int
	ProviderHTTPTimeout   time.Duration
	ContextCacheTTL       time.Duration
}

var (
	Env *EnvironmentVariables
)

func Load() {
	godotenv.Load()

	Env = &EnvironmentVariables{
		Port:                  getOptionalEnv("BACKEND_PORT", "8080"),
		RedisAddr:             getRequiredEnv("REDIS_ADDR"),
		DefaultProvider:       getOptionalEnv("PAYMENT_DEFAULT_PROVIDER", "paystack"),
		FallbackProviders:     splitList(getOptionalEnv("PAYMENT_FALLBACK_PROVIDERS", "flutterwave")),
		HealthChecksEnabled:   getBoolEnv("HEALTH_CHECKS_ENABLED", true),
		TransactionLogEnabled: getBoolEnv("TRANSACTION_LOG_ENABLED", true),
		WebhookTolerance:      getDurationEnv("WEBHOOK_TOLERANCE", 5*time.Minute),
		WebhookWorkers:        getIntEnv("WEBHOOK_WORKERS", 4),
		ProviderHTTPTimeout:   getDurationEnv("PROVIDER_HTTP_TIMEOUT", 30*time.Second),
		ContextCacheTTL:       getDurationEnv("CONTEXT_CACHE_TTL", time.Hour),
	}

	log.Info().
		Str("component", "env").
		Str("default_provider", Env.DefaultProvider).
		Strs("fallback_providers", Env.FallbackProviders).
		Bool("health_checks", Env.HealthChecksEnabled).
		Bool("transaction_log", Env.TransactionLogEnabled).
		Msg("environment variables loaded")
}

// Chain returns the configured default provider followed by the fallbacks.
func (e *EnvironmentVariables) Chain() []string {
	chain := make([]string, 0, len(e.FallbackProviders)+1)
	chain = append(chain, e.DefaultProvider)
	for _, p := range e.FallbackProviders {
		if p != e.DefaultProvider {
			chain = append(chain, p)
		}
	}
	return chain
}

// ProviderConfig collects every `{PROVIDER}_*` environment variable into a
// lower-cased config map, e.g. PAYSTACK_SECRET_KEY -> {"secret_key": ...}.
func ProviderConfig(provider string) map[string]string {
	prefix := strings.ToUpper(provider) + "_"
	config := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		config[strings.ToLower(strings.TrimPrefix(key, prefix))] = value
	}
	return config
}

func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatal().Str("component", "env").Msgf("required environment variable %s is not set", key)
	}
	return value
}

func getOptionalEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Fatal().Str("component", "env").Msgf("environment variable %s is not a boolean: %q", key, value)
	}
	return parsed
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Fatal().Str("component", "env").Msgf("environment variable %s is not an integer: %q", key, value)
	}
	return parsed
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Fatal().Str("component", "env").Msgf("environment variable %s is not a duration: %q", key, value)
	}
	return parsed
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
