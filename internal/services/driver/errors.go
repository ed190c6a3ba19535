package driver

import "fmt"

// ConfigError reports a missing or invalid driver configuration field.
// It is raised synchronously at construction, before any network activity,
// and is never retried.
type ConfigError struct {
	Provider string
	Field    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing required configuration field %q", e.Provider, e.Field)
}

// ChargeError is a single provider's charge failure. The orchestrator
// catches it, records it against the provider, and moves on to the next
// candidate in the chain.
type ChargeError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ChargeError) Error() string {
	return fmt.Sprintf("%s: charge failed: %s", e.Provider, e.Message)
}

func (e *ChargeError) Unwrap() error { return e.Err }

// VerificationError is a single provider's verify failure, aggregated the
// same way as ChargeError.
type VerificationError struct {
	Provider string
	Message  string
	Err      error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: verification failed: %s", e.Provider, e.Message)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// WebhookAuthError marks a webhook delivery whose signature or timestamp
// was rejected; the request must not be enqueued.
type WebhookAuthError struct {
	Provider string
}

func (e *WebhookAuthError) Error() string {
	return fmt.Sprintf("%s: webhook signature rejected", e.Provider)
}
