package orchestrator

import (
	"fmt"
	"strings"
)

// Attempt records one provider's failure during a fallback sweep, in the
// order the provider was tried.
type Attempt struct {
	Provider string
	Err      error
}

// AggregateError is raised only after every candidate provider failed. A
// single provider's failure is never surfaced on its own.
type AggregateError struct {
	Operation string
	Attempts  []Attempt
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return fmt.Sprintf("all providers failed for %s: %s", e.Operation, strings.Join(parts, "; "))
}

// Messages returns per-provider failure messages keyed by provider name.
func (e *AggregateError) Messages() map[string]string {
	out := make(map[string]string, len(e.Attempts))
	for _, a := range e.Attempts {
		out[a.Provider] = a.Err.Error()
	}
	return out
}
