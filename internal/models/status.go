package models

// Status is the canonical transaction status vocabulary. Provider-native
// tokens are folded into these four values by the status normalizer; no
// other value crosses a package boundary.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

// IsCanonical reports whether s is one of the four canonical states.
func (s Status) IsCanonical() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusPending, StatusCancelled:
		return true
	}
	return false
}
