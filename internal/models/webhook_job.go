package models

import "time"

// WebhookJob is the unit of work queued by the webhook ingress handler
// after signature validation and consumed by the webhook processor.
// Payload is the raw request body exactly as the provider delivered it.
type WebhookJob struct {
	Provider   string    `json:"provider"`
	Payload    []byte    `json:"payload"`
	ReceivedAt time.Time `json:"receivedAt"`
	Attempts   int       `json:"attempts"`
}

func NewWebhookJob(provider string, payload []byte) *WebhookJob {
	return &WebhookJob{
		Provider:   provider,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
}
