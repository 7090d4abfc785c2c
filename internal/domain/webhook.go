package domain

import (
	"encoding/json"
	"time"
)

// WebhookEventRecord marks a provider event id as processed. The row is
// created with a primary-key constraint inside the processing transaction;
// a second insert fails loudly instead of being checked-then-inserted.
type WebhookEventRecord struct {
	EventID     string
	Type        string
	Payload     json.RawMessage
	ProcessedAt time.Time
}
