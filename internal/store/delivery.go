package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// WebhookDelivery is a due delivery handed to the webhook worker.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Attempts       int
}

// dedupKey identifies a payload: its "id" field when present, otherwise a
// short content hash.
func dedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
