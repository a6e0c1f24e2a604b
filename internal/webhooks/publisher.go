package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"zoneroute/internal/store"
)

type Publisher struct {
	Store store.Store
	now   func() time.Time
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s, now: time.Now}
}

// Emit queues an event for every subscription that wants eventType and
// returns how many deliveries were queued.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) (int, error) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil || len(subs) == 0 {
		return 0, err
	}
	body, err := json.Marshal(map[string]any{
		"id":   "evt_" + uuid.NewString(),
		"type": eventType,
		"ts":   p.now().UTC().Format(time.RFC3339),
		"data": data,
	})
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, s := range subs {
		id, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
		if err != nil {
			log.Warn().Err(err).Str("subscription", s.ID).Str("event", eventType).Msg("webhooks: enqueue")
			continue
		}
		if id != "" {
			queued++
		}
	}
	return queued, nil
}
