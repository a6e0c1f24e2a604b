package store

import (
	"context"
	"errors"
	"time"

	"zoneroute/internal/model"
)

// Store is the persistence interface used by the API server. Plans are kept
// as opaque JSON documents next to their summary.
type Store interface {
	// Plans
	SavePlan(ctx context.Context, sum model.PlanSummary, doc []byte) error
	GetPlan(ctx context.Context, id string) ([]byte, error)
	ListPlans(ctx context.Context, cursor string, limit int) ([]model.PlanSummary, string, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error
	ListWebhookDeliveries(ctx context.Context, status string) ([]model.Delivery, error)
	RetryWebhookDelivery(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// pageLimit clamps a client supplied page size.
func pageLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
