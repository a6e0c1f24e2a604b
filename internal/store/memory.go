package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"zoneroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	plans     map[string][]byte
	summaries []model.PlanSummary // in save order
	subs      []model.Subscription
	// Webhooks queue state
	deliveries map[string]*memDelivery
	order      []string // delivery ids in enqueue order
	dedup      map[string]bool
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		plans:      map[string][]byte{},
		deliveries: map[string]*memDelivery{},
		dedup:      map[string]bool{},
		now:        time.Now,
	}
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	Status        model.DeliveryStatus
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
}

func (m *Memory) SavePlan(_ context.Context, sum model.PlanSummary, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[sum.ID]; !ok {
		m.summaries = append(m.summaries, sum)
	}
	m.plans[sum.ID] = append([]byte(nil), doc...)
	return nil
}

func (m *Memory) GetPlan(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

// ListPlans pages through plans newest first. The cursor is the id of the
// last plan of the previous page.
func (m *Memory) ListPlans(_ context.Context, cursor string, limit int) ([]model.PlanSummary, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = pageLimit(limit)
	all := slices.Clone(m.summaries)
	slices.Reverse(all)
	start := 0
	if cursor != "" {
		i := slices.IndexFunc(all, func(s model.PlanSummary) bool { return s.ID == cursor })
		if i < 0 {
			return nil, "", ErrNotFound
		}
		start = i + 1
	}
	end := min(start+limit, len(all))
	items := all[start:end]
	next := ""
	if end < len(all) && len(items) > 0 {
		next = items[len(items)-1].ID
	}
	return items, next, nil
}

func (m *Memory) CreateSubscription(_ context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret, CreatedAt: m.now().UTC()}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(_ context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		if s.Matches(eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(_ context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.subs), nil
}

func (m *Memory) DeleteSubscription(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.subs, func(s model.Subscription) bool { return s.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	m.subs = slices.Delete(m.subs, i, i+1)
	return nil
}

// EnqueueWebhook queues a delivery. A payload already queued for the same
// subscription is ignored and returns an empty id.
func (m *Memory) EnqueueWebhook(_ context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := subscriptionID + "|" + eventType + "|" + url + "|" + dedupKey(payload)
	if m.dedup[key] {
		return "", nil
	}
	m.dedup[key] = true
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload},
		Status:          model.DeliveryPending,
		NextAttemptAt:   m.now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(_ context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if (d.Status == model.DeliveryPending || d.Status == model.DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(_ context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	if success {
		d.Status = model.DeliveryDelivered
		d.LastError = ""
		return nil
	}
	d.Status = model.DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = m.now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(_ context.Context, id string, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = model.DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	return nil
}

func (m *Memory) ListWebhookDeliveries(_ context.Context, status string) ([]model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Delivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if status != "" && string(d.Status) != status {
			continue
		}
		item := model.Delivery{
			ID: d.ID, SubscriptionID: d.SubscriptionID, EventType: d.EventType, URL: d.URL,
			Status: d.Status, Attempts: d.Attempts, LastError: d.LastError, ResponseCode: d.ResponseCode,
		}
		if d.Status == model.DeliveryPending || d.Status == model.DeliveryRetry {
			next := d.NextAttemptAt
			item.NextAttemptAt = &next
		}
		out = append(out, item)
	}
	return out, nil
}

// RetryWebhookDelivery puts a delivery back in the queue, due now.
func (m *Memory) RetryWebhookDelivery(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = model.DeliveryPending
	d.NextAttemptAt = m.now()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
