package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"zoneroute/internal/model"
	"zoneroute/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []string
}

type markRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, next *time.Time, lastError string, code int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: code, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, next, lastError, code)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, code int) error {
	r.mu.Lock()
	r.fails = append(r.fails, id)
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, code)
}

func newWorker(s store.Store, maxAttempts int, client *http.Client) *Worker {
	w := NewWorker(s, maxAttempts)
	w.HTTP = client
	w.Limiter = rate.NewLimiter(rate.Inf, 1)
	return w
}

func TestWorkerDeliversSignedPayload(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx := context.Background()
	rs := &recordStore{Memory: store.NewMemory()}
	id, err := rs.EnqueueWebhook(ctx, "s1", "plan.completed", srv.URL, "secret", []byte(`{"id":"evt1"}`))
	require.NoError(t, err)

	assert.Equal(t, 1, newWorker(rs, 3, srv.Client()).processOnce(ctx))
	assert.Equal(t, "plan.completed", gotType)
	assert.True(t, VerifyHMAC("secret", gotBody, gotSig))
	require.Len(t, rs.marks, 1)
	assert.Equal(t, markRec{ID: id, Success: true, Code: http.StatusNoContent}, rs.marks[0])

	delivered, err := rs.ListWebhookDeliveries(ctx, string(model.DeliveryDelivered))
	require.NoError(t, err)
	assert.Len(t, delivered, 1)
}

func TestWorkerRetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx := context.Background()
	rs := &recordStore{Memory: store.NewMemory()}
	id, err := rs.EnqueueWebhook(ctx, "s1", "plan.completed", srv.URL, "", []byte(`{"id":"evt2"}`))
	require.NoError(t, err)
	w := newWorker(rs, 2, srv.Client())

	w.processOnce(ctx)
	require.Len(t, rs.marks, 1)
	assert.False(t, rs.marks[0].Success)
	assert.Equal(t, "status 502", rs.marks[0].LastErr)
	assert.Empty(t, rs.fails)

	// Backoff pushed the next attempt into the future.
	assert.Equal(t, 0, w.processOnce(ctx))

	require.NoError(t, rs.RetryWebhookDelivery(ctx, id))
	w.processOnce(ctx)
	assert.Equal(t, []string{id}, rs.fails)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(-1))
	assert.Equal(t, 8*time.Second, nextBackoff(3))
	assert.Equal(t, time.Hour, nextBackoff(40))
}

func TestSignVerify(t *testing.T) {
	sig := SignHMAC("k", []byte("body"))
	assert.Len(t, sig, 64)
	assert.True(t, VerifyHMAC("k", []byte("body"), sig))
	assert.False(t, VerifyHMAC("other", []byte("body"), sig))
	assert.False(t, VerifyHMAC("k", []byte("body"), "zz"))
}

func TestPublisherEmitQueuesMatchingSubscriptions(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_, err := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a", Events: []string{"plan.completed"}, Secret: "s"})
	require.NoError(t, err)
	_, err = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://b", Events: []string{"plan.failed"}})
	require.NoError(t, err)

	p := NewPublisher(m)
	n, err := p.Emit(ctx, "plan.completed", map[string]string{"plan": "p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "http://a", due[0].URL)
	assert.Equal(t, "s", due[0].Secret)
	assert.Contains(t, string(due[0].Payload), `"type":"plan.completed"`)
}
