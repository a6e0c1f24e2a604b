package api

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneroute/internal/model"
)

func receive(t *testing.T, ch chan model.PlanEvent) model.PlanEvent {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return model.PlanEvent{}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(planTopic("p1"))
	other := b.Subscribe(planTopic("p2"))

	evt := model.PlanEvent{Type: model.EventPlanCompleted, Plan: model.PlanSummary{ID: "p1", Routes: 2}}
	b.Publish(planTopic("p1"), evt)
	assert.Equal(t, evt, receive(t, ch))
	assert.Empty(t, other)

	b.Unsubscribe(planTopic("p1"), ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	// A second unsubscribe is a no-op.
	b.Unsubscribe(planTopic("p1"), ch)
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	b := NewRedisBrokerWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = b.Close() })

	ch := b.Subscribe(TopicPlans)
	evt := model.PlanEvent{Type: model.EventPlanFailed, Plan: model.PlanSummary{ID: "p9"}, Error: "boom"}
	b.Publish(TopicPlans, evt)
	assert.Equal(t, evt, receive(t, ch))

	b.Unsubscribe(TopicPlans, ch)
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
