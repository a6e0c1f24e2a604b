package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionMatches(t *testing.T) {
	s := Subscription{Events: []string{EventPlanCompleted}}
	assert.True(t, s.Matches(EventPlanCompleted))
	assert.False(t, s.Matches(EventPlanFailed))

	all := Subscription{Events: []string{"*"}}
	assert.True(t, all.Matches(EventPlanFailed))
	assert.False(t, Subscription{}.Matches(EventPlanCompleted))
}
