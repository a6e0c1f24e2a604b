package model

import (
	"time"

	"zoneroute/internal/fleet"
)

// PlanRequest is the body of POST /v1/plans. Either Demands or Generate must
// be set; the remaining fields fall back to the server configuration.
type PlanRequest struct {
	Demands         []fleet.Demand  `json:"demands,omitempty"`
	Generate        *GenerateSpec   `json:"generate,omitempty"`
	Vehicles        []fleet.Vehicle `json:"vehicles,omitempty"`
	Context         *ContextIn      `json:"context,omitempty"`
	Strategy        string          `json:"strategy,omitempty"`
	EfficiencyRatio *float64        `json:"efficiencyRatio,omitempty"`
	LeftoverPolicy  string          `json:"leftoverPolicy,omitempty"`
	SpillRoutes     *bool           `json:"spillRoutes,omitempty"`
}

// GenerateSpec asks the server for Count random demands.
type GenerateSpec struct {
	Count int    `json:"count"`
	Seed  uint64 `json:"seed,omitempty"`
}

// ContextIn names the delivery moment. Day accepts "Tue" or "tuesday".
type ContextIn struct {
	Day     string `json:"day"`
	Hour    *int   `json:"hour,omitempty"`
	Holiday bool   `json:"holiday,omitempty"`
}

type PlanSummary struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Strategy    string    `json:"strategy"`
	Context     string    `json:"context"`
	CreatedAt   time.Time `json:"createdAt"`
	Routes      int       `json:"routes"`
	Assigned    int       `json:"assigned"`
	Unassigned  int       `json:"unassigned"`
	DistanceM   float64   `json:"distanceM"`
}

const (
	EventPlanStarted   = "plan.started"
	EventPlanCompleted = "plan.completed"
	EventPlanFailed    = "plan.failed"
)

// PlanEvent is published on the broker and to webhook subscribers.
type PlanEvent struct {
	Type  string      `json:"type"`
	Plan  PlanSummary `json:"plan"`
	Error string      `json:"error,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

type Subscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Matches reports whether the subscription wants eventType. "*" matches all.
func (s Subscription) Matches(eventType string) bool {
	for _, e := range s.Events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryRetry     DeliveryStatus = "retry"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Delivery is one queued webhook call as shown by GET /v1/webhooks/deliveries.
type Delivery struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscriptionId,omitempty"`
	EventType      string         `json:"eventType"`
	URL            string         `json:"url"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	NextAttemptAt  *time.Time     `json:"nextAttemptAt,omitempty"`
	LastError      string         `json:"lastError,omitempty"`
	ResponseCode   int            `json:"responseCode,omitempty"`
}
