package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zoneroute/internal/config"
	"zoneroute/internal/integrations"
	"zoneroute/internal/metrics"
	"zoneroute/internal/planner"
	"zoneroute/internal/store"
	"zoneroute/internal/webhooks"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Planner *planner.Planner
	Store   store.Store
	Pub     *webhooks.Publisher
	Broker  EventBroker
	Config  config.Config
	// Source names where the dataset came from; Warnings are its skipped records.
	Source   string
	Warnings []error
	// Deps are extra backends checked by /readyz, such as the Redis cache.
	Deps    map[string]pinger
	Limiter *RateLimiter

	jobs sync.WaitGroup
}

// NewServer wires a server around a planner. A nil broker selects the
// in-process one.
func NewServer(p *planner.Planner, st store.Store, broker EventBroker, cfg config.Config) *Server {
	if broker == nil {
		broker = NewBroker()
	}
	s := &Server{
		Planner: p,
		Store:   st,
		Pub:     webhooks.NewPublisher(st),
		Broker:  broker,
		Config:  cfg,
		Deps:    map[string]pinger{},
	}
	if cfg.RateRPS > 0 {
		s.Limiter = NewRateLimiter(cfg.RateRPS, cfg.RateBurst, 0)
	}
	return s
}

// WithDataset records the provenance of the planner inputs for /debug/info.
func (s *Server) WithDataset(source string, ds integrations.Dataset) *Server {
	s.Source = source
	s.Warnings = ds.Warnings
	return s
}

// Routes returns the HTTP handler for the whole API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Plans
	mux.HandleFunc("POST /v1/plans", s.CreatePlanHandler)
	mux.HandleFunc("GET /v1/plans", s.ListPlansHandler)
	mux.HandleFunc("GET /v1/plans/{id}", s.GetPlanHandler)
	mux.HandleFunc("GET /v1/plans/{id}/clusters", s.PlanClustersHandler)
	mux.HandleFunc("GET /v1/plans/{id}/table", s.PlanTableHandler)
	mux.HandleFunc("GET /v1/plans/{id}/events/stream", s.PlanStreamHandler)

	// Inputs
	mux.HandleFunc("GET /v1/zones", s.ZonesHandler)
	mux.HandleFunc("GET /v1/fleet", s.FleetHandler)
	mux.HandleFunc("POST /v1/demands/generate", s.GenerateDemandsHandler)

	// Webhooks
	mux.HandleFunc("POST /v1/subscriptions", s.CreateSubscriptionHandler)
	mux.HandleFunc("GET /v1/subscriptions", s.ListSubscriptionsHandler)
	mux.HandleFunc("DELETE /v1/subscriptions/{id}", s.DeleteSubscriptionHandler)
	mux.HandleFunc("GET /v1/webhooks/deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("POST /v1/webhooks/deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)

	// Streams
	mux.HandleFunc("GET /ws/plans", s.PlansWSHandler)

	// Ops
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /debug/info", s.DebugJSON)
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)

	var h http.Handler = mux
	if s.Limiter != nil {
		h = s.Limiter.Middleware(h)
	}
	return Instrument(h)
}

// Drain waits for background plan jobs to finish or ctx to expire.
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the background helpers owned by the server.
func (s *Server) Close() {
	if s.Limiter != nil {
		s.Limiter.Stop()
	}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.WebhookMaxAttempts)
}
