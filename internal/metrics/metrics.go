package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Plans counts planning runs by strategy and result (ok, cached, error).
	Plans = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plans_total", Help: "Planning runs by strategy and result."},
		[]string{"strategy", "result"},
	)
	PlanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "plan_duration_seconds", Help: "Planning run duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}},
		[]string{"strategy"},
	)
	// PlanDemands counts demands per final state: assigned, reassigned, unassigned.
	PlanDemands = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_demands_total", Help: "Demands by final assignment state."},
		[]string{"state"},
	)
	// PlanRejections counts vehicles turned down during assignment by cause.
	PlanRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_rejections_total", Help: "Rejected vehicle candidates by cause."},
		[]string{"cause"},
	)
	PlanRoutes = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_routes", Help: "Routes per plan.", Buckets: prometheus.LinearBuckets(0, 5, 10)},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
	StreamClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "plan_stream_clients", Help: "Connected plan event clients by transport."},
		[]string{"transport"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Plans, PlanDuration, PlanDemands, PlanRejections, PlanRoutes)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency, StreamClients)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
