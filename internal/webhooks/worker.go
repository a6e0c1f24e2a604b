package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"zoneroute/internal/metrics"
	"zoneroute/internal/store"
)

// Worker polls the store for due deliveries and posts them.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Limiter     *rate.Limiter
	MaxAttempts int
	Interval    time.Duration
	BatchSize   int
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Limiter:     rate.NewLimiter(rate.Limit(10), 20),
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		BatchSize:   50,
	}
}

// Run processes the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, w.BatchSize)
	if err != nil {
		log.Warn().Err(err).Msg("webhooks: fetch due")
		return 0
	}
	done := 0
	for _, it := range items {
		if w.Limiter != nil {
			if err := w.Limiter.Wait(ctx); err != nil {
				return done
			}
		}
		w.deliver(ctx, it)
		done++
	}
	return done
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	start := time.Now()
	code, err := w.post(ctx, it)
	latency := time.Since(start)
	success := err == nil && code >= 200 && code < 300

	lastErr := ""
	switch {
	case err != nil:
		lastErr = err.Error()
	case !success:
		lastErr = "status " + strconv.Itoa(code)
	}

	status := "delivered"
	var serr error
	switch {
	case success:
		serr = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code)
	case it.Attempts+1 >= w.MaxAttempts:
		status = "failed"
		serr = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code)
	default:
		status = "retry"
		next := time.Now().Add(nextBackoff(it.Attempts))
		serr = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code)
	}
	if serr != nil {
		log.Warn().Err(serr).Str("delivery", it.ID).Msg("webhooks: record outcome")
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency.Milliseconds()))
	log.Debug().Str("delivery", it.ID).Str("status", status).Int("code", code).Dur("took", latency).Msg("webhooks: delivery")
}

func (w *Worker) post(ctx context.Context, it store.WebhookDelivery) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	req.Header.Set("X-Delivery-Id", it.ID)
	if it.Secret != "" {
		req.Header.Set(SignatureHeader, SignHMAC(it.Secret, it.Payload))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// nextBackoff doubles from one second and caps at one hour.
func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 12 {
		attempts = 12
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
