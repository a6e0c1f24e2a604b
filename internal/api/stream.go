package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"zoneroute/internal/metrics"
	"zoneroute/internal/model"
	"zoneroute/internal/planner"
	"zoneroute/internal/store"
)

const heartbeatEvery = 15 * time.Second

// PlanStreamHandler handles GET /v1/plans/{id}/events/stream. It streams the
// plan's events as SSE and ends after plan.completed or plan.failed. A plan
// that is already stored yields a single plan.completed event.
func (s *Server) PlanStreamHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	// subscribe before looking the plan up so a completion in between is not lost
	topic := planTopic(id)
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	var done *model.PlanEvent
	doc, err := s.Store.GetPlan(r.Context(), id)
	switch {
	case err == nil:
		var res planner.Result
		if err := json.Unmarshal(doc, &res); err != nil {
			writeError(w, r, "Plan lookup failed", err)
			return
		}
		done = &model.PlanEvent{Type: model.EventPlanCompleted, Plan: summarize(&res)}
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, r, "Plan lookup failed", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	metrics.StreamClients.WithLabelValues("sse").Inc()
	defer metrics.StreamClients.WithLabelValues("sse").Dec()

	if done != nil {
		writeSSE(w, done.Type, done)
		flusher.Flush()
		return
	}
	writeSSE(w, "heartbeat", map[string]string{"planId": id, "ts": time.Now().UTC().Format(time.RFC3339)})
	flusher.Flush()

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt.Type, evt)
			flusher.Flush()
			if evt.Type == model.EventPlanCompleted || evt.Type == model.EventPlanFailed {
				return
			}
		case <-ticker.C:
			writeSSE(w, "heartbeat", map[string]string{"planId": id, "ts": time.Now().UTC().Format(time.RFC3339)})
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	b, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", b)
}
