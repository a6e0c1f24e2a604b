package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"zoneroute/internal/fleet"
	"zoneroute/internal/metrics"
	"zoneroute/internal/model"
	"zoneroute/internal/planner"
	"zoneroute/internal/zones"
)

// CreatePlanHandler handles POST /v1/plans. With ?async=true the plan runs in
// the background and the response only carries its id.
func (s *Server) CreatePlanHandler(w http.ResponseWriter, r *http.Request) {
	var req model.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	in, err := planInput(req, s.Planner.Config)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}
	in.ID = uuid.NewString()

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		ctx := context.WithoutCancel(r.Context())
		s.jobs.Add(1)
		go func() {
			defer s.jobs.Done()
			_, _ = s.runPlan(ctx, in)
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     in.ID,
			"status": "running",
			"stream": "/v1/plans/" + in.ID + "/events/stream",
		})
		return
	}

	res, err := s.runPlan(r.Context(), in)
	if err != nil {
		writeError(w, r, "Plan failed", err)
		return
	}
	w.Header().Set("Location", "/v1/plans/"+res.ID)
	writeJSON(w, http.StatusCreated, res)
}

// runPlan computes, stores and announces one plan.
func (s *Server) runPlan(ctx context.Context, in planner.Input) (*planner.Result, error) {
	strategy := s.Planner.Config.Strategy
	if in.Strategy != "" {
		strategy = in.Strategy
	}
	dc := s.Planner.Config.Context
	if in.Context != nil {
		dc = *in.Context
	}
	started := model.PlanSummary{ID: in.ID, Strategy: string(strategy), Context: dc.String(), CreatedAt: time.Now().UTC()}
	s.announce(ctx, model.PlanEvent{Type: model.EventPlanStarted, Plan: started})

	start := time.Now()
	res, err := s.Planner.Plan(ctx, in)
	metrics.PlanDuration.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Plans.WithLabelValues(string(strategy), "error").Inc()
		log.Warn().Err(err).Str("plan", in.ID).Msg("api: plan failed")
		s.announce(ctx, model.PlanEvent{Type: model.EventPlanFailed, Plan: started, Error: err.Error()})
		return nil, err
	}
	recordOutcome(res)

	sum := summarize(res)
	doc, err := json.Marshal(res)
	if err == nil {
		err = s.Store.SavePlan(ctx, sum, doc)
	}
	if err != nil {
		log.Error().Err(err).Str("plan", res.ID).Msg("api: save plan")
		s.announce(ctx, model.PlanEvent{Type: model.EventPlanFailed, Plan: sum, Error: err.Error()})
		return nil, err
	}
	s.announce(ctx, model.PlanEvent{Type: model.EventPlanCompleted, Plan: sum})
	return res, nil
}

// announce publishes evt to stream clients and queues it for webhook subscribers.
func (s *Server) announce(ctx context.Context, evt model.PlanEvent) {
	s.Broker.Publish(TopicPlans, evt)
	s.Broker.Publish(planTopic(evt.Plan.ID), evt)
	if evt.Type == model.EventPlanStarted {
		return
	}
	if _, err := s.Pub.Emit(ctx, evt.Type, evt); err != nil {
		log.Warn().Err(err).Str("event", evt.Type).Msg("api: emit webhook")
	}
}

func recordOutcome(res *planner.Result) {
	result := "ok"
	if res.Cached {
		result = "cached"
	}
	metrics.Plans.WithLabelValues(string(res.Strategy), result).Inc()
	o := res.Outcome
	metrics.PlanDemands.WithLabelValues("assigned").Add(float64(o.Assigned))
	metrics.PlanDemands.WithLabelValues("reassigned").Add(float64(o.Reassigned))
	metrics.PlanDemands.WithLabelValues("unassigned").Add(float64(o.Unassigned))
	metrics.PlanRejections.WithLabelValues("candidate").Add(float64(o.RejectedCandidates))
	metrics.PlanRejections.WithLabelValues("capacity").Add(float64(o.CapacityRejections))
	metrics.PlanRejections.WithLabelValues("unreachable").Add(float64(o.UnreachableSkips))
	metrics.PlanRoutes.Observe(float64(len(res.Assignments)))
}

func summarize(res *planner.Result) model.PlanSummary {
	sum := model.PlanSummary{
		ID:          res.ID,
		Fingerprint: res.Fingerprint,
		Strategy:    string(res.Strategy),
		Context:     res.Context.String(),
		CreatedAt:   res.CreatedAt,
		Routes:      len(res.Assignments),
		Assigned:    res.Outcome.Assigned,
		Unassigned:  res.Outcome.Unassigned,
	}
	for _, a := range res.Assignments {
		sum.DistanceM += a.DistanceM
	}
	return sum
}

// ListPlansHandler handles GET /v1/plans
func (s *Server) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Store.ListPlans(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, r, "List plans failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// GetPlanHandler handles GET /v1/plans/{id}
func (s *Server) GetPlanHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Store.GetPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "Plan not found", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) loadPlan(r *http.Request) (*planner.Result, error) {
	doc, err := s.Store.GetPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	var res planner.Result
	if err := json.Unmarshal(doc, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PlanClustersHandler handles GET /v1/plans/{id}/clusters
func (s *Server) PlanClustersHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.loadPlan(r)
	if err != nil {
		writeError(w, r, "Plan not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": res.Clusters, "membership": res.Membership})
}

// PlanTableHandler handles GET /v1/plans/{id}/table
func (s *Server) PlanTableHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.loadPlan(r)
	if err != nil {
		writeError(w, r, "Plan not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res.Table, "unassigned": res.Unassigned, "audit": res.Audit})
}

// ZonesHandler handles GET /v1/zones. The zones are returned as a GeoJSON
// feature collection; "active" is evaluated at ?day=&hour= or the default
// delivery context.
func (s *Server) ZonesHandler(w http.ResponseWriter, r *http.Request) {
	dc := s.Planner.Config.Context
	q := r.URL.Query()
	if v := q.Get("day"); v != "" {
		day, err := zones.ParseWeekday(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
			return
		}
		dc.Day = day
	}
	if v := q.Get("hour"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h < 0 || h > 23 {
			writeProblem(w, http.StatusBadRequest, "Invalid hour", "hour must be in [0,23]", r.URL.Path)
			return
		}
		dc.Hour = h
	}
	fc := geojson.NewFeatureCollection()
	for _, z := range s.Planner.Zones.Zones() {
		f := geojson.NewFeature(z.Geometry)
		f.Properties["name"] = z.Name
		f.Properties["active"] = z.Active(dc)
		f.Properties["classes"] = accessTable(z.Rules)
		f.Properties["holidayFree"] = z.Rules.HolidayFree
		fc.Append(f)
	}
	writeJSON(w, http.StatusOK, fc)
}

func accessTable(r zones.Rules) map[string]string {
	out := make(map[string]string, len(r.Classes))
	for c, a := range r.Classes {
		switch a {
		case zones.Forbidden:
			out[c.String()] = "forbidden"
		case zones.NeedsPermit:
			out[c.String()] = "permit"
		default:
			out[c.String()] = "permitted"
		}
	}
	return out
}

// FleetHandler handles GET /v1/fleet
func (s *Server) FleetHandler(w http.ResponseWriter, r *http.Request) {
	type item struct {
		fleet.Vehicle
		VolumeM3 float64 `json:"volumeM3"`
	}
	vs := fleet.SortVehicles(s.Planner.Vehicles)
	items := make([]item, 0, len(vs))
	for _, v := range vs {
		items = append(items, item{Vehicle: v, VolumeM3: v.VolumeM3()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GenerateDemandsHandler handles POST /v1/demands/generate
func (s *Server) GenerateDemandsHandler(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateSpec
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateGenerate(req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid generate request", err.Error(), r.URL.Path)
		return
	}
	ds := fleet.Generator{Seed: req.Seed}.Generate(req.Count)
	writeJSON(w, http.StatusOK, map[string]any{"items": ds})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "store: "+err.Error(), r.URL.Path)
		return
	}
	for name, dep := range s.Deps {
		if err := dep.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
