package api

import (
	"net/http"
	"time"

	"zoneroute/internal/buildinfo"
	"zoneroute/internal/opt"
)

// DebugJSON handles GET /debug/info: build stamps, dataset size and the
// effective settings. Secrets are reduced to presence flags.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Config
	warnings := make([]string, 0, len(s.Warnings))
	for _, err := range s.Warnings {
		warnings = append(warnings, err.Error())
	}
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"dataset": map[string]any{
			"source":       s.Source,
			"graphVersion": s.Planner.Graph.Version(),
			"nodes":        s.Planner.Graph.NodeCount(),
			"edges":        s.Planner.Graph.EdgeCount(),
			"zoneVersion":  s.Planner.Zones.Version(),
			"zones":        len(s.Planner.Zones.Zones()),
			"vehicles":     len(s.Planner.Vehicles),
			"warnings":     warnings,
		},
		"routeBuilder": opt.StrategyStats(),
		"config": map[string]any{
			"ENVIRONMENT":          c.Environment,
			"PORT":                 c.Port,
			"RATE_RPS":             c.RateRPS,
			"RATE_BURST":           c.RateBurst,
			"STRATEGY":             c.Strategy,
			"LEFTOVER_POLICY":      c.LeftoverPolicy,
			"EFFICIENCY_RATIO":     c.EfficiencyRatio,
			"SPILL_ROUTES":         c.SpillRoutes,
			"DELIVERY_CONTEXT":     s.Planner.Config.Context.String(),
			"WEBHOOK_MAX_ATTEMPTS": c.WebhookMaxAttempts,
			"HAS_DATABASE_URL":     c.DatabaseURL != "",
			"HAS_REDIS_URL":        c.RedisURL != "",
		},
	}
	writeJSON(w, http.StatusOK, info)
}
