package api

import (
	"errors"
	"fmt"

	"zoneroute/internal/fleet"
	"zoneroute/internal/model"
	"zoneroute/internal/opt"
	"zoneroute/internal/planner"
	"zoneroute/internal/zones"
)

const maxGenerate = 5000

func validateGenerate(g model.GenerateSpec) error {
	if g.Count <= 0 || g.Count > maxGenerate {
		return fmt.Errorf("generate.count must be in [1,%d]", maxGenerate)
	}
	return nil
}

// planInput validates req and converts it to a planner input. Fields left
// unset fall back to base.
func planInput(req model.PlanRequest, base planner.Config) (planner.Input, error) {
	var in planner.Input
	switch {
	case len(req.Demands) > 0 && req.Generate != nil:
		return in, errors.New("demands and generate are mutually exclusive")
	case req.Generate != nil:
		if err := validateGenerate(*req.Generate); err != nil {
			return in, err
		}
		in.Demands = fleet.Generator{Seed: req.Generate.Seed}.Generate(req.Generate.Count)
	case len(req.Demands) > 0:
		in.Demands = req.Demands
	default:
		return in, errors.New("demands or generate is required")
	}
	in.Vehicles = req.Vehicles

	if req.Context != nil {
		day, err := zones.ParseWeekday(req.Context.Day)
		if err != nil {
			return in, fmt.Errorf("context.day: %w", err)
		}
		hour := base.Context.Hour
		if req.Context.Hour != nil {
			hour = *req.Context.Hour
		}
		if hour < 0 || hour > 23 {
			return in, fmt.Errorf("context.hour must be in [0,23]")
		}
		in.Context = &zones.DeliveryContext{Day: day, Hour: hour, Holiday: req.Context.Holiday}
	}

	if req.Strategy != "" {
		st, err := opt.ParseStrategy(req.Strategy)
		if err != nil {
			return in, fmt.Errorf("invalid strategy: %s", req.Strategy)
		}
		in.Strategy = st
	}

	if req.EfficiencyRatio == nil && req.LeftoverPolicy == "" && req.SpillRoutes == nil {
		return in, nil
	}
	params := base.Assign
	if req.EfficiencyRatio != nil {
		if *req.EfficiencyRatio < 0 {
			return in, fmt.Errorf("efficiencyRatio must be >= 0")
		}
		params.EfficiencyRatio = *req.EfficiencyRatio
	}
	if req.LeftoverPolicy != "" {
		p, ok := planner.ParseLeftoverPolicy(req.LeftoverPolicy)
		if !ok {
			return in, fmt.Errorf("invalid leftoverPolicy: %s", req.LeftoverPolicy)
		}
		params.LeftoverPolicy = p
	}
	if req.SpillRoutes != nil {
		params.SpillRoutes = *req.SpillRoutes
	}
	in.Params = &params
	return in, nil
}
