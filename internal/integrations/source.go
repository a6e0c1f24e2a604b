// Package integrations loads the static inputs of the planner: road graph,
// restriction zones and the vehicle fleet.
package integrations

import (
	"context"
	"fmt"
	"os"

	"zoneroute/internal/fleet"
	"zoneroute/internal/roadgraph"
	"zoneroute/internal/zones"
)

// Dataset is everything a planner needs besides the demands.
type Dataset struct {
	Graph    *roadgraph.Graph
	Zones    *zones.Index
	Vehicles []fleet.Vehicle
	// Warnings are data errors that were skipped while loading.
	Warnings []error
}

// Source produces a dataset.
type Source interface {
	Name() string
	Load(ctx context.Context) (Dataset, error)
}

// LoadRules reads a YAML rule file, or returns the built-in rules when path
// is empty.
func LoadRules(path string) (zones.RuleSet, error) {
	if path == "" {
		return zones.DefaultRules(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return zones.LoadRules(b)
}
