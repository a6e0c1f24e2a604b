// Package opt turns a vehicle's stop set into a closed road path.
package opt

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog/log"

	"zoneroute/internal/errs"
	"zoneroute/internal/roadgraph"
)

// Strategy selects the tour construction.
type Strategy string

const (
	StrategyNearest2Opt Strategy = "nearest2opt"
	StrategyTSP         Strategy = "tsp"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyNearest2Opt, "":
		return StrategyNearest2Opt, nil
	case StrategyTSP:
		return StrategyTSP, nil
	}
	return "", errs.Ef(errs.ConfigurationError, "parse strategy", s, "unknown route strategy")
}

// Builder builds routes. MaxPasses bounds 2-opt sweeps; zero runs to a local optimum.
type Builder struct {
	Strategy  Strategy
	MaxPasses int
}

// Route is a closed path from the depot through every stop and back.
type Route struct {
	Path        []roadgraph.NodeID `json:"path"`
	Order       []roadgraph.NodeID `json:"order"`
	DistanceM   float64            `json:"distanceM"`
	RestrictedM float64            `json:"restrictedM"`
	Swaps       int                `json:"swaps"`
}

// Build orders stops and stitches real shortest paths between them. Duplicate
// stops and stops on the depot are visited once. Any stop pair without a path
// in view fails the whole route with a RoutingError.
func (b Builder) Build(view *roadgraph.View, depot roadgraph.NodeID, stops []roadgraph.NodeID) (Route, error) {
	strategy := b.Strategy
	if strategy == "" {
		strategy = StrategyNearest2Opt
	}
	r, err := b.build(strategy, view, depot, stops)
	RecordStrategyStats(strategy, r, err)
	return r, err
}

func (b Builder) build(strategy Strategy, view *roadgraph.View, depot roadgraph.NodeID, stops []roadgraph.NodeID) (Route, error) {
	if !view.Allowed(depot) {
		return Route{}, errs.Ef(errs.RoutingError, "build route", nodeName(depot), "depot not in view")
	}
	nodes := uniqueNodes(depot, stops)
	if len(nodes) == 1 {
		return Route{Path: []roadgraph.NodeID{depot}}, nil
	}
	m, err := distanceMatrix(view, nodes)
	if err != nil {
		return Route{}, err
	}
	cost := func(i, j int) float64 { return m[i][j] }

	var (
		tour  []int
		swaps int
	)
	switch strategy {
	case StrategyTSP:
		tour = doubleTreeTour(len(nodes), cost)
	case StrategyNearest2Opt:
		tour = nearestNeighbour(len(nodes), cost)
		tour, swaps = improve2Opt(tour, cost, b.MaxPasses)
	default:
		return Route{}, errs.Ef(errs.ConfigurationError, "build route", string(strategy), "unknown route strategy")
	}

	path, err := stitch(view, nodes, tour)
	if err != nil {
		return Route{}, err
	}
	st, err := view.PathStats(path)
	if err != nil {
		return Route{}, err
	}
	order := make([]roadgraph.NodeID, 0, len(tour)-2)
	for _, i := range tour[1 : len(tour)-1] {
		order = append(order, nodes[i])
	}
	log.Debug().Str("strategy", string(strategy)).Int("stops", len(order)).Int("swaps", swaps).
		Float64("distance_m", st.Length).Msg("opt: route built")
	return Route{Path: path, Order: order, DistanceM: st.Length, RestrictedM: st.RestrictedLength, Swaps: swaps}, nil
}

// uniqueNodes puts the depot at index 0 followed by stops in first-seen order.
func uniqueNodes(depot roadgraph.NodeID, stops []roadgraph.NodeID) []roadgraph.NodeID {
	seen := map[roadgraph.NodeID]bool{depot: true}
	out := []roadgraph.NodeID{depot}
	for _, s := range stops {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func distanceMatrix(view *roadgraph.View, nodes []roadgraph.NodeID) ([][]float64, error) {
	m := make([][]float64, len(nodes))
	for i, from := range nodes {
		dist, err := view.Distances(from)
		if err != nil {
			return nil, errs.E(errs.RoutingError, "distance matrix", nodeName(from), err)
		}
		m[i] = make([]float64, len(nodes))
		for j, to := range nodes {
			d := view.DistanceTo(dist, to)
			if math.IsInf(d, 1) {
				return nil, errs.Ef(errs.RoutingError, "distance matrix", nodeName(from)+"->"+nodeName(to), "no path")
			}
			m[i][j] = d
		}
	}
	return m, nil
}

// stitch concatenates shortest paths along tour, dropping repeated junctions.
func stitch(view *roadgraph.View, nodes []roadgraph.NodeID, tour []int) ([]roadgraph.NodeID, error) {
	path := []roadgraph.NodeID{nodes[tour[0]]}
	for k := 0; k+1 < len(tour); k++ {
		seg, _, err := view.ShortestPath(nodes[tour[k]], nodes[tour[k+1]])
		if err != nil {
			return nil, err
		}
		path = append(path, seg[1:]...)
	}
	return path, nil
}

func tourLength(tour []int, cost func(i, j int) float64) float64 {
	total := 0.0
	for i := 0; i+1 < len(tour); i++ {
		total += cost(tour[i], tour[i+1])
	}
	return total
}

func nodeName(id roadgraph.NodeID) string { return "node " + strconv.FormatInt(int64(id), 10) }

func (r Route) String() string {
	return fmt.Sprintf("%d stops, %.0fm", len(r.Order), r.DistanceM)
}
