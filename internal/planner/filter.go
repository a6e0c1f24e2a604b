package planner

import (
	"context"
	"sort"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"zoneroute/internal/errs"
	"zoneroute/internal/fleet"
	"zoneroute/internal/roadgraph"
	"zoneroute/internal/zones"
)

// zoneNodes is the node membership of every zone, computed once per graph.
type zoneNodes struct {
	g       *roadgraph.Graph
	ix      *zones.Index
	members map[string][]roadgraph.NodeID
}

func newZoneNodes(g *roadgraph.Graph, ix *zones.Index) *zoneNodes {
	zn := &zoneNodes{g: g, ix: ix, members: map[string][]roadgraph.NodeID{}}
	nodes := g.Nodes()
	for _, z := range ix.Zones() {
		var in []roadgraph.NodeID
		for _, n := range nodes {
			if z.Contains(n.Point()) {
				in = append(in, n.ID)
			}
		}
		zn.members[z.Name] = in
	}
	return zn
}

func (zn *zoneNodes) view(v fleet.Vehicle, dc zones.DeliveryContext) *roadgraph.View {
	forbidden := zn.ix.Forbidden(v, dc)
	if len(forbidden) == 0 {
		return zn.g.Full()
	}
	var ids []roadgraph.NodeID
	for _, z := range forbidden {
		ids = append(ids, zn.members[z.Name]...)
	}
	return zn.g.Exclude(ids)
}

// Filter returns the part of g that v may legally enter at dc: every node
// inside a zone that does not admit v is hidden.
func Filter(g *roadgraph.Graph, v fleet.Vehicle, ix *zones.Index, dc zones.DeliveryContext) *roadgraph.View {
	return newZoneNodes(g, ix).view(v, dc)
}

// FilterFleet filters the graph for every vehicle. Vehicles sharing a rule
// profile share one view. At most workers profiles are filtered at once.
func FilterFleet(ctx context.Context, g *roadgraph.Graph, ix *zones.Index, vehicles []fleet.Vehicle, dc zones.DeliveryContext, workers int) (map[string]*roadgraph.View, error) {
	zn := newZoneNodes(g, ix)

	var profiles []string
	rep := map[string]fleet.Vehicle{}
	for _, v := range vehicles {
		p := v.Profile()
		if _, ok := rep[p]; !ok {
			rep[p] = v
			profiles = append(profiles, p)
		}
	}
	sort.Strings(profiles)

	views := make([]*roadgraph.View, len(profiles))
	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, p := range profiles {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			views[i] = zn.view(rep[p], dc)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	byProfile := make(map[string]*roadgraph.View, len(profiles))
	for i, p := range profiles {
		byProfile[p] = views[i]
		log.Debug().Str("profile", p).Int("hidden", views[i].Hidden()).Msg("planner: filtered graph")
	}
	out := make(map[string]*roadgraph.View, len(vehicles))
	for _, v := range vehicles {
		out[v.ID] = byProfile[v.Profile()]
	}
	return out, nil
}

// ResolveDepot snaps the depot to the base graph.
func ResolveDepot(g *roadgraph.Graph, depot orb.Point, maxMeters float64) (roadgraph.NodeID, error) {
	id, err := g.Full().NearestNode(depot, maxMeters)
	if err != nil {
		return 0, errs.E(errs.ConfigurationError, "resolve depot", "", err)
	}
	return id, nil
}

// CheckDepot fails when no vehicle can stand on the depot node.
func CheckDepot(views map[string]*roadgraph.View, depot roadgraph.NodeID) error {
	for _, v := range views {
		if v.Allowed(depot) {
			return nil
		}
	}
	if len(views) == 0 {
		return errs.Ef(errs.ConfigurationError, "check depot", "", "no vehicles")
	}
	return errs.Ef(errs.ConfigurationError, "check depot", "", "depot node %d is excluded for every vehicle", depot)
}
