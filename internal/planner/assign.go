package planner

import (
	"context"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rs/zerolog/log"

	"zoneroute/internal/cluster"
	"zoneroute/internal/fleet"
	"zoneroute/internal/opt"
	"zoneroute/internal/roadgraph"
	"zoneroute/internal/zones"
)

// LeftoverPolicy picks the route a leftover demand joins.
type LeftoverPolicy string

const (
	// FirstFit takes the first feasible route in creation order.
	FirstFit LeftoverPolicy = "first-fit"
	// NearestFit takes the feasible route with the closest stop.
	NearestFit LeftoverPolicy = "nearest-fit"
)

func ParseLeftoverPolicy(s string) (LeftoverPolicy, bool) {
	switch LeftoverPolicy(s) {
	case FirstFit, "":
		return FirstFit, true
	case NearestFit:
		return NearestFit, true
	}
	return "", false
}

// Params tune assignment. An EfficiencyRatio of zero disables the check.
type Params struct {
	EfficiencyRatio float64        `json:"efficiencyRatio"`
	MaxSnapMeters   float64        `json:"maxSnapMeters"`
	LeftoverPolicy  LeftoverPolicy `json:"leftoverPolicy"`
	SpillRoutes     bool           `json:"spillRoutes"`
}

func DefaultParams() Params {
	return Params{
		EfficiencyRatio: 1.5,
		MaxSnapMeters:   1000,
		LeftoverPolicy:  FirstFit,
	}
}

// ReassignedCluster tags stops placed outside their own cluster.
const ReassignedCluster = "Reassigned"

const spillRouteBase = 2000

type Stop struct {
	DemandID  int              `json:"demandId"`
	ClusterID string           `json:"clusterId"`
	Node      roadgraph.NodeID `json:"node"`
}

// Assignment is one route: a vehicle, its stops and the road path serving them.
type Assignment struct {
	RouteID     string             `json:"routeId"`
	Vehicle     fleet.Vehicle      `json:"vehicle"`
	Stops       []Stop             `json:"stops"`
	WeightKg    float64            `json:"weightKg"`
	VolumeM3    float64            `json:"volumeM3"`
	Path        []roadgraph.NodeID `json:"path"`
	DistanceM   float64            `json:"distanceM"`
	RestrictedM float64            `json:"restrictedM"`
	StopCount   int                `json:"stopCount"`
}

func (a *Assignment) DemandIDs() []int {
	out := make([]int, len(a.Stops))
	for i, s := range a.Stops {
		out[i] = s.DemandID
	}
	return out
}

// Reason explains why a demand was left unassigned.
type Reason string

const (
	ReasonCapacity       Reason = "capacity"
	ReasonReachability   Reason = "reachability"
	ReasonNotDeliverable Reason = "not-deliverable"
)

type Unassigned struct {
	DemandID int    `json:"demandId"`
	Reason   Reason `json:"reason"`
}

// Outcome aggregates the non-fatal events of a run.
type Outcome struct {
	Assigned           int `json:"assigned"`
	Reassigned         int `json:"reassigned"`
	Unassigned         int `json:"unassigned"`
	RejectedCandidates int `json:"rejectedCandidates"`
	CapacityRejections int `json:"capacityRejections"`
	UnreachableSkips   int `json:"unreachableSkips"`
}

// Allocation is the output of the engine.
type Allocation struct {
	Assignments []*Assignment
	Unassigned  []Unassigned
	Outcome     Outcome
}

// Engine assigns clusters to vehicles and builds their routes. Views maps
// vehicle ids to their filtered graphs.
type Engine struct {
	Views      map[string]*roadgraph.View
	Depot      roadgraph.NodeID
	DepotPoint orb.Point
	Index      *zones.Index
	Context    zones.DeliveryContext
	Builder    opt.Builder
	Params     Params
}

type snapKey struct {
	vehicle string
	demand  int
}

type snap struct {
	node   roadgraph.NodeID
	reason Reason
	ok     bool
}

type load struct{ weight, volume float64 }

type run struct {
	e         *Engine
	vehicles  []fleet.Vehicle
	demands   map[int]fleet.Demand
	order     []int
	used      map[int]bool
	load      map[string]*load
	snaps     map[snapKey]snap
	depotDist map[*roadgraph.View][]float64
	routes    int
	out       Allocation
}

// Assign runs the primary, leftover and optional spill passes. It is
// deterministic for identical input.
func (e *Engine) Assign(ctx context.Context, clusters []*cluster.Cluster, vehicles []fleet.Vehicle, demands []fleet.Demand) (Allocation, error) {
	r := &run{
		e:         e,
		vehicles:  fleet.SortVehicles(vehicles),
		demands:   make(map[int]fleet.Demand, len(demands)),
		used:      map[int]bool{},
		load:      map[string]*load{},
		snaps:     map[snapKey]snap{},
		depotDist: map[*roadgraph.View][]float64{},
	}
	for _, d := range fleet.SortDemands(demands) {
		r.demands[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	for _, v := range r.vehicles {
		r.load[v.ID] = &load{}
	}

	if err := r.primary(ctx, clusters); err != nil {
		return Allocation{}, err
	}
	if err := ctx.Err(); err != nil {
		return Allocation{}, err
	}
	r.leftovers()
	if e.Params.SpillRoutes {
		if err := ctx.Err(); err != nil {
			return Allocation{}, err
		}
		r.spill()
	}
	r.finish()
	return r.out, nil
}

func (r *run) primary(ctx context.Context, clusters []*cluster.Cluster) error {
	cs := slices.Clone(clusters)
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Seq < cs[j].Seq })

	for _, c := range cs {
		if err := ctx.Err(); err != nil {
			return err
		}
		var pending []fleet.Demand
		for _, id := range c.Members {
			d, ok := r.demands[id]
			if ok && !r.used[id] && d.Deliverable(r.e.Context) {
				pending = append(pending, d)
			}
		}
		if len(pending) == 0 {
			continue
		}
		weight, volume := sumLoad(pending)

		var (
			best      = -1
			bestScore = math.Inf(1)
		)
		for i, v := range r.vehicles {
			if !r.permittedIn(v, c) {
				r.out.Outcome.UnreachableSkips++
				continue
			}
			if !r.reachAll(v, pending) {
				r.out.Outcome.UnreachableSkips++
				continue
			}
			if !r.fits(v, weight, volume) {
				r.out.Outcome.CapacityRejections++
				continue
			}
			if score := geo.Distance(r.e.DepotPoint, pending[0].Point()); score < bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			log.Debug().Str("cluster", c.ID).Int("demands", len(pending)).Msg("planner: no candidate vehicle")
			continue
		}

		v := r.vehicles[best]
		a := &Assignment{Vehicle: v}
		for _, d := range pending {
			s, _ := r.reach(v, d)
			a.Stops = append(a.Stops, Stop{DemandID: d.ID, ClusterID: c.ID, Node: s.node})
		}
		if err := r.route(a); err != nil {
			r.out.Outcome.RejectedCandidates++
			log.Info().Err(err).Str("cluster", c.ID).Str("vehicle", v.ID).Msg("planner: route rejected")
			continue
		}
		if !r.efficient(a, pending) {
			r.out.Outcome.RejectedCandidates++
			log.Info().Str("cluster", c.ID).Str("vehicle", v.ID).Float64("distance_m", a.DistanceM).Msg("planner: route rejected as inefficient")
			continue
		}
		r.routes++
		a.RouteID = "Route " + strconv.Itoa(r.routes)
		r.commit(a)
		log.Info().Str("route", a.RouteID).Str("vehicle", v.ID).Str("cluster", c.ID).Int("stops", a.StopCount).Msg("planner: cluster assigned")
	}
	return nil
}

// leftovers attaches every unassigned demand to an existing route chosen by
// the leftover policy, then rebuilds the routes that grew. A route that can
// no longer be built drops the demands it received.
func (r *run) leftovers() {
	existing := slices.Clone(r.out.Assignments)
	before := map[*Assignment]Assignment{}
	added := map[*Assignment][]int{}

	for _, id := range r.order {
		if r.used[id] {
			continue
		}
		d := r.demands[id]
		a := r.pick(existing, d)
		if a == nil {
			continue
		}
		if _, ok := before[a]; !ok {
			snapshot := *a
			snapshot.Stops = slices.Clone(a.Stops)
			before[a] = snapshot
		}
		s, _ := r.reach(a.Vehicle, d)
		a.Stops = append(a.Stops, Stop{DemandID: id, ClusterID: ReassignedCluster, Node: s.node})
		r.take(a.Vehicle, d)
		added[a] = append(added[a], id)
		r.out.Outcome.Reassigned++
		log.Debug().Int("demand", id).Str("route", a.RouteID).Msg("planner: leftover attached")
	}

	for _, a := range existing {
		ids, ok := added[a]
		if !ok {
			continue
		}
		err := r.route(a)
		if err == nil {
			continue
		}
		log.Warn().Err(err).Str("route", a.RouteID).Int("leftovers", len(ids)).Msg("planner: rebuild failed, detaching leftovers")
		*a = before[a]
		for _, id := range ids {
			r.release(a.Vehicle, r.demands[id])
		}
		r.out.Outcome.Reassigned -= len(ids)
		r.out.Outcome.RejectedCandidates++
	}
}

func (r *run) pick(candidates []*Assignment, d fleet.Demand) *Assignment {
	var (
		best  *Assignment
		bestD = math.Inf(1)
	)
	for _, a := range candidates {
		if _, ok := r.reach(a.Vehicle, d); !ok {
			continue
		}
		if !r.fits(a.Vehicle, d.WeightKg, d.VolumeM3) {
			continue
		}
		if r.e.Params.LeftoverPolicy != NearestFit {
			return a
		}
		for _, s := range a.Stops {
			if dist := geo.Distance(r.demands[s.DemandID].Point(), d.Point()); dist < bestD {
				best, bestD = a, dist
			}
		}
	}
	return best
}

// spill packs the remaining demands onto vehicles largest first as new routes.
func (r *run) spill() {
	seq := spillRouteBase
	for _, v := range r.vehicles {
		a := &Assignment{Vehicle: v}
		var taken []fleet.Demand
		for _, id := range r.order {
			d := r.demands[id]
			if r.used[id] {
				continue
			}
			s, ok := r.reach(v, d)
			if !ok || !r.fits(v, d.WeightKg, d.VolumeM3) {
				continue
			}
			a.Stops = append(a.Stops, Stop{DemandID: id, ClusterID: ReassignedCluster, Node: s.node})
			r.take(v, d)
			taken = append(taken, d)
		}
		if len(taken) == 0 {
			continue
		}
		if err := r.route(a); err != nil {
			log.Warn().Err(err).Str("vehicle", v.ID).Msg("planner: spill route failed")
			for _, d := range taken {
				r.release(v, d)
			}
			r.out.Outcome.RejectedCandidates++
			continue
		}
		a.RouteID = "Route " + strconv.Itoa(seq)
		seq++
		r.out.Assignments = append(r.out.Assignments, a)
		r.out.Outcome.Reassigned += len(taken)
		log.Info().Str("route", a.RouteID).Str("vehicle", v.ID).Int("stops", a.StopCount).Msg("planner: spill route")
	}
}

func (r *run) finish() {
	for _, id := range r.order {
		if r.used[id] {
			r.out.Outcome.Assigned++
			continue
		}
		reason := r.unassignedReason(r.demands[id])
		r.out.Unassigned = append(r.out.Unassigned, Unassigned{DemandID: id, Reason: reason})
		log.Warn().Int("demand", id).Str("reason", string(reason)).Msg("planner: demand unassigned")
	}
	r.out.Outcome.Unassigned = len(r.out.Unassigned)
}

func (r *run) unassignedReason(d fleet.Demand) Reason {
	if !d.Deliverable(r.e.Context) {
		return ReasonNotDeliverable
	}
	for _, v := range r.vehicles {
		if _, ok := r.reach(v, d); ok {
			return ReasonCapacity
		}
	}
	return ReasonReachability
}

// route (re)builds the path of a from its stops.
func (r *run) route(a *Assignment) error {
	view := r.e.Views[a.Vehicle.ID]
	nodes := make([]roadgraph.NodeID, len(a.Stops))
	a.WeightKg, a.VolumeM3 = 0, 0
	for i, s := range a.Stops {
		nodes[i] = s.Node
		d := r.demands[s.DemandID]
		a.WeightKg += d.WeightKg
		a.VolumeM3 += d.VolumeM3
	}
	a.StopCount = len(a.Stops)
	rt, err := r.e.Builder.Build(view, r.e.Depot, nodes)
	if err != nil {
		return err
	}
	a.Path, a.DistanceM, a.RestrictedM = rt.Path, rt.DistanceM, rt.RestrictedM
	return nil
}

// efficient compares the road distance with the straight-line distances from
// the depot to every stop.
func (r *run) efficient(a *Assignment, ds []fleet.Demand) bool {
	ratio := r.e.Params.EfficiencyRatio
	if ratio <= 0 || len(ds) < 2 {
		return true
	}
	if a.DistanceM == 0 {
		return false
	}
	straight := 0.0
	for _, d := range ds {
		straight += geo.Distance(r.e.DepotPoint, d.Point())
	}
	return straight > 0 && a.DistanceM/straight <= ratio
}

func (r *run) commit(a *Assignment) {
	for _, s := range a.Stops {
		r.take(a.Vehicle, r.demands[s.DemandID])
	}
	r.out.Assignments = append(r.out.Assignments, a)
}

func (r *run) take(v fleet.Vehicle, d fleet.Demand) {
	l := r.load[v.ID]
	l.weight += d.WeightKg
	l.volume += d.VolumeM3
	r.used[d.ID] = true
}

func (r *run) release(v fleet.Vehicle, d fleet.Demand) {
	l := r.load[v.ID]
	l.weight -= d.WeightKg
	l.volume -= d.VolumeM3
	delete(r.used, d.ID)
}

func (r *run) fits(v fleet.Vehicle, weight, volume float64) bool {
	l := r.load[v.ID]
	return l.weight+weight <= v.MaxWeightKg && l.volume+volume <= v.VolumeM3()
}

func (r *run) permittedIn(v fleet.Vehicle, c *cluster.Cluster) bool {
	if r.e.Index == nil {
		return true
	}
	for _, name := range c.RequiredZones() {
		if z, ok := r.e.Index.Lookup(name); ok && !z.Permitted(v, r.e.Context) {
			return false
		}
	}
	return true
}

func (r *run) reachAll(v fleet.Vehicle, ds []fleet.Demand) bool {
	for _, d := range ds {
		if _, ok := r.reach(v, d); !ok {
			return false
		}
	}
	return true
}

// reach snaps d into the view of v. A demand is reachable when it accepts
// delivery now, every zone around it admits v, a visible node lies within the
// snap distance and that node connects to the depot.
func (r *run) reach(v fleet.Vehicle, d fleet.Demand) (snap, bool) {
	k := snapKey{vehicle: v.ID, demand: d.ID}
	if s, ok := r.snaps[k]; ok {
		return s, s.ok
	}
	s := r.resolve(v, d)
	r.snaps[k] = s
	return s, s.ok
}

func (r *run) resolve(v fleet.Vehicle, d fleet.Demand) snap {
	if !d.Deliverable(r.e.Context) {
		return snap{reason: ReasonNotDeliverable}
	}
	view := r.e.Views[v.ID]
	if view == nil || !view.Allowed(r.e.Depot) {
		return snap{reason: ReasonReachability}
	}
	if r.e.Index != nil && !r.e.Index.PermittedAt(d.Point(), v, r.e.Context) {
		return snap{reason: ReasonReachability}
	}
	node, err := view.NearestNode(d.Point(), r.e.Params.MaxSnapMeters)
	if err != nil {
		return snap{reason: ReasonReachability}
	}
	dist, ok := r.depotDist[view]
	if !ok {
		dist, _ = view.Distances(r.e.Depot)
		r.depotDist[view] = dist
	}
	if math.IsInf(view.DistanceTo(dist, node), 1) {
		return snap{reason: ReasonReachability}
	}
	return snap{node: node, ok: true}
}

func sumLoad(ds []fleet.Demand) (weight, volume float64) {
	for _, d := range ds {
		weight += d.WeightKg
		volume += d.VolumeM3
	}
	return weight, volume
}
