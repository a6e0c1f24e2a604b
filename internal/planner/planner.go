// Package planner runs a routing plan: it filters the road graph per vehicle,
// clusters demands, assigns clusters to vehicles and builds their routes.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	"zoneroute/internal/cluster"
	"zoneroute/internal/fleet"
	"zoneroute/internal/opt"
	"zoneroute/internal/roadgraph"
	"zoneroute/internal/zones"
)

// DefaultDepot is the warehouse in São Paulo.
var DefaultDepot = orb.Point{-46.655389, -23.495652}

// DefaultContext is Tuesday 10h, not a holiday.
var DefaultContext = zones.DeliveryContext{Day: time.Tuesday, Hour: 10}

type Config struct {
	Depot         orb.Point
	Context       zones.DeliveryContext
	Cluster       cluster.Params
	Assign        Params
	Strategy      opt.Strategy
	MaxPasses     int
	SpeedKmph     float64
	FilterWorkers int
}

func DefaultConfig() Config {
	return Config{
		Depot:         DefaultDepot,
		Context:       DefaultContext,
		Cluster:       cluster.DefaultParams(),
		Assign:        DefaultParams(),
		Strategy:      opt.StrategyNearest2Opt,
		SpeedKmph:     30,
		FilterWorkers: 4,
	}
}

// Cache stores encoded results by fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
}

// Input is one planning request. Zero fields fall back to the planner's config.
type Input struct {
	// ID names the result; a random id is used when empty.
	ID       string
	Demands  []fleet.Demand
	Vehicles []fleet.Vehicle
	Context  *zones.DeliveryContext
	Strategy opt.Strategy
	Params   *Params
}

type Result struct {
	ID          string                `json:"id"`
	Fingerprint string                `json:"fingerprint"`
	Context     zones.DeliveryContext `json:"context"`
	Strategy    opt.Strategy          `json:"strategy"`
	CreatedAt   time.Time             `json:"createdAt"`
	Clusters    []*cluster.Cluster    `json:"clusters"`
	Assignments []*Assignment         `json:"assignments"`
	Membership  []cluster.Row         `json:"membership"`
	Unassigned  []Unassigned          `json:"unassigned"`
	Outcome     Outcome               `json:"outcome"`
	Warnings    []string              `json:"warnings,omitempty"`
	Table       []TableRow            `json:"table"`
	Audit       Audit                 `json:"audit"`
	Duration    time.Duration         `json:"duration"`
	Cached      bool                  `json:"cached,omitempty"`
}

// Planner holds the immutable inputs shared by every plan.
type Planner struct {
	Graph    *roadgraph.Graph
	Zones    *zones.Index
	Vehicles []fleet.Vehicle
	Config   Config
	Cache    Cache
}

func New(g *roadgraph.Graph, ix *zones.Index, vehicles []fleet.Vehicle, cfg Config) *Planner {
	return &Planner{Graph: g, Zones: ix, Vehicles: vehicles, Config: cfg}
}

// Plan computes a routing plan. Malformed input fails with a DataError and an
// unusable depot with a ConfigurationError; every other problem is reported in
// the result.
func (p *Planner) Plan(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	vehicles := in.Vehicles
	if len(vehicles) == 0 {
		vehicles = p.Vehicles
	}
	if err := fleet.ValidateVehicles(vehicles); err != nil {
		return nil, err
	}
	if err := fleet.ValidateDemands(in.Demands); err != nil {
		return nil, err
	}
	dc := p.Config.Context
	if in.Context != nil {
		dc = *in.Context
	}
	strategy := p.Config.Strategy
	if in.Strategy != "" {
		strategy = in.Strategy
	}
	params := p.Config.Assign
	if in.Params != nil {
		params = *in.Params
	}

	fp := Fingerprint(p.Graph.Version(), p.Zones.Version(), fleet.VehiclesVersion(vehicles), fleet.DemandsVersion(in.Demands),
		dc, string(strategy), params, p.Config)
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	if res, ok := p.cached(ctx, fp); ok {
		res.ID = id
		res.CreatedAt = time.Now().UTC()
		res.Duration = time.Since(start)
		return res, nil
	}

	clustering, warnings := cluster.Run(in.Demands, p.Zones, p.Config.Cluster)

	depot, err := ResolveDepot(p.Graph, p.Config.Depot, params.MaxSnapMeters)
	if err != nil {
		return nil, err
	}
	views, err := FilterFleet(ctx, p.Graph, p.Zones, vehicles, dc, p.Config.FilterWorkers)
	if err != nil {
		return nil, fmt.Errorf("filter fleet: %w", err)
	}
	if err := CheckDepot(views, depot); err != nil {
		return nil, err
	}

	eng := &Engine{
		Views:      views,
		Depot:      depot,
		DepotPoint: p.Config.Depot,
		Index:      p.Zones,
		Context:    dc,
		Builder:    opt.Builder{Strategy: strategy, MaxPasses: p.Config.MaxPasses},
		Params:     params,
	}
	alloc, err := eng.Assign(ctx, clustering.Clusters, vehicles, in.Demands)
	if err != nil {
		return nil, fmt.Errorf("assign: %w", err)
	}

	res := &Result{
		ID:          id,
		Fingerprint: fp,
		Context:     dc,
		Strategy:    strategy,
		CreatedAt:   time.Now().UTC(),
		Clusters:    clustering.Clusters,
		Assignments: alloc.Assignments,
		Membership:  clustering.Membership,
		Unassigned:  alloc.Unassigned,
		Outcome:     alloc.Outcome,
		Table:       BuildTable(alloc.Assignments, p.demandIndex(in.Demands), p.Config.SpeedKmph),
		Audit:       AuditAllocation(in.Demands, alloc),
	}
	for _, w := range warnings {
		res.Warnings = append(res.Warnings, w.Error())
	}
	res.Duration = time.Since(start)

	if !res.Audit.OK {
		log.Error().Ints("missing", res.Audit.Missing).Ints("duplicates", res.Audit.Duplicates).Str("plan", res.ID).Msg("planner: audit failed")
	}
	log.Info().Str("plan", res.ID).Int("routes", len(res.Assignments)).Int("assigned", res.Outcome.Assigned).
		Int("unassigned", res.Outcome.Unassigned).Dur("took", res.Duration).Msg("planner: plan complete")

	p.store(ctx, fp, res)
	return res, nil
}

func (p *Planner) demandIndex(ds []fleet.Demand) map[int]fleet.Demand {
	out := make(map[int]fleet.Demand, len(ds))
	for _, d := range ds {
		out[d.ID] = d
	}
	return out
}

func (p *Planner) cached(ctx context.Context, fp string) (*Result, bool) {
	if p.Cache == nil {
		return nil, false
	}
	b, ok, err := p.Cache.Get(ctx, fp)
	if err != nil {
		log.Warn().Err(err).Msg("planner: cache get")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		log.Warn().Err(err).Msg("planner: cache decode")
		return nil, false
	}
	res.Cached = true
	return &res, true
}

func (p *Planner) store(ctx context.Context, fp string, res *Result) {
	if p.Cache == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		log.Warn().Err(err).Msg("planner: cache encode")
		return
	}
	if err := p.Cache.Set(ctx, fp, b); err != nil {
		log.Warn().Err(err).Msg("planner: cache set")
	}
}

// Fingerprint identifies a plan by the versions of its inputs and its settings.
// Of cfg only the fields a request cannot override are read: the depot, the
// clustering params, MaxPasses and SpeedKmph.
func Fingerprint(graphVersion, zoneVersion, fleetVersion, demandVersion string, dc zones.DeliveryContext, strategy string, params Params, cfg Config) string {
	cp := cfg.Cluster
	d := xxhash.New()
	_, _ = fmt.Fprintf(d, "g=%s|z=%s|f=%s|d=%s|", graphVersion, zoneVersion, fleetVersion, demandVersion)
	_, _ = fmt.Fprintf(d, "c=%d,%d,%t|s=%s|", dc.Day, dc.Hour, dc.Holiday, strategy)
	_, _ = fmt.Fprintf(d, "p=%v,%v,%s,%t|", params.EfficiencyRatio, params.MaxSnapMeters, params.LeftoverPolicy, params.SpillRoutes)
	_, _ = fmt.Fprintf(d, "k=%v,%v,%v,%d,%v|", cp.BufferRadius, cp.MergeDistance, cp.MinSizeRatio, cp.MinSizeFloor, cp.Zones)
	_, _ = fmt.Fprintf(d, "o=%v,%v,%d,%v", cfg.Depot.Lon(), cfg.Depot.Lat(), cfg.MaxPasses, cfg.SpeedKmph)
	return strconv.FormatUint(d.Sum64(), 16)
}
