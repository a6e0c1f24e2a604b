// Package synthetic builds a reproducible demo dataset: a grid road network
// over the delivery area with rectangular restriction zones and a small mixed
// fleet.
package synthetic

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rs/zerolog/log"

	"zoneroute/internal/fleet"
	"zoneroute/internal/integrations"
	"zoneroute/internal/roadgraph"
	"zoneroute/internal/zones"
)

// Default grid: 0.01 degree blocks covering the 15 km generator disc.
var DefaultBound = orb.Bound{Min: orb.Point{-46.82, -23.72}, Max: orb.Point{-46.49, -23.38}}

const DefaultStep = 0.01

type Source struct {
	Bound orb.Bound
	Step  float64
	Rules zones.RuleSet
}

func (s Source) Name() string { return "synthetic" }

func (s Source) Load(ctx context.Context) (integrations.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return integrations.Dataset{}, err
	}
	bound, step := s.Bound, s.Step
	if bound == (orb.Bound{}) {
		bound = DefaultBound
	}
	if step <= 0 {
		step = DefaultStep
	}
	rules := s.Rules
	if rules == nil {
		rules = zones.DefaultRules()
	}

	g, tagged, err := Grid(bound, step)
	if err != nil {
		return integrations.Dataset{}, err
	}
	ds := integrations.Dataset{
		Graph:    g,
		Zones:    Zones(rules),
		Vehicles: Fleet(),
	}
	log.Info().Int("nodes", g.NodeCount()).Int("edges", g.EdgeCount()).Int("restricted", tagged).
		Int("vehicles", len(ds.Vehicles)).Msg("synthetic: dataset built")
	return ds, nil
}

// verBand is the longitude span of the north-south structural roads.
var verBand = [2]float64{-46.60, -46.57}

// Grid lays out a rectangular street grid. Node ids run row by row from the
// south-west corner starting at 1. North-south roads inside the structural
// road band are named so that restriction tagging marks them.
func Grid(b orb.Bound, step float64) (*roadgraph.Graph, int, error) {
	rows := int(math.Round((b.Max.Lat()-b.Min.Lat())/step)) + 1
	cols := int(math.Round((b.Max.Lon()-b.Min.Lon())/step)) + 1
	id := func(r, c int) roadgraph.NodeID { return roadgraph.NodeID(r*cols + c + 1) }
	pt := func(r, c int) orb.Point {
		return orb.Point{round(b.Min.Lon()+float64(c)*step, 6), round(b.Min.Lat()+float64(r)*step, 6)}
	}

	gb := roadgraph.NewBuilder()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p := pt(r, c)
			if err := gb.AddNode(id(r, c), p.Lat(), p.Lon()); err != nil {
				return nil, 0, err
			}
		}
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c+1 < cols {
				e := roadgraph.Edge{From: id(r, c), To: id(r, c+1), Length: geo.DistanceHaversine(pt(r, c), pt(r, c+1)), Name: fmt.Sprintf("Rua %d", r+1)}
				if err := gb.AddEdge(e); err != nil {
					return nil, 0, err
				}
			}
			if r+1 < rows {
				name := fmt.Sprintf("Avenida %d", c+1)
				if lon := pt(r, c).Lon(); lon >= verBand[0] && lon <= verBand[1] {
					name = fmt.Sprintf("Corredor VER %d", c+1)
				}
				e := roadgraph.Edge{From: id(r, c), To: id(r+1, c), Length: geo.DistanceHaversine(pt(r, c), pt(r+1, c)), Name: name}
				if err := gb.AddEdge(e); err != nil {
					return nil, 0, err
				}
			}
		}
	}
	tagged := gb.TagRestricted(roadgraph.DefaultRestrictionRules())
	g, err := gb.Build()
	return g, tagged, err
}

// Zones returns the demo zones: the central ZMRC, the rotation area around
// it and the structural road band. None of them covers the default depot.
func Zones(rules zones.RuleSet) *zones.Index {
	return zones.NewIndex(
		zones.NewZone("ZMRC", rect(-46.68, -23.58, -46.61, -23.52), rules["ZMRC"]),
		zones.NewZone("Rodizio", rect(-46.72, -23.63, -46.56, -23.51), rules["Rodizio"]),
		zones.NewZone("VER", rect(verBand[0]-0.005, -23.66, verBand[1]+0.005, -23.50), rules["VER"]),
	)
}

func rect(minLng, minLat, maxLng, maxLat float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{minLng, minLat}, {maxLng, minLat}, {maxLng, maxLat}, {minLng, maxLat}, {minLng, minLat},
	}}}
}

// Fleet is the demo fleet. Plates end in different digits so the rotation
// rules split it.
func Fleet() []fleet.Vehicle {
	return []fleet.Vehicle{
		{ID: "truck-1", Plate: "TRK1A01", Class: zones.Truck, MaxWeightKg: 8000, LengthM: 7, WidthM: 2.5, HeightM: 2.6},
		{ID: "truck-2", Plate: "TRK2B04", Class: zones.Truck, MaxWeightKg: 8000, LengthM: 7, WidthM: 2.5, HeightM: 2.6},
		{ID: "vuc-1", Plate: "VUC3C05", Class: zones.VUC, MaxWeightKg: 3000, LengthM: 4.5, WidthM: 2.2, HeightM: 2.2, Permits: map[string]bool{"ZMRC": true}},
		{ID: "vuc-2", Plate: "VUC4D08", Class: zones.VUC, MaxWeightKg: 3000, LengthM: 4.5, WidthM: 2.2, HeightM: 2.2},
		{ID: "van-1", Plate: "VAN5E02", Class: zones.Van, MaxWeightKg: 900, LengthM: 2.8, WidthM: 1.6, HeightM: 1.6},
		{ID: "van-2", Plate: "VAN6F07", Class: zones.Van, MaxWeightKg: 900, LengthM: 2.8, WidthM: 1.6, HeightM: 1.6},
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
