// Package fsjson loads a dataset from files in a directory:
//
//	graph.json     {"nodes": [{"id","lat","lng"}], "edges": [{"from","to","length","name","oneway"}]}
//	fleet.json     {"vehicles": [{"license_plate","type","max_weight_kg","length_m","width_m","height_m","has_aetc"}]}
//	zones.geojson  polygon features with a "name" property
//	rules.yaml     optional zone rules
package fsjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"zoneroute/internal/errs"
	"zoneroute/internal/fleet"
	"zoneroute/internal/integrations"
	"zoneroute/internal/roadgraph"
	"zoneroute/internal/zones"
)

const (
	GraphFile = "graph.json"
	FleetFile = "fleet.json"
	ZonesFile = "zones.geojson"
	RulesFile = "rules.yaml"
)

type Source struct {
	Dir string
	// RulesPath overrides Dir/rules.yaml.
	RulesPath string
}

func (s Source) Name() string { return "fsjson:" + s.Dir }

func (s Source) Load(ctx context.Context) (integrations.Dataset, error) {
	var ds integrations.Dataset

	g, tagged, err := s.loadGraph()
	if err != nil {
		return ds, err
	}
	ds.Graph = g
	if err := ctx.Err(); err != nil {
		return ds, err
	}

	rules, err := s.loadRules()
	if err != nil {
		return ds, err
	}
	zb, err := os.ReadFile(filepath.Join(s.Dir, ZonesFile))
	if err != nil {
		return ds, errs.E(errs.DataError, "load zones", ZonesFile, err)
	}
	ix, warnings := zones.LoadGeoJSON(zb, rules)
	ds.Zones = ix
	ds.Warnings = append(ds.Warnings, warnings...)

	vs, err := s.loadFleet()
	if err != nil {
		return ds, err
	}
	ds.Vehicles = vs

	log.Info().Str("dir", s.Dir).Int("nodes", g.NodeCount()).Int("edges", g.EdgeCount()).Int("restricted", tagged).
		Int("zones", len(ix.Zones())).Int("vehicles", len(vs)).Int("warnings", len(ds.Warnings)).Msg("fsjson: dataset loaded")
	return ds, nil
}

type graphDoc struct {
	Nodes []roadgraph.Node `json:"nodes"`
	Edges []roadgraph.Edge `json:"edges"`
}

func (s Source) loadGraph() (*roadgraph.Graph, int, error) {
	b, err := os.ReadFile(filepath.Join(s.Dir, GraphFile))
	if err != nil {
		return nil, 0, errs.E(errs.DataError, "load graph", GraphFile, err)
	}
	var doc graphDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, 0, errs.E(errs.DataError, "load graph", GraphFile, err)
	}
	gb := roadgraph.NewBuilder()
	for _, n := range doc.Nodes {
		if err := gb.AddNode(n.ID, n.Lat, n.Lng); err != nil {
			return nil, 0, err
		}
	}
	for _, e := range doc.Edges {
		if err := gb.AddEdge(e); err != nil {
			return nil, 0, err
		}
	}
	tagged := gb.TagRestricted(roadgraph.DefaultRestrictionRules())
	g, err := gb.Build()
	return g, tagged, err
}

func (s Source) loadRules() (zones.RuleSet, error) {
	if s.RulesPath != "" {
		return integrations.LoadRules(s.RulesPath)
	}
	path := filepath.Join(s.Dir, RulesFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return zones.DefaultRules(), nil
	}
	return integrations.LoadRules(path)
}

// vehicleDoc is the fleet file record.
type vehicleDoc struct {
	ID          string   `json:"id"`
	Plate       string   `json:"license_plate"`
	Type        string   `json:"type"`
	MaxWeightKg float64  `json:"max_weight_kg"`
	LengthM     float64  `json:"length_m"`
	WidthM      float64  `json:"width_m"`
	HeightM     float64  `json:"height_m"`
	HasAETC     bool     `json:"has_aetc"`
	Permits     []string `json:"permits"`
}

func (s Source) loadFleet() ([]fleet.Vehicle, error) {
	b, err := os.ReadFile(filepath.Join(s.Dir, FleetFile))
	if err != nil {
		return nil, errs.E(errs.DataError, "load fleet", FleetFile, err)
	}
	var doc struct {
		Vehicles []vehicleDoc `json:"vehicles"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errs.E(errs.DataError, "load fleet", FleetFile, err)
	}
	out := make([]fleet.Vehicle, 0, len(doc.Vehicles))
	for i, d := range doc.Vehicles {
		v, err := d.vehicle()
		if err != nil {
			return nil, errs.E(errs.DataError, "load fleet", fmt.Sprintf("vehicle %d", i), err)
		}
		out = append(out, v)
	}
	if err := fleet.ValidateVehicles(out); err != nil {
		return nil, err
	}
	return out, nil
}

// vehicle converts a record. An AETC licence is the ZMRC access permit.
func (d vehicleDoc) vehicle() (fleet.Vehicle, error) {
	cls, err := zones.ParseClass(d.Type)
	if err != nil {
		return fleet.Vehicle{}, err
	}
	id := d.ID
	if id == "" {
		id = d.Plate
	}
	v := fleet.Vehicle{
		ID: id, Plate: d.Plate, Class: cls,
		MaxWeightKg: d.MaxWeightKg, LengthM: d.LengthM, WidthM: d.WidthM, HeightM: d.HeightM,
	}
	if d.HasAETC || len(d.Permits) > 0 {
		v.Permits = map[string]bool{}
		if d.HasAETC {
			v.Permits["ZMRC"] = true
		}
		for _, p := range d.Permits {
			v.Permits[p] = true
		}
	}
	return v, nil
}
