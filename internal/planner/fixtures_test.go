package planner

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/require"

	"zoneroute/internal/fleet"
	"zoneroute/internal/opt"
	"zoneroute/internal/roadgraph"
	"zoneroute/internal/zones"
)

// The test city is an 11×11 street grid, 0.002° apart, centred on the depot.
const (
	gridN    = 11
	gridStep = 0.002
)

var (
	tuesday8  = zones.DeliveryContext{Day: time.Tuesday, Hour: 8}
	tuesday10 = zones.DeliveryContext{Day: time.Tuesday, Hour: 10}
)

func cell(r, c int) orb.Point {
	return orb.Point{DefaultDepot.Lon() + float64(c-5)*gridStep, DefaultDepot.Lat() + float64(r-5)*gridStep}
}

func cellID(r, c int) roadgraph.NodeID { return roadgraph.NodeID(r*gridN + c + 1) }

var depotID = cellID(5, 5)

func testGraph(t *testing.T) *roadgraph.Graph {
	t.Helper()
	b := roadgraph.NewBuilder()
	for r := 0; r < gridN; r++ {
		for c := 0; c < gridN; c++ {
			p := cell(r, c)
			require.NoError(t, b.AddNode(cellID(r, c), p.Lat(), p.Lon()))
		}
	}
	link := func(r0, c0, r1, c1 int) {
		require.NoError(t, b.AddEdge(roadgraph.Edge{
			From:   cellID(r0, c0),
			To:     cellID(r1, c1),
			Length: geo.Distance(cell(r0, c0), cell(r1, c1)),
		}))
	}
	for r := 0; r < gridN; r++ {
		for c := 0; c < gridN; c++ {
			if c+1 < gridN {
				link(r, c, r, c+1)
			}
			if r+1 < gridN {
				link(r, c, r+1, c)
			}
		}
	}
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

// rect covers the cells r0..r1 × c0..c1.
func rect(r0, c0, r1, c1 int) orb.MultiPolygon {
	lo, hi := cell(r0, c0), cell(r1, c1)
	h := gridStep / 2
	ring := orb.Ring{
		{lo.Lon() - h, lo.Lat() - h}, {hi.Lon() + h, lo.Lat() - h},
		{hi.Lon() + h, hi.Lat() + h}, {lo.Lon() - h, hi.Lat() + h},
		{lo.Lon() - h, lo.Lat() - h},
	}
	return orb.MultiPolygon{{ring}}
}

// testZones puts ZMRC on the south-west corner and Rodizio on the north-east one.
func testZones() *zones.Index {
	rules := zones.DefaultRules()
	return zones.NewIndex(
		zones.NewZone("ZMRC", rect(0, 0, 2, 2), rules["ZMRC"]),
		zones.NewZone("Rodizio", rect(8, 8, 10, 10), rules["Rodizio"]),
	)
}

func at(id, r, c int, weight float64) fleet.Demand {
	p := cell(r, c)
	return fleet.Demand{ID: id, Lat: p.Lat() + 0.0001, Lng: p.Lon() + 0.0001, WeightKg: weight, VolumeM3: 0.01}
}

func van(plate string) fleet.Vehicle {
	return fleet.Vehicle{ID: "van-" + plate, Plate: plate, Class: zones.Van, MaxWeightKg: 500, LengthM: 2, WidthM: 1.5, HeightM: 1.5}
}

func vuc() fleet.Vehicle {
	return fleet.Vehicle{ID: "vuc-1", Plate: "BBB2C22", Class: zones.VUC, MaxWeightKg: 1500, LengthM: 4, WidthM: 2, HeightM: 2, Permits: map[string]bool{"ZMRC": true}}
}

func truck(maxKg float64) fleet.Vehicle {
	return fleet.Vehicle{ID: "truck-1", Plate: "CCC3D33", Class: zones.Truck, MaxWeightKg: maxKg, LengthM: 6, WidthM: 2.5, HeightM: 2.5}
}

func newEngine(t *testing.T, g *roadgraph.Graph, ix *zones.Index, vs []fleet.Vehicle, dc zones.DeliveryContext) *Engine {
	t.Helper()
	views, err := FilterFleet(context.Background(), g, ix, vs, dc, 2)
	require.NoError(t, err)
	depot, err := ResolveDepot(g, DefaultDepot, 1000)
	require.NoError(t, err)
	require.Equal(t, depotID, depot)
	return &Engine{
		Views:      views,
		Depot:      depot,
		DepotPoint: DefaultDepot,
		Index:      ix,
		Context:    dc,
		Builder:    opt.Builder{},
		Params:     DefaultParams(),
	}
}

type mapCache struct {
	m    map[string][]byte
	sets int
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, val []byte) error {
	if c.m == nil {
		c.m = map[string][]byte{}
	}
	c.m[key] = val
	c.sets++
	return nil
}
