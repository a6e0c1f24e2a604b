package synthetic

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneroute/internal/fleet"
	"zoneroute/internal/planner"
)

func TestGridLayout(t *testing.T) {
	g, tagged, err := Grid(DefaultBound, DefaultStep)
	require.NoError(t, err)
	assert.Equal(t, 35*34, g.NodeCount())
	assert.Equal(t, 35*33+34*34, g.EdgeCount())
	// Four north-south roads of 34 blocks fall in the structural band.
	assert.Equal(t, 4*34, tagged)

	n, ok := g.Node(1)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-46.82, -23.72}, n.Point())
}

func TestZonesSpareTheDepot(t *testing.T) {
	ix := Zones(nil)
	assert.Empty(t, ix.Containing(planner.DefaultDepot))
	names := []string{}
	for _, z := range ix.Containing(fleet.DefaultCenter) {
		names = append(names, z.Name)
	}
	assert.ElementsMatch(t, []string{"ZMRC", "Rodizio"}, names)
}

func TestSyntheticDatasetPlans(t *testing.T) {
	ds, err := Source{}.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, fleet.ValidateVehicles(ds.Vehicles))

	p := planner.New(ds.Graph, ds.Zones, ds.Vehicles, planner.DefaultConfig())
	demands := fleet.Generator{Seed: 3}.Generate(40)
	res, err := p.Plan(context.Background(), planner.Input{Demands: demands})
	require.NoError(t, err)
	assert.True(t, res.Audit.OK)
	assert.Equal(t, 40, res.Audit.Total)
	assert.NotEmpty(t, res.Assignments)
}

func TestLoadHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Source{}.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
