package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneroute/internal/errs"
	"zoneroute/internal/roadgraph"
)

// grid builds an n×n lattice with 100m blocks; node ids are r*n+c+1.
// Node 999 is isolated.
func grid(t *testing.T, n int) *roadgraph.Graph {
	t.Helper()
	b := roadgraph.NewBuilder()
	id := func(r, c int) roadgraph.NodeID { return roadgraph.NodeID(r*n + c + 1) }
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			require.NoError(t, b.AddNode(id(r, c), -23.5+float64(r)*0.001, -46.65+float64(c)*0.001))
		}
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if c+1 < n {
				require.NoError(t, b.AddEdge(roadgraph.Edge{From: id(r, c), To: id(r, c+1), Length: 100}))
			}
			if r+1 < n {
				require.NoError(t, b.AddEdge(roadgraph.Edge{From: id(r, c), To: id(r+1, c), Length: 100}))
			}
		}
	}
	require.NoError(t, b.AddNode(999, -23.4, -46.5))
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func assertClosedCover(t *testing.T, r Route, depot roadgraph.NodeID, stops []roadgraph.NodeID) {
	t.Helper()
	require.NotEmpty(t, r.Path)
	assert.Equal(t, depot, r.Path[0])
	assert.Equal(t, depot, r.Path[len(r.Path)-1])
	for _, s := range stops {
		assert.Contains(t, r.Path, s)
	}
	for i := 0; i+1 < len(r.Path); i++ {
		assert.NotEqual(t, r.Path[i], r.Path[i+1], "junction duplicated at %d", i)
	}
}

func TestNearest2OptVisitsCorners(t *testing.T) {
	g := grid(t, 4)
	stops := []roadgraph.NodeID{16, 4, 13, 4}
	r, err := Builder{}.Build(g.Full(), 1, stops)
	require.NoError(t, err)
	assertClosedCover(t, r, 1, stops)
	assert.Equal(t, []roadgraph.NodeID{4, 16, 13}, r.Order)
	assert.Equal(t, 1200.0, r.DistanceM)

	l, err := g.Full().PathLength(r.Path)
	require.NoError(t, err)
	assert.Equal(t, l, r.DistanceM)
}

func TestTSPStrategyVisitsCorners(t *testing.T) {
	g := grid(t, 4)
	stops := []roadgraph.NodeID{16, 4, 13}
	r, err := Builder{Strategy: StrategyTSP}.Build(g.Full(), 1, stops)
	require.NoError(t, err)
	assertClosedCover(t, r, 1, stops)
	assert.Equal(t, 1200.0, r.DistanceM)
	assert.Zero(t, r.Swaps)
}

func TestBuildOnlyDepot(t *testing.T) {
	g := grid(t, 2)
	r, err := Builder{}.Build(g.Full(), 1, []roadgraph.NodeID{1})
	require.NoError(t, err)
	assert.Equal(t, []roadgraph.NodeID{1}, r.Path)
	assert.Zero(t, r.DistanceM)
	assert.Empty(t, r.Order)
}

func TestBuildFailsOnUnreachableStop(t *testing.T) {
	resetStrategyStats()
	g := grid(t, 3)
	_, err := Builder{}.Build(g.Full(), 1, []roadgraph.NodeID{5, 999})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.RoutingError))

	_, err = Builder{Strategy: StrategyTSP}.Build(g.Exclude([]roadgraph.NodeID{1}), 1, []roadgraph.NodeID{5})
	assert.True(t, errs.Is(err, errs.RoutingError))

	_, err = Builder{}.Build(g.Full(), 1, []roadgraph.NodeID{9})
	require.NoError(t, err)

	stats := StrategyStats()
	assert.Equal(t, Counters{Routes: 1, Failures: 1, DistanceM: 800, Swaps: stats[StrategyNearest2Opt].Swaps}, stats[StrategyNearest2Opt])
	assert.Equal(t, 1, stats[StrategyTSP].Failures)
}

func TestBuildDetoursAroundExcludedNodes(t *testing.T) {
	g := grid(t, 3)
	v := g.Exclude([]roadgraph.NodeID{2})
	r, err := Builder{}.Build(v, 1, []roadgraph.NodeID{3})
	require.NoError(t, err)
	assert.NotContains(t, r.Path, roadgraph.NodeID(2))
	assert.Equal(t, 800.0, r.DistanceM)
}

func TestImprove2OptStrictlyShortens(t *testing.T) {
	pts := [][2]float64{{0, 0}, {1, 1}, {1, 0}, {0, 1}}
	cost := func(i, j int) float64 {
		return math.Hypot(pts[i][0]-pts[j][0], pts[i][1]-pts[j][1])
	}
	start := []int{0, 1, 2, 3, 0}
	before := tourLength(start, cost)

	tour, swaps := improve2Opt(start, cost, 0)
	assert.Positive(t, swaps)
	assert.InDelta(t, 4.0, tourLength(tour, cost), 1e-9)
	assert.Less(t, tourLength(tour, cost), before)
	assert.Equal(t, 0, tour[0])
	assert.Equal(t, 0, tour[len(tour)-1])
	assert.Equal(t, []int{0, 1, 2, 3, 0}, start, "input must not be modified")

	again, swaps := improve2Opt(tour, cost, 0)
	assert.Zero(t, swaps)
	assert.Equal(t, tour, again)
}

func TestNearestNeighbourTiesGoToLowerIndex(t *testing.T) {
	cost := func(i, j int) float64 { return 1 }
	assert.Equal(t, []int{0, 1, 2, 3, 0}, nearestNeighbour(4, cost))
}

func TestDoubleTreeTourOnLine(t *testing.T) {
	pos := []float64{0, 3, 1, 4, 2}
	cost := func(i, j int) float64 { return math.Abs(pos[i] - pos[j]) }
	assert.Equal(t, []int{0, 2, 4, 1, 3, 0}, doubleTreeTour(len(pos), cost))
}

func TestRotateTo(t *testing.T) {
	assert.Equal(t, []int{2, 0, 1, 2}, rotateTo([]int{1, 2, 0, 1}, 2))
	assert.Equal(t, []int{0, 1, 0}, rotateTo([]int{0, 1, 0}, 0))
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("tsp")
	require.NoError(t, err)
	assert.Equal(t, StrategyTSP, s)
	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyNearest2Opt, s)
	_, err = ParseStrategy("annealing")
	assert.True(t, errs.Is(err, errs.ConfigurationError))
}
