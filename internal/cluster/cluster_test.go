package cluster

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneroute/internal/errs"
	"zoneroute/internal/fleet"
	"zoneroute/internal/zones"
)

const (
	lng0 = -46.65
	lat0 = -23.55
)

func demand(id int, dx, dy float64) fleet.Demand {
	return fleet.Demand{ID: id, Lng: lng0 + dx, Lat: lat0 + dy, WeightKg: 1, VolumeM3: 0.01}
}

func zmrcIndex() *zones.Index {
	ring := orb.Ring{
		{lng0 + 0.4, lat0 + 0.4}, {lng0 + 0.6, lat0 + 0.4}, {lng0 + 0.6, lat0 + 0.6}, {lng0 + 0.4, lat0 + 0.6}, {lng0 + 0.4, lat0 + 0.4},
	}
	return zones.NewIndex(zones.NewZone("ZMRC", orb.MultiPolygon{{ring}}, zones.DefaultRules()["ZMRC"]))
}

func onlyZMRC() Params {
	p := DefaultParams()
	p.Zones = []string{"ZMRC"}
	return p
}

func TestDisjointSet(t *testing.T) {
	ds := NewDisjointSet(6)
	assert.True(t, ds.Union(0, 3))
	assert.True(t, ds.Union(3, 5))
	assert.False(t, ds.Union(5, 0))
	assert.True(t, ds.Union(1, 2))
	assert.Equal(t, ds.Find(0), ds.Find(5))
	assert.NotEqual(t, ds.Find(0), ds.Find(1))
	assert.Equal(t, [][]int{{0, 3, 5}, {1, 2}, {4}}, ds.Groups())
}

func TestMinSize(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 3, p.MinSize(10))
	assert.Equal(t, 8, p.MinSize(100))
	assert.Equal(t, 3, p.MinSize(0))
}

func TestFreeDemandsMergeByDistance(t *testing.T) {
	ds := []fleet.Demand{
		demand(3, 0.02, 0), demand(1, 0, 0), demand(2, 0.01, 0),
		demand(4, 0.3, 0), demand(5, 0.31, 0), demand(6, 0.32, 0),
	}
	res, warnings := Run(ds, zmrcIndex(), onlyZMRC())
	assert.Empty(t, warnings)
	require.Len(t, res.Clusters, 2)
	assert.Equal(t, "Cluster 1", res.Clusters[0].ID)
	assert.Equal(t, []int{1, 2, 3}, res.Clusters[0].Members)
	assert.Equal(t, []int{4, 5, 6}, res.Clusters[1].Members)
	assert.Empty(t, res.Clusters[0].RequiredZones())
	assert.InDelta(t, lng0+0.01, res.Clusters[0].Centroid.Lon(), 1e-9)

	id, ok := res.ClusterOf(5)
	require.True(t, ok)
	assert.Equal(t, "Cluster 2", id)
	_, ok = res.ClusterOf(42)
	assert.False(t, ok)
}

func TestZoneBucketBecomesDedicatedCluster(t *testing.T) {
	ds := []fleet.Demand{
		demand(1, 0, 0), demand(2, 0.01, 0), demand(3, 0.02, 0),
		demand(4, 0.5, 0.5), demand(5, 0.51, 0.5), demand(6, 0.52, 0.5),
	}
	res, _ := Run(ds, zmrcIndex(), onlyZMRC())
	require.Len(t, res.Clusters, 2)
	z := res.Clusters[1]
	assert.Equal(t, "ZMRC", z.ID)
	assert.Equal(t, "ZMRC", z.Zone)
	assert.Equal(t, []int{4, 5, 6}, z.Members)
	assert.Equal(t, []string{"ZMRC"}, z.RequiredZones())
}

func TestSmallZoneBucketJoinsNearestFreeCluster(t *testing.T) {
	ds := []fleet.Demand{
		demand(1, 0, 0), demand(2, 0.01, 0), demand(3, 0.02, 0),
		demand(7, 0.31, 0), demand(8, 0.32, 0), demand(9, 0.33, 0),
		demand(4, 0.45, 0.45),
	}
	res, _ := Run(ds, zmrcIndex(), onlyZMRC())
	require.Len(t, res.Clusters, 2)
	assert.Equal(t, []int{4, 7, 8, 9}, res.Clusters[1].Members)
	assert.Equal(t, []string{"ZMRC"}, res.Clusters[1].RequiredZones())
	assert.Empty(t, res.Clusters[0].RequiredZones())
}

func TestForceMergeAdjacentSmallClusters(t *testing.T) {
	ds := []fleet.Demand{
		demand(1, 0, 0), demand(2, 0.01, 0),
		demand(3, 0.07, 0), demand(4, 0.08, 0),
	}
	res, _ := Run(ds, zmrcIndex(), onlyZMRC())
	require.Len(t, res.Clusters, 1)
	c := res.Clusters[0]
	assert.Equal(t, "Cluster 2", c.ID)
	assert.Equal(t, []int{1, 2, 3, 4}, c.Members)
	assert.GreaterOrEqual(t, len(c.Members), res.MinSize)
}

func TestForceMergeStopsAtSingleCluster(t *testing.T) {
	ds := []fleet.Demand{demand(1, 0, 0), demand(2, 0.2, 0)}
	res, _ := Run(ds, zmrcIndex(), onlyZMRC())
	require.Len(t, res.Clusters, 1)
	assert.Len(t, res.Clusters[0].Members, 2)
}

func TestForceMergePropagatesZoneFlags(t *testing.T) {
	ds := []fleet.Demand{
		demand(4, 0.5, 0.5), demand(5, 0.51, 0.5),
	}
	res, _ := Run(ds, zmrcIndex(), onlyZMRC())
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, []string{"ZMRC"}, res.Clusters[0].RequiredZones())

	ds = append(ds, demand(1, 0.3, 0.3), demand(2, 0.31, 0.3), demand(3, 0.32, 0.3), demand(6, 0.33, 0.3))
	res, _ = Run(ds, zmrcIndex(), onlyZMRC())
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, []string{"ZMRC"}, res.Clusters[0].RequiredZones())
	assert.Len(t, res.Clusters[0].Members, 6)
}

func TestMissingZoneIsWarningAndDemandsStayFree(t *testing.T) {
	ds := []fleet.Demand{demand(1, 0, 0), demand(2, 0.01, 0), demand(3, 0.02, 0)}
	res, warnings := Run(ds, zones.NewIndex(), DefaultParams())
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		assert.True(t, errs.Is(w, errs.DataError))
	}
	require.Len(t, res.Clusters, 1)
	assert.Len(t, res.Membership, 3)
}

func TestClusteringIsIdempotentAndCovering(t *testing.T) {
	ds := fleet.Generator{Seed: 11}.Generate(80)
	a, _ := Run(ds, zmrcIndex(), DefaultParams())

	shuffled := append([]fleet.Demand(nil), ds...)
	for i, j := 0, len(shuffled)-1; i < j; i, j = i+1, j-1 {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	b, _ := Run(shuffled, zmrcIndex(), DefaultParams())
	assert.Equal(t, a.Membership, b.Membership)

	require.Len(t, a.Membership, len(ds))
	seen := map[int]bool{}
	total := 0
	for _, c := range a.Clusters {
		total += len(c.Members)
		for _, id := range c.Members {
			assert.False(t, seen[id], "demand %d in two clusters", id)
			seen[id] = true
		}
		if len(a.Clusters) > 1 {
			assert.GreaterOrEqual(t, len(c.Members), a.MinSize)
		}
	}
	assert.Equal(t, len(ds), total)
}
