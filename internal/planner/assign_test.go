package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneroute/internal/cluster"
	"zoneroute/internal/fleet"
)

func westEastClusters() ([]fleet.Demand, []*cluster.Cluster) {
	ds := []fleet.Demand{
		at(1, 5, 2, 10), at(2, 5, 1, 10), at(3, 6, 1, 10),
		at(4, 5, 8, 10), at(5, 5, 9, 10), at(6, 6, 9, 10),
		at(7, 4, 9, 10),
	}
	cs := []*cluster.Cluster{
		{ID: "West", Seq: 1, Members: []int{1, 2, 3}},
		{ID: "East", Seq: 2, Members: []int{4, 5, 6}},
		{ID: "Corner", Seq: 3, Members: []int{7}, Requires: map[string]bool{"ZMRC": true}},
	}
	return ds, cs
}

func TestPrimaryPassAndFirstFitLeftover(t *testing.T) {
	g := testGraph(t)
	e := newEngine(t, g, testZones(), []fleet.Vehicle{truck(5000)}, tuesday10)
	ds, cs := westEastClusters()

	alloc, err := e.Assign(context.Background(), cs, []fleet.Vehicle{truck(5000)}, ds)
	require.NoError(t, err)
	require.Len(t, alloc.Assignments, 2)
	assert.Equal(t, "Route 1", alloc.Assignments[0].RouteID)
	assert.Equal(t, "Route 2", alloc.Assignments[1].RouteID)
	assert.Equal(t, []int{1, 2, 3, 7}, alloc.Assignments[0].DemandIDs())
	assert.Equal(t, ReassignedCluster, alloc.Assignments[0].Stops[3].ClusterID)
	assert.Equal(t, "West", alloc.Assignments[0].Stops[0].ClusterID)
	assert.Contains(t, alloc.Assignments[0].Path, cellID(4, 9))
	assert.Equal(t, 4, alloc.Assignments[0].StopCount)
	assert.InDelta(t, 40.0, alloc.Assignments[0].WeightKg, 1e-9)

	assert.Empty(t, alloc.Unassigned)
	assert.Equal(t, Outcome{Assigned: 7, Reassigned: 1, UnreachableSkips: 1}, alloc.Outcome)
}

func TestNearestFitLeftover(t *testing.T) {
	g := testGraph(t)
	e := newEngine(t, g, testZones(), []fleet.Vehicle{truck(5000)}, tuesday10)
	e.Params.LeftoverPolicy = NearestFit
	ds, cs := westEastClusters()

	alloc, err := e.Assign(context.Background(), cs, []fleet.Vehicle{truck(5000)}, ds)
	require.NoError(t, err)
	require.Len(t, alloc.Assignments, 2)
	assert.Equal(t, []int{1, 2, 3}, alloc.Assignments[0].DemandIDs())
	assert.Equal(t, []int{4, 5, 6, 7}, alloc.Assignments[1].DemandIDs())
}

func TestCapacityIsSharedAcrossRoutesOfAVehicle(t *testing.T) {
	g := testGraph(t)
	e := newEngine(t, g, testZones(), []fleet.Vehicle{truck(35)}, tuesday10)
	ds, cs := westEastClusters()

	alloc, err := e.Assign(context.Background(), cs, []fleet.Vehicle{truck(35)}, ds)
	require.NoError(t, err)
	require.Len(t, alloc.Assignments, 1)
	assert.Equal(t, []int{1, 2, 3}, alloc.Assignments[0].DemandIDs())

	assert.Equal(t, []Unassigned{
		{DemandID: 4, Reason: ReasonCapacity},
		{DemandID: 5, Reason: ReasonCapacity},
		{DemandID: 6, Reason: ReasonCapacity},
		{DemandID: 7, Reason: ReasonCapacity},
	}, alloc.Unassigned)
	assert.Equal(t, 1, alloc.Outcome.CapacityRejections)
	assert.Equal(t, 4, alloc.Outcome.Unassigned)
}

func TestInefficientRouteRejectsCandidate(t *testing.T) {
	g := testGraph(t)
	e := newEngine(t, g, testZones(), []fleet.Vehicle{truck(5000)}, tuesday10)
	e.Params.EfficiencyRatio = 0.5
	ds, cs := westEastClusters()

	alloc, err := e.Assign(context.Background(), cs[:2], []fleet.Vehicle{truck(5000)}, ds[:6])
	require.NoError(t, err)
	assert.Empty(t, alloc.Assignments)
	assert.Equal(t, 2, alloc.Outcome.RejectedCandidates)
	assert.Len(t, alloc.Unassigned, 6)
}

func TestLargestReachableVehicleWins(t *testing.T) {
	g := testGraph(t)
	vs := []fleet.Vehicle{van("AAA1B11"), vuc(), truck(5000)}
	e := newEngine(t, g, testZones(), vs, tuesday10)
	ds := []fleet.Demand{at(1, 1, 1, 5), at(2, 1, 2, 5), at(3, 2, 1, 5)}
	cs := []*cluster.Cluster{{ID: "ZMRC", Seq: 1, Members: []int{1, 2, 3}, Requires: map[string]bool{"ZMRC": true}}}

	alloc, err := e.Assign(context.Background(), cs, vs, ds)
	require.NoError(t, err)
	require.Len(t, alloc.Assignments, 1)
	assert.Equal(t, "vuc-1", alloc.Assignments[0].Vehicle.ID, "truck is barred from ZMRC")
	assert.Equal(t, 1, alloc.Outcome.UnreachableSkips)
}

func TestNotDeliverableDemandsStayOut(t *testing.T) {
	g := testGraph(t)
	e := newEngine(t, g, testZones(), []fleet.Vehicle{truck(5000)}, tuesday10)
	ds := []fleet.Demand{at(1, 3, 5, 5), at(2, 3, 6, 5), at(3, 2, 5, 5)}
	ds[1].AllowedHours = map[time.Weekday][]int{time.Tuesday: {14}}
	cs := []*cluster.Cluster{{ID: "Cluster 1", Seq: 1, Members: []int{1, 2, 3}}}

	alloc, err := e.Assign(context.Background(), cs, []fleet.Vehicle{truck(5000)}, ds)
	require.NoError(t, err)
	require.Len(t, alloc.Assignments, 1)
	assert.Equal(t, []int{1, 3}, alloc.Assignments[0].DemandIDs())
	assert.Equal(t, []Unassigned{{DemandID: 2, Reason: ReasonNotDeliverable}}, alloc.Unassigned)
}

func TestAssignHonoursCancellation(t *testing.T) {
	g := testGraph(t)
	e := newEngine(t, g, testZones(), []fleet.Vehicle{truck(5000)}, tuesday10)
	ds, cs := westEastClusters()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Assign(ctx, cs, []fleet.Vehicle{truck(5000)}, ds)
	assert.ErrorIs(t, err, context.Canceled)
}
