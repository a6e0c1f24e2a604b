package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneroute/internal/fleet"
)

func TestBuildTableLayout(t *testing.T) {
	v := van("AAA1B11")
	ds := map[int]fleet.Demand{1: at(1, 3, 5, 100), 2: at(2, 3, 6, 50)}
	a := &Assignment{
		RouteID:   "Route 1",
		Vehicle:   v,
		Stops:     []Stop{{DemandID: 1, ClusterID: "Cluster 1"}, {DemandID: 2, ClusterID: ReassignedCluster}},
		WeightKg:  150,
		VolumeM3:  0.02,
		DistanceM: 4500,
	}

	rows := BuildTable([]*Assignment{a}, ds, 30)
	require.Len(t, rows, 5)
	assert.Equal(t, "START", rows[0].Stop)
	assert.Equal(t, "Warehouse", rows[0].Point)
	assert.Equal(t, "STOP 1", rows[1].Stop)
	assert.Equal(t, "1", rows[1].Point)
	assert.Equal(t, "Cluster 1", rows[1].ClusterID)
	assert.Equal(t, ReassignedCluster, rows[2].ClusterID)
	assert.Equal(t, "Van", rows[2].Type)
	assert.Equal(t, "END", rows[3].Stop)

	total := rows[4]
	assert.Equal(t, "Route 1 TOTAL", total.Route)
	assert.Equal(t, "30%", total.WeightPct)
	assert.Equal(t, "0%", total.VolumePct)
	assert.Equal(t, 4.5, total.DistanceKm)
	assert.Equal(t, 0.15, total.Hours)
}

func TestAuditFindsMissingAndDuplicates(t *testing.T) {
	ds := []fleet.Demand{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	ok := Allocation{
		Assignments: []*Assignment{{Stops: []Stop{{DemandID: 1}, {DemandID: 2}}}},
		Unassigned:  []Unassigned{{DemandID: 3}, {DemandID: 4}},
	}
	assert.True(t, AuditAllocation(ds, ok).OK)

	bad := Allocation{
		Assignments: []*Assignment{{Stops: []Stop{{DemandID: 1}, {DemandID: 2}}}, {Stops: []Stop{{DemandID: 2}}}},
		Unassigned:  []Unassigned{{DemandID: 4}},
	}
	au := AuditAllocation(ds, bad)
	assert.False(t, au.OK)
	assert.Equal(t, []int{3}, au.Missing)
	assert.Equal(t, []int{2}, au.Duplicates)
	assert.Equal(t, 3, au.Assigned)
}
