package planner

import (
	"math"
	"sort"
	"strconv"

	"zoneroute/internal/fleet"
)

const warehouse = "Warehouse"

// TableRow is one line of the delivery table.
type TableRow struct {
	Route      string  `json:"route"`
	VehicleID  string  `json:"vehicleId,omitempty"`
	Plate      string  `json:"licensePlate,omitempty"`
	Type       string  `json:"type,omitempty"`
	Stop       string  `json:"stop,omitempty"`
	Point      string  `json:"point,omitempty"`
	Lat        float64 `json:"lat,omitempty"`
	Lng        float64 `json:"lng,omitempty"`
	WeightKg   float64 `json:"weightKg,omitempty"`
	VolumeM3   float64 `json:"volumeM3,omitempty"`
	ClusterID  string  `json:"clusterId,omitempty"`
	WeightPct  string  `json:"weightPct,omitempty"`
	VolumePct  string  `json:"volumePct,omitempty"`
	DistanceKm float64 `json:"distanceKm,omitempty"`
	Hours      float64 `json:"hours,omitempty"`
}

// BuildTable lays out every route as START, one STOP per demand, END and a
// TOTAL line with load percentages and the travel time at speedKmph.
func BuildTable(as []*Assignment, demands map[int]fleet.Demand, speedKmph float64) []TableRow {
	if speedKmph <= 0 {
		speedKmph = 30
	}
	var rows []TableRow
	for _, a := range as {
		v := a.Vehicle
		head := TableRow{Route: a.RouteID, VehicleID: v.ID, Plate: v.Plate, Type: v.Class.String()}

		start := head
		start.Stop, start.Point = "START", warehouse
		rows = append(rows, start)

		for i, s := range a.Stops {
			d := demands[s.DemandID]
			row := head
			row.Stop = "STOP " + strconv.Itoa(i+1)
			row.Point = strconv.Itoa(d.ID)
			row.Lat, row.Lng = d.Lat, d.Lng
			row.WeightKg, row.VolumeM3 = d.WeightKg, d.VolumeM3
			row.ClusterID = s.ClusterID
			rows = append(rows, row)
		}

		end := head
		end.Stop, end.Point = "END", warehouse
		rows = append(rows, end)

		km := round2(a.DistanceM / 1000)
		rows = append(rows, TableRow{
			Route:      a.RouteID + " TOTAL",
			WeightKg:   round2(a.WeightKg),
			VolumeM3:   round2(a.VolumeM3),
			WeightPct:  percent(a.WeightKg, v.MaxWeightKg),
			VolumePct:  percent(a.VolumeM3, v.VolumeM3()),
			DistanceKm: km,
			Hours:      round2(km / speedKmph),
		})
	}
	return rows
}

func percent(part, whole float64) string {
	if whole <= 0 {
		return ""
	}
	return strconv.Itoa(int(math.Round(part/whole*100))) + "%"
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Audit checks that every input demand is accounted for exactly once.
type Audit struct {
	Total      int   `json:"total"`
	Assigned   int   `json:"assigned"`
	Unassigned int   `json:"unassigned"`
	Missing    []int `json:"missing,omitempty"`
	Duplicates []int `json:"duplicates,omitempty"`
	OK         bool  `json:"ok"`
}

func AuditAllocation(demands []fleet.Demand, alloc Allocation) Audit {
	seen := map[int]int{}
	au := Audit{Total: len(demands)}
	for _, a := range alloc.Assignments {
		for _, s := range a.Stops {
			seen[s.DemandID]++
			au.Assigned++
		}
	}
	for _, u := range alloc.Unassigned {
		seen[u.DemandID]++
		au.Unassigned++
	}
	for _, d := range demands {
		switch n := seen[d.ID]; {
		case n == 0:
			au.Missing = append(au.Missing, d.ID)
		case n > 1:
			au.Duplicates = append(au.Duplicates, d.ID)
		}
	}
	sort.Ints(au.Missing)
	sort.Ints(au.Duplicates)
	au.OK = len(au.Missing) == 0 && len(au.Duplicates) == 0 && au.Assigned+au.Unassigned == au.Total
	return au
}
