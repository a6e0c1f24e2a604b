package fleet

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneroute/internal/errs"
	"zoneroute/internal/zones"
)

func TestSortVehiclesLargestFirst(t *testing.T) {
	vs := []Vehicle{
		{ID: "small", MaxWeightKg: 500, LengthM: 2, WidthM: 1, HeightM: 1},
		{ID: "big-narrow", MaxWeightKg: 3000, LengthM: 4, WidthM: 2, HeightM: 2},
		{ID: "big-wide", MaxWeightKg: 3000, LengthM: 6, WidthM: 2, HeightM: 2},
		{ID: "small-2", MaxWeightKg: 500, LengthM: 2, WidthM: 1, HeightM: 1},
	}
	sorted := SortVehicles(vs)
	ids := make([]string, len(sorted))
	for i, v := range sorted {
		ids[i] = v.ID
	}
	assert.Equal(t, []string{"big-wide", "big-narrow", "small", "small-2"}, ids)
	assert.Equal(t, "small", vs[0].ID, "input must not be reordered")
}

func TestPlateDigitAndProfile(t *testing.T) {
	v := Vehicle{ID: "v1", Plate: "ABC1D23", Class: zones.VUC, Permits: map[string]bool{"ZMRC": true, "VER": false}}
	d, ok := v.PlateDigit()
	require.True(t, ok)
	assert.Equal(t, 3, d)
	assert.Equal(t, "VUC|3|ZMRC", v.Profile())

	_, ok = Vehicle{Plate: "NOPLATE"}.PlateDigit()
	assert.False(t, ok)
}

func TestVehicleJSONUsesClassNames(t *testing.T) {
	var v Vehicle
	require.NoError(t, json.Unmarshal([]byte(`{"id":"t1","licensePlate":"XYZ9A87","type":"Truck","maxWeightKg":8000,"lengthM":7,"widthM":2.5,"heightM":2.8}`), &v))
	assert.Equal(t, zones.Truck, v.Class)
	assert.InDelta(t, 49.0, v.VolumeM3(), 1e-9)

	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"Truck"`)
}

func TestDeliverable(t *testing.T) {
	d := Demand{ID: 1, AllowedHours: map[time.Weekday][]int{time.Tuesday: {9, 10}}}
	assert.True(t, d.Deliverable(zones.DeliveryContext{Day: time.Tuesday, Hour: 10}))
	assert.False(t, d.Deliverable(zones.DeliveryContext{Day: time.Tuesday, Hour: 11}))
	assert.False(t, d.Deliverable(zones.DeliveryContext{Day: time.Monday, Hour: 10}))
	assert.True(t, Demand{ID: 2}.Deliverable(zones.DeliveryContext{Day: time.Sunday}))
}

func TestValidation(t *testing.T) {
	good := Vehicle{ID: "v", Class: zones.Van, MaxWeightKg: 10, LengthM: 1, WidthM: 1, HeightM: 1}
	require.NoError(t, ValidateVehicles([]Vehicle{good}))
	assert.True(t, errs.Is(ValidateVehicles([]Vehicle{good, good}), errs.DataError))

	noClass := good
	noClass.ID, noClass.Class = "w", 0
	assert.True(t, errs.Is(ValidateVehicles([]Vehicle{noClass}), errs.DataError))

	empty := good
	empty.ID, empty.HeightM = "x", 0
	assert.True(t, errs.Is(ValidateVehicles([]Vehicle{empty}), errs.DataError))

	require.NoError(t, ValidateDemands([]Demand{{ID: 1, Lat: -23.5, Lng: -46.6}}))
	assert.True(t, errs.Is(ValidateDemands([]Demand{{ID: 1}, {ID: 1}}), errs.DataError))
	assert.True(t, errs.Is(ValidateDemands([]Demand{{ID: 1, Lat: 95}}), errs.DataError))
	assert.True(t, errs.Is(ValidateDemands([]Demand{{ID: 1, WeightKg: -1}}), errs.DataError))
	assert.True(t, errs.Is(ValidateDemands([]Demand{{ID: 1, WeightKg: math.NaN()}}), errs.DataError))
	assert.True(t, errs.Is(ValidateDemands([]Demand{{ID: 1, VolumeM3: math.Inf(1)}}), errs.DataError))
	assert.True(t, errs.Is(ValidateDemands([]Demand{{ID: 1, WeightKg: math.Inf(-1)}}), errs.DataError))
}

func TestDemandsVersionIgnoresOrder(t *testing.T) {
	a := []Demand{{ID: 1, Lat: 1}, {ID: 2, Lat: 2}}
	b := []Demand{{ID: 2, Lat: 2}, {ID: 1, Lat: 1}}
	assert.Equal(t, DemandsVersion(a), DemandsVersion(b))
	b[0].WeightKg = 5
	assert.NotEqual(t, DemandsVersion(a), DemandsVersion(b))
}

func TestGeneratorIsSeededAndBounded(t *testing.T) {
	g := Generator{Seed: 42}
	a, b := g.Generate(50), g.Generate(50)
	require.Len(t, a, 50)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Generator{Seed: 7}.Generate(50))

	for _, d := range a {
		assert.LessOrEqual(t, geo.Distance(DefaultCenter, d.Point()), DefaultRadiusKm*1000+5)
		assert.GreaterOrEqual(t, d.WeightKg, 1.0)
		assert.LessOrEqual(t, d.WeightKg, 30.0)
		assert.GreaterOrEqual(t, d.VolumeM3, 0.01)
		assert.LessOrEqual(t, d.VolumeM3, 0.2)
		assert.Contains(t, []Priority{High, Medium, Low}, d.Priority)
	}
	require.NoError(t, ValidateDemands(a))
}
