// Package fleet holds the vehicles and delivery demands of a routing run.
package fleet

import (
	"encoding/binary"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"

	"zoneroute/internal/errs"
	"zoneroute/internal/zones"
)

// Vehicle is a delivery vehicle. It is immutable for the duration of a run.
type Vehicle struct {
	ID          string          `json:"id"`
	Plate       string          `json:"licensePlate"`
	Class       zones.Class     `json:"type"`
	MaxWeightKg float64         `json:"maxWeightKg"`
	LengthM     float64         `json:"lengthM"`
	WidthM      float64         `json:"widthM"`
	HeightM     float64         `json:"heightM"`
	Permits     map[string]bool `json:"permits,omitempty"`
}

// VolumeM3 is the cargo volume derived from the body dimensions.
func (v Vehicle) VolumeM3() float64 { return v.LengthM * v.WidthM * v.HeightM }

func (v Vehicle) VehicleClass() zones.Class { return v.Class }

// PlateDigit returns the last digit found in the licence plate.
func (v Vehicle) PlateDigit() (int, bool) {
	for i := len(v.Plate) - 1; i >= 0; i-- {
		if r := rune(v.Plate[i]); unicode.IsDigit(r) {
			return int(r - '0'), true
		}
	}
	return 0, false
}

func (v Vehicle) HasPermit(zone string) bool { return v.Permits[zone] }

// Profile identifies vehicles that zone rules cannot tell apart.
func (v Vehicle) Profile() string {
	digit, ok := v.PlateDigit()
	key := v.Class.String() + "|"
	if ok {
		key += strconv.Itoa(digit)
	}
	names := make([]string, 0, len(v.Permits))
	for z, on := range v.Permits {
		if on {
			names = append(names, z)
		}
	}
	sort.Strings(names)
	return key + "|" + strings.Join(names, ",")
}

// SortVehicles orders vehicles by capacity, largest first: max weight, then
// volume. Equal vehicles keep their input order.
func SortVehicles(vs []Vehicle) []Vehicle {
	out := append([]Vehicle(nil), vs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MaxWeightKg != out[j].MaxWeightKg {
			return out[i].MaxWeightKg > out[j].MaxWeightKg
		}
		return out[i].VolumeM3() > out[j].VolumeM3()
	})
	return out
}

// Priority of a demand.
type Priority string

const (
	High   Priority = "High"
	Medium Priority = "Medium"
	Low    Priority = "Low"
)

// Demand is one delivery to make.
type Demand struct {
	ID       int      `json:"id"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	WeightKg float64  `json:"weightKg"`
	VolumeM3 float64  `json:"volumeM3"`
	Priority Priority `json:"priority,omitempty"`
	// Zone is an optional zone name recorded by the producer of the demand.
	Zone string `json:"zone,omitempty"`
	// AllowedHours restricts delivery to the listed hours per weekday.
	AllowedHours map[time.Weekday][]int `json:"allowedHours,omitempty"`
}

func (d Demand) Point() orb.Point { return orb.Point{d.Lng, d.Lat} }

// Deliverable reports whether the demand accepts a delivery at dc.
func (d Demand) Deliverable(dc zones.DeliveryContext) bool {
	if len(d.AllowedHours) == 0 {
		return true
	}
	return slices.Contains(d.AllowedHours[dc.Day], dc.Hour)
}

// SortDemands returns the demands ordered by id.
func SortDemands(ds []Demand) []Demand {
	out := append([]Demand(nil), ds...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidateVehicles checks capacities and id uniqueness.
func ValidateVehicles(vs []Vehicle) error {
	seen := map[string]bool{}
	for _, v := range vs {
		if v.ID == "" {
			return errs.Ef(errs.DataError, "validate fleet", v.Plate, "missing id")
		}
		if seen[v.ID] {
			return errs.Ef(errs.DataError, "validate fleet", v.ID, "duplicate id")
		}
		seen[v.ID] = true
		if v.Class < zones.Van || v.Class > zones.Truck {
			return errs.Ef(errs.DataError, "validate fleet", v.ID, "unknown class %d", v.Class)
		}
		if v.MaxWeightKg <= 0 || v.VolumeM3() <= 0 {
			return errs.Ef(errs.DataError, "validate fleet", v.ID, "capacity must be positive")
		}
	}
	return nil
}

// ValidateDemands checks ids, coordinates and loads.
func ValidateDemands(ds []Demand) error {
	seen := map[int]bool{}
	for _, d := range ds {
		subject := "demand " + strconv.Itoa(d.ID)
		if seen[d.ID] {
			return errs.Ef(errs.DataError, "validate demands", subject, "duplicate id")
		}
		seen[d.ID] = true
		if d.Lat < -90 || d.Lat > 90 || d.Lng < -180 || d.Lng > 180 || math.IsNaN(d.Lat) || math.IsNaN(d.Lng) {
			return errs.Ef(errs.DataError, "validate demands", subject, "invalid coordinates")
		}
		if !validLoad(d.WeightKg) || !validLoad(d.VolumeM3) {
			return errs.Ef(errs.DataError, "validate demands", subject, "invalid load")
		}
	}
	return nil
}

func validLoad(x float64) bool {
	return x >= 0 && !math.IsInf(x, 1)
}

// VehiclesVersion is a content hash of the fleet.
func VehiclesVersion(vs []Vehicle) string {
	d := xxhash.New()
	for _, v := range vs {
		_, _ = d.WriteString(v.ID + "|" + v.Plate + "|" + v.Profile())
		writeFloats(d, v.MaxWeightKg, v.LengthM, v.WidthM, v.HeightM)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// DemandsVersion is a content hash of the demand set, independent of input order.
func DemandsVersion(ds []Demand) string {
	d := xxhash.New()
	for _, dm := range SortDemands(ds) {
		writeFloats(d, float64(dm.ID), dm.Lat, dm.Lng, dm.WeightKg, dm.VolumeM3)
		_, _ = d.WriteString(string(dm.Priority) + "|" + dm.Zone)
		days := make([]int, 0, len(dm.AllowedHours))
		for day := range dm.AllowedHours {
			days = append(days, int(day))
		}
		sort.Ints(days)
		for _, day := range days {
			writeFloats(d, float64(day))
			for _, h := range dm.AllowedHours[time.Weekday(day)] {
				writeFloats(d, float64(h))
			}
		}
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

func writeFloats(d *xxhash.Digest, fs ...float64) {
	var buf [8]byte
	for _, f := range fs {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		_, _ = d.Write(buf[:])
	}
}
