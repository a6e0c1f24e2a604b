// Package zones models restricted areas and the access rules that apply to
// each vehicle class inside them.
package zones

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Class is the closed set of vehicle classes known to the rule tables.
type Class int

const (
	Van Class = iota + 1
	VUC
	Truck
)

var classNames = map[Class]string{Van: "Van", VUC: "VUC", Truck: "Truck"}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return "Class(" + strconv.Itoa(int(c)) + ")"
}

// ParseClass maps a fleet type string to a Class.
func ParseClass(s string) (Class, error) {
	for c, name := range classNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown vehicle class %q", s)
}

func (c Class) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Class) UnmarshalText(b []byte) error {
	v, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Access is a class's standing inside a zone while the zone's rules are active.
type Access int

const (
	Permitted Access = iota
	Forbidden
	NeedsPermit
)

// Rules is the rule set of one zone.
type Rules struct {
	// Classes is the capability table. Classes absent from it are permitted.
	Classes map[Class]Access
	// Windows lists the restricted hours per weekday. Empty means always restricted.
	Windows map[time.Weekday][]int
	// Plates lists the plate final digits rotated out per weekday.
	Plates map[time.Weekday][]int
	// HolidayFree lifts the rules on holidays.
	HolidayFree bool
}

// DeliveryContext is the moment a plan is evaluated at.
type DeliveryContext struct {
	Day     time.Weekday `json:"day"`
	Hour    int          `json:"hour"`
	Holiday bool         `json:"holiday"`
}

func (dc DeliveryContext) String() string {
	s := dc.Day.String() + " " + strconv.Itoa(dc.Hour) + "h"
	if dc.Holiday {
		s += " holiday"
	}
	return s
}

// Vehicle is what the rules need to know about a vehicle.
type Vehicle interface {
	VehicleClass() Class
	PlateDigit() (int, bool)
	HasPermit(zone string) bool
}

// Zone is a named polygonal area with rules.
type Zone struct {
	Name     string
	Geometry orb.MultiPolygon
	Rules    Rules

	bound orb.Bound
}

// NewZone wraps geometry and rules into a Zone.
func NewZone(name string, geom orb.MultiPolygon, rules Rules) *Zone {
	return &Zone{Name: name, Geometry: geom, Rules: rules, bound: geom.Bound()}
}

// Bound is the bounding box of the zone geometry.
func (z *Zone) Bound() orb.Bound { return z.bound }

// Contains reports whether p lies inside the zone.
func (z *Zone) Contains(p orb.Point) bool {
	if !z.bound.Contains(p) {
		return false
	}
	return planar.MultiPolygonContains(z.Geometry, p)
}

// Centroid is the area centroid of the zone geometry.
func (z *Zone) Centroid() orb.Point {
	c, _ := planar.CentroidArea(z.Geometry)
	return c
}

// Active reports whether the zone's rules apply at dc.
func (z *Zone) Active(dc DeliveryContext) bool {
	if dc.Holiday && z.Rules.HolidayFree {
		return false
	}
	if len(z.Rules.Windows) == 0 {
		return true
	}
	return slices.Contains(z.Rules.Windows[dc.Day], dc.Hour)
}

// Permitted reports whether v may be inside z at dc.
func (z *Zone) Permitted(v Vehicle, dc DeliveryContext) bool {
	if !z.Active(dc) {
		return true
	}
	switch z.Rules.Classes[v.VehicleClass()] {
	case Forbidden:
		return false
	case NeedsPermit:
		if !v.HasPermit(z.Name) {
			return false
		}
	}
	if digit, ok := v.PlateDigit(); ok && slices.Contains(z.Rules.Plates[dc.Day], digit) {
		return v.HasPermit(z.Name)
	}
	return true
}

// Index is the read-only set of zones loaded for a run.
type Index struct {
	zones   []*Zone
	byName  map[string]*Zone
	version string
}

// NewIndex builds an index. Later zones with a duplicate name are dropped.
func NewIndex(zs ...*Zone) *Index {
	ix := &Index{byName: map[string]*Zone{}}
	for _, z := range zs {
		if z == nil || ix.byName[z.Name] != nil {
			continue
		}
		ix.zones = append(ix.zones, z)
		ix.byName[z.Name] = z
	}
	ix.version = ix.computeVersion()
	return ix
}

func (ix *Index) Zones() []*Zone { return append([]*Zone(nil), ix.zones...) }

func (ix *Index) Lookup(name string) (*Zone, bool) {
	z, ok := ix.byName[name]
	return z, ok
}

// Containing returns the zones that contain p in index order.
func (ix *Index) Containing(p orb.Point) []*Zone {
	var out []*Zone
	for _, z := range ix.zones {
		if z.Contains(p) {
			out = append(out, z)
		}
	}
	return out
}

// Forbidden lists the zones v may not enter at dc.
func (ix *Index) Forbidden(v Vehicle, dc DeliveryContext) []*Zone {
	var out []*Zone
	for _, z := range ix.zones {
		if !z.Permitted(v, dc) {
			out = append(out, z)
		}
	}
	return out
}

// PermittedAt reports whether v may be at p, i.e. every zone containing p admits it.
func (ix *Index) PermittedAt(p orb.Point, v Vehicle, dc DeliveryContext) bool {
	for _, z := range ix.zones {
		if z.Contains(p) && !z.Permitted(v, dc) {
			return false
		}
	}
	return true
}

// Version is a content hash of zone names, geometry and rules.
func (ix *Index) Version() string { return ix.version }

func (ix *Index) computeVersion() string {
	d := xxhash.New()
	var buf [8]byte
	put := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		_, _ = d.Write(buf[:])
	}
	for _, z := range ix.zones {
		_, _ = d.WriteString(z.Name)
		for _, poly := range z.Geometry {
			for _, ring := range poly {
				for _, p := range ring {
					put(p[0])
					put(p[1])
				}
			}
		}
		_, _ = d.WriteString(rulesKey(z.Rules))
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

func rulesKey(r Rules) string {
	var parts []string
	for c, a := range r.Classes {
		parts = append(parts, "c"+c.String()+"="+strconv.Itoa(int(a)))
	}
	for d, hs := range r.Windows {
		parts = append(parts, "w"+d.String()+"="+fmt.Sprint(hs))
	}
	for d, ps := range r.Plates {
		parts = append(parts, "p"+d.String()+"="+fmt.Sprint(ps))
	}
	sort.Strings(parts)
	if r.HolidayFree {
		parts = append(parts, "holiday-free")
	}
	return strings.Join(parts, ";")
}
