// Package cluster groups delivery demands into zone-aware spatial clusters.
package cluster

import (
	"math"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rs/zerolog/log"

	"zoneroute/internal/errs"
	"zoneroute/internal/fleet"
	"zoneroute/internal/zones"
)

// Params tune the clustering. Distances are in degrees.
type Params struct {
	BufferRadius  float64
	MergeDistance float64
	MinSizeRatio  float64
	MinSizeFloor  int
	// Zones are the zone buckets in priority order.
	Zones []string
}

func DefaultParams() Params {
	return Params{
		BufferRadius:  0.02,
		MergeDistance: 0.05,
		MinSizeRatio:  0.08,
		MinSizeFloor:  3,
		Zones:         []string{"ZMRC", "Rodizio"},
	}
}

// MinSize is the smallest acceptable cluster for a run of total demands.
func (p Params) MinSize(total int) int {
	return max(p.MinSizeFloor, int(float64(total)*p.MinSizeRatio))
}

// Cluster is a group of demands served as a unit.
type Cluster struct {
	ID       string          `json:"id"`
	Seq      int             `json:"seq"`
	Members  []int           `json:"members"`
	Centroid orb.Point       `json:"centroid"`
	Bound    orb.Bound       `json:"bound"`
	Requires map[string]bool `json:"requires,omitempty"`
	// Zone is set on clusters dedicated to a single zone.
	Zone string `json:"zone,omitempty"`

	area float64
}

// RequiredZones lists the zones flagged on the cluster in name order.
func (c *Cluster) RequiredZones() []string {
	var out []string
	for z, on := range c.Requires {
		if on {
			out = append(out, z)
		}
	}
	sort.Strings(out)
	return out
}

// absorb merges o into c, weighting centroids by covered area.
func (c *Cluster) absorb(o *Cluster) {
	total := c.area + o.area
	if total > 0 {
		c.Centroid = orb.Point{
			(c.Centroid[0]*c.area + o.Centroid[0]*o.area) / total,
			(c.Centroid[1]*c.area + o.Centroid[1]*o.area) / total,
		}
	}
	c.area = total
	c.Bound = c.Bound.Union(o.Bound)
	c.Members = append(c.Members, o.Members...)
	sort.Ints(c.Members)
	for z, on := range o.Requires {
		if on {
			c.flag(z)
		}
	}
}

func (c *Cluster) flag(zone string) {
	if c.Requires == nil {
		c.Requires = map[string]bool{}
	}
	c.Requires[zone] = true
}

// Row is one line of the membership table.
type Row struct {
	DemandID  int    `json:"demandId"`
	ClusterID string `json:"clusterId"`
}

// Result is the clustering of one run.
type Result struct {
	Clusters   []*Cluster `json:"clusters"`
	Membership []Row      `json:"membership"`
	MinSize    int        `json:"minSize"`
}

// ClusterOf returns the cluster id of a demand.
func (r Result) ClusterOf(demandID int) (string, bool) {
	i := sort.Search(len(r.Membership), func(i int) bool { return r.Membership[i].DemandID >= demandID })
	if i < len(r.Membership) && r.Membership[i].DemandID == demandID {
		return r.Membership[i].ClusterID, true
	}
	return "", false
}

type bucketed struct {
	demand fleet.Demand
	point  orb.Point
}

// Run clusters demands. Configured zones missing from ix are reported as data
// warnings and their demands fall back to the free bucket.
func Run(demands []fleet.Demand, ix *zones.Index, p Params) (Result, []error) {
	var warnings []error
	sorted := fleet.SortDemands(demands)
	res := Result{MinSize: p.MinSize(len(sorted))}
	if len(sorted) == 0 {
		return res, nil
	}

	var bucketZones []*zones.Zone
	for _, name := range p.Zones {
		z, ok := ix.Lookup(name)
		if !ok {
			w := errs.Ef(errs.DataError, "cluster", name, "zone not loaded, treating as absent")
			log.Warn().Err(w).Msg("cluster: zone missing")
			warnings = append(warnings, w)
			continue
		}
		bucketZones = append(bucketZones, z)
	}

	var free []bucketed
	inZone := make([][]bucketed, len(bucketZones))
	for _, d := range sorted {
		b := bucketed{demand: d, point: d.Point()}
		zi := bucketOf(d, b.point, bucketZones)
		if zi < 0 {
			free = append(free, b)
		} else {
			inZone[zi] = append(inZone[zi], b)
		}
	}

	bufArea := math.Pi * p.BufferRadius * p.BufferRadius
	clusters := groupFree(free, p, bufArea)
	freeCount := len(clusters)
	seq := freeCount

	for zi, z := range bucketZones {
		pts := inZone[zi]
		if len(pts) == 0 {
			continue
		}
		if len(pts) >= res.MinSize || freeCount == 0 {
			seq++
			c := &Cluster{ID: z.Name, Seq: seq, Zone: z.Name, Centroid: z.Centroid(), Bound: z.Bound(), area: math.Abs(planar.Area(z.Geometry))}
			for _, b := range pts {
				c.Members = append(c.Members, b.demand.ID)
			}
			c.flag(z.Name)
			clusters = append(clusters, c)
			continue
		}
		for _, b := range pts {
			target := nearest(clusters[:freeCount], b.point, nil)
			single := pointCluster(b, p.BufferRadius, bufArea)
			target.absorb(single)
			target.flag(z.Name)
		}
	}

	clusters = forceMerge(clusters, res.MinSize)
	res.Clusters, res.Membership = dedupe(clusters)

	log.Debug().Int("demands", len(sorted)).Int("clusters", len(res.Clusters)).Int("min_size", res.MinSize).Msg("cluster: done")
	return res, warnings
}

func bucketOf(d fleet.Demand, p orb.Point, bz []*zones.Zone) int {
	if d.Zone != "" {
		for i, z := range bz {
			if z.Name == d.Zone {
				return i
			}
		}
	}
	for i, z := range bz {
		if z.Contains(p) {
			return i
		}
	}
	return -1
}

func pointCluster(b bucketed, radius, area float64) *Cluster {
	return &Cluster{
		Members:  []int{b.demand.ID},
		Centroid: b.point,
		Bound:    b.point.Bound().Pad(radius),
		area:     area,
	}
}

// groupFree links buffers whose centres are closer than the merge distance.
func groupFree(free []bucketed, p Params, bufArea float64) []*Cluster {
	ds := NewDisjointSet(len(free))
	for i := range free {
		for j := i + 1; j < len(free); j++ {
			if planar.Distance(free[i].point, free[j].point) < p.MergeDistance {
				ds.Union(i, j)
			}
		}
	}
	var out []*Cluster
	for gi, group := range ds.Groups() {
		var c *Cluster
		for _, idx := range group {
			pc := pointCluster(free[idx], p.BufferRadius, bufArea)
			if c == nil {
				c = pc
				continue
			}
			c.absorb(pc)
		}
		c.Seq = gi + 1
		c.ID = "Cluster " + strconv.Itoa(c.Seq)
		out = append(out, c)
	}
	return out
}

// nearest picks the cluster with the closest centroid, lowest Seq on ties.
func nearest(cs []*Cluster, p orb.Point, skip *Cluster) *Cluster {
	var (
		best  *Cluster
		bestD = math.Inf(1)
	)
	for _, c := range cs {
		if c == skip {
			continue
		}
		d := planar.Distance(p, c.Centroid)
		if d < bestD || (d == bestD && best != nil && c.Seq < best.Seq) {
			best, bestD = c, d
		}
	}
	return best
}

// forceMerge folds under-sized clusters into their nearest neighbour until
// none is left or a single cluster remains.
func forceMerge(cs []*Cluster, minSize int) []*Cluster {
	for len(cs) > 1 {
		si := -1
		for i, c := range cs {
			if len(c.Members) < minSize {
				si = i
				break
			}
		}
		if si < 0 {
			break
		}
		small := cs[si]
		target := nearest(cs, small.Centroid, small)
		target.absorb(small)
		log.Debug().Str("from", small.ID).Str("into", target.ID).Msg("cluster: force merge")
		cs = append(cs[:si], cs[si+1:]...)
	}
	return cs
}

func dedupe(cs []*Cluster) ([]*Cluster, []Row) {
	used := map[int]bool{}
	var (
		out  []*Cluster
		rows []Row
	)
	for _, c := range cs {
		var members []int
		for _, id := range c.Members {
			if used[id] {
				continue
			}
			used[id] = true
			members = append(members, id)
			rows = append(rows, Row{DemandID: id, ClusterID: c.ID})
		}
		if len(members) == 0 {
			continue
		}
		c.Members = members
		out = append(out, c)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DemandID < rows[j].DemandID })
	return out, rows
}
