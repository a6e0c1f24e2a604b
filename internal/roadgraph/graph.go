// Package roadgraph holds the immutable road network and per-vehicle masked views over it.
package roadgraph

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"zoneroute/internal/errs"
)

// NodeID identifies an intersection.
type NodeID int64

// Node is an intersection with coordinates.
type Node struct {
	ID  NodeID  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point returns the node location as lon/lat.
func (n Node) Point() orb.Point { return orb.Point{n.Lng, n.Lat} }

// Edge is a road segment. Edges are traversable both ways unless Oneway is set.
type Edge struct {
	From            NodeID   `json:"from"`
	To              NodeID   `json:"to"`
	Length          float64  `json:"length"`
	Name            string   `json:"name,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Oneway          bool     `json:"oneway,omitempty"`
	Restricted      bool     `json:"restricted,omitempty"`
	RestrictionType string   `json:"restrictionType,omitempty"`
}

type arc struct {
	to     int
	length float64
	edge   int
}

// Graph is a read-only weighted road network. It is safe for concurrent use.
type Graph struct {
	nodes   []Node
	index   map[NodeID]int
	edges   []Edge
	adj     [][]arc
	qt      *quadtree.Quadtree
	version string
}

// nodePointer adapts a node to orb.Pointer for the quadtree.
type nodePointer struct {
	idx int
	p   orb.Point
}

func (n nodePointer) Point() orb.Point { return n.p }

// Builder accumulates nodes and edges before producing a Graph.
type Builder struct {
	nodes []Node
	index map[NodeID]int
	edges []Edge
}

func NewBuilder() *Builder {
	return &Builder{index: map[NodeID]int{}}
}

// AddNode registers an intersection. Duplicate ids and invalid coordinates are data errors.
func (b *Builder) AddNode(id NodeID, lat, lng float64) error {
	if _, ok := b.index[id]; ok {
		return errs.Ef(errs.DataError, "add node", strconv.FormatInt(int64(id), 10), "duplicate node")
	}
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return errs.Ef(errs.DataError, "add node", strconv.FormatInt(int64(id), 10), "invalid coordinates %f,%f", lat, lng)
	}
	b.index[id] = len(b.nodes)
	b.nodes = append(b.nodes, Node{ID: id, Lat: lat, Lng: lng})
	return nil
}

// AddEdge registers a road segment between two known nodes.
func (b *Builder) AddEdge(e Edge) error {
	subject := strconv.FormatInt(int64(e.From), 10) + "-" + strconv.FormatInt(int64(e.To), 10)
	if _, ok := b.index[e.From]; !ok {
		return errs.Ef(errs.DataError, "add edge", subject, "unknown node %d", e.From)
	}
	if _, ok := b.index[e.To]; !ok {
		return errs.Ef(errs.DataError, "add edge", subject, "unknown node %d", e.To)
	}
	if math.IsNaN(e.Length) || math.IsInf(e.Length, 0) || e.Length < 0 {
		return errs.Ef(errs.DataError, "add edge", subject, "invalid length %v", e.Length)
	}
	b.edges = append(b.edges, e)
	return nil
}

// Build freezes the builder into a Graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.nodes) == 0 {
		return nil, errs.Ef(errs.DataError, "build graph", "", "graph has no nodes")
	}
	g := &Graph{
		nodes: append([]Node(nil), b.nodes...),
		index: make(map[NodeID]int, len(b.nodes)),
		edges: append([]Edge(nil), b.edges...),
		adj:   make([][]arc, len(b.nodes)),
	}
	for id, i := range b.index {
		g.index[id] = i
	}
	for ei, e := range g.edges {
		u, v := g.index[e.From], g.index[e.To]
		g.adj[u] = append(g.adj[u], arc{to: v, length: e.Length, edge: ei})
		if !e.Oneway {
			g.adj[v] = append(g.adj[v], arc{to: u, length: e.Length, edge: ei})
		}
	}

	pts := make(orb.MultiPoint, len(g.nodes))
	for i, n := range g.nodes {
		pts[i] = n.Point()
	}
	g.qt = quadtree.New(pts.Bound().Pad(1e-6))
	for i, p := range pts {
		if err := g.qt.Add(nodePointer{idx: i, p: p}); err != nil {
			return nil, errs.E(errs.DataError, "build graph", "spatial index", err)
		}
	}
	g.version = g.computeVersion()
	return g, nil
}

func (g *Graph) computeVersion() string {
	d := xxhash.New()
	var buf [8]byte
	put := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		_, _ = d.Write(buf[:])
	}
	for _, n := range g.nodes {
		put(float64(n.ID))
		put(n.Lat)
		put(n.Lng)
	}
	for _, e := range g.edges {
		put(float64(e.From))
		put(float64(e.To))
		put(e.Length)
		if e.Oneway {
			put(1)
		} else {
			put(0)
		}
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// Version is a content hash of nodes and edges.
func (g *Graph) Version() string { return g.version }

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns a copy of all nodes in insertion order.
func (g *Graph) Nodes() []Node { return append([]Node(nil), g.nodes...) }

// Edges returns a copy of all edges in insertion order.
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// Point returns the location of id, or the zero point when unknown.
func (g *Graph) Point(id NodeID) orb.Point {
	if i, ok := g.index[id]; ok {
		return g.nodes[i].Point()
	}
	return orb.Point{}
}

// Full returns an unmasked view of the whole graph.
func (g *Graph) Full() *View { return &View{g: g} }

// Exclude returns a view that hides the given nodes. Unknown ids are ignored.
func (g *Graph) Exclude(ids []NodeID) *View {
	v := &View{g: g, excluded: make([]bool, len(g.nodes))}
	for _, id := range ids {
		if i, ok := g.index[id]; ok && !v.excluded[i] {
			v.excluded[i] = true
			v.hidden++
		}
	}
	return v
}
