package roadgraph

import (
	"container/heap"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"zoneroute/internal/errs"
)

// View is a graph with a set of hidden nodes. Hidden nodes and every edge
// touching them are skipped by all queries. The base graph is shared.
type View struct {
	g        *Graph
	excluded []bool
	hidden   int
}

// Graph returns the underlying base graph.
func (v *View) Graph() *Graph { return v.g }

// Hidden is the number of excluded nodes.
func (v *View) Hidden() int { return v.hidden }

// Allowed reports whether id exists and is not excluded.
func (v *View) Allowed(id NodeID) bool {
	i, ok := v.g.index[id]
	return ok && v.open(i)
}

func (v *View) open(i int) bool { return v.excluded == nil || !v.excluded[i] }

// NearestNode snaps p to the closest visible node. When maxMeters is positive a
// node farther than that is treated as not found.
func (v *View) NearestNode(p orb.Point, maxMeters float64) (NodeID, error) {
	var ptr orb.Pointer
	if v.excluded == nil {
		ptr = v.g.qt.Find(p)
	} else {
		ptr = v.g.qt.Matching(p, func(q orb.Pointer) bool {
			return !v.excluded[q.(nodePointer).idx]
		})
	}
	if ptr == nil {
		return 0, errs.Ef(errs.ReachabilityError, "nearest node", formatPoint(p), "no visible node")
	}
	np := ptr.(nodePointer)
	if maxMeters > 0 {
		if d := geo.Distance(p, np.p); d > maxMeters {
			return 0, errs.Ef(errs.ReachabilityError, "nearest node", formatPoint(p), "closest node %d is %.0fm away", v.g.nodes[np.idx].ID, d)
		}
	}
	return v.g.nodes[np.idx].ID, nil
}

// Distances runs Dijkstra from src and returns the distance to every node
// keyed by node index order of Graph.Nodes. Unreachable entries are +Inf.
func (v *View) Distances(src NodeID) ([]float64, error) {
	s, ok := v.g.index[src]
	if !ok || !v.open(s) {
		return nil, errs.Ef(errs.RoutingError, "distances", nodeSubject(src), "source not in view")
	}
	dist, _ := v.dijkstra(s, -1)
	return dist, nil
}

// DistanceTo reads the entry for id out of a Distances result.
func (v *View) DistanceTo(dist []float64, id NodeID) float64 {
	i, ok := v.g.index[id]
	if !ok || i >= len(dist) {
		return math.Inf(1)
	}
	return dist[i]
}

// ShortestPath returns the node sequence and length of the shortest path from a to b.
func (v *View) ShortestPath(a, b NodeID) ([]NodeID, float64, error) {
	s, ok := v.g.index[a]
	if !ok || !v.open(s) {
		return nil, 0, errs.Ef(errs.RoutingError, "shortest path", nodeSubject(a), "source not in view")
	}
	t, ok := v.g.index[b]
	if !ok || !v.open(t) {
		return nil, 0, errs.Ef(errs.RoutingError, "shortest path", nodeSubject(b), "target not in view")
	}
	if s == t {
		return []NodeID{a}, 0, nil
	}
	dist, prev := v.dijkstra(s, t)
	if math.IsInf(dist[t], 1) {
		return nil, 0, errs.Ef(errs.RoutingError, "shortest path", nodeSubject(a)+"->"+nodeSubject(b), "no path")
	}
	var rev []NodeID
	for i := t; i != -1; i = prev[i] {
		rev = append(rev, v.g.nodes[i].ID)
	}
	path := make([]NodeID, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path, dist[t], nil
}

// PathStats summarises a node path over real edges.
type PathStats struct {
	Length           float64
	RestrictedLength float64
	Edges            int
}

// PathLength is the sum of real edge lengths along path.
func (v *View) PathLength(path []NodeID) (float64, error) {
	st, err := v.PathStats(path)
	return st.Length, err
}

// PathStats walks path picking the shortest parallel edge for every hop.
// Repeated consecutive nodes cost nothing.
func (v *View) PathStats(path []NodeID) (PathStats, error) {
	var st PathStats
	for i := 0; i+1 < len(path); i++ {
		if path[i] == path[i+1] {
			continue
		}
		u, ok := v.g.index[path[i]]
		w, ok2 := v.g.index[path[i+1]]
		if !ok || !ok2 || !v.open(u) || !v.open(w) {
			return PathStats{}, errs.Ef(errs.RoutingError, "path length", nodeSubject(path[i])+"->"+nodeSubject(path[i+1]), "hop leaves view")
		}
		best := -1
		for ai, a := range v.g.adj[u] {
			if a.to == w && (best < 0 || a.length < v.g.adj[u][best].length) {
				best = ai
			}
		}
		if best < 0 {
			return PathStats{}, errs.Ef(errs.RoutingError, "path length", nodeSubject(path[i])+"->"+nodeSubject(path[i+1]), "nodes not adjacent")
		}
		a := v.g.adj[u][best]
		st.Length += a.length
		st.Edges++
		if v.g.edges[a.edge].Restricted {
			st.RestrictedLength += a.length
		}
	}
	return st, nil
}

// dijkstra stops early once target (when >= 0) is settled.
func (v *View) dijkstra(src, target int) ([]float64, []int) {
	n := len(v.g.nodes)
	dist := make([]float64, n)
	prev := make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[src] = 0
	pq := &queue{{node: src}}
	for pq.Len() > 0 {
		it := heap.Pop(pq).(item)
		if it.dist > dist[it.node] {
			continue
		}
		if it.node == target {
			break
		}
		for _, a := range v.g.adj[it.node] {
			if !v.open(a.to) {
				continue
			}
			nd := it.dist + a.length
			if nd < dist[a.to] {
				dist[a.to] = nd
				prev[a.to] = it.node
				heap.Push(pq, item{node: a.to, dist: nd})
			}
		}
	}
	return dist, prev
}

type item struct {
	node int
	dist float64
}

type queue []item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].dist == q[j].dist {
		return q[i].node < q[j].node
	}
	return q[i].dist < q[j].dist
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(item)) }
func (q *queue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

func nodeSubject(id NodeID) string { return "node " + strconv.FormatInt(int64(id), 10) }

func formatPoint(p orb.Point) string {
	return strconv.FormatFloat(p.Lat(), 'f', 6, 64) + "," + strconv.FormatFloat(p.Lon(), 'f', 6, 64)
}
