package opt

import (
	"math"
	"slices"
)

// doubleTreeTour approximates a closed tour over 0..n-1: a minimum spanning
// tree on symmetrised costs walked in preorder from 0. On metric costs the tour
// is at most twice optimal.
func doubleTreeTour(n int, cost func(i, j int) float64) []int {
	w := func(i, j int) float64 { return (cost(i, j) + cost(j, i)) / 2 }

	// Prim from the depot.
	parent := make([]int, n)
	key := make([]float64, n)
	inTree := make([]bool, n)
	for i := range key {
		key[i] = math.Inf(1)
		parent[i] = -1
	}
	key[0] = 0
	for range n {
		u := -1
		for v := 0; v < n; v++ {
			if !inTree[v] && (u < 0 || key[v] < key[u]) {
				u = v
			}
		}
		inTree[u] = true
		for v := 0; v < n; v++ {
			if !inTree[v] && w(u, v) < key[v] {
				key[v], parent[v] = w(u, v), u
			}
		}
	}

	children := make([][]int, n)
	for v := 1; v < n; v++ {
		children[parent[v]] = append(children[parent[v]], v)
	}
	tour := make([]int, 0, n+1)
	stack := []int{0}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		tour = append(tour, u)
		kids := slices.Clone(children[u])
		slices.Reverse(kids)
		stack = append(stack, kids...)
	}
	return rotateTo(append(tour, tour[0]), 0)
}

// rotateTo turns a closed tour so it starts and ends at start.
func rotateTo(closed []int, start int) []int {
	open := closed[:len(closed)-1]
	at := slices.Index(open, start)
	if at <= 0 {
		return closed
	}
	out := make([]int, 0, len(closed))
	out = append(out, open[at:]...)
	out = append(out, open[:at]...)
	return append(out, start)
}
