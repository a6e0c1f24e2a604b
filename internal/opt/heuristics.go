package opt

// nearestNeighbour returns a closed tour over 0..n-1 starting and ending at 0.
// Ties go to the lower index.
func nearestNeighbour(n int, cost func(i, j int) float64) []int {
	tour := make([]int, 0, n+1)
	tour = append(tour, 0)
	visited := make([]bool, n)
	visited[0] = true
	cur := 0
	for len(tour) < n {
		next := -1
		for j := 1; j < n; j++ {
			if visited[j] {
				continue
			}
			if next < 0 || cost(cur, j) < cost(cur, next) {
				next = j
			}
		}
		visited[next] = true
		tour = append(tour, next)
		cur = next
	}
	return append(tour, 0)
}

// improve2Opt reverses inner segments of a closed tour while that strictly
// shortens it. The endpoints stay fixed. It returns the tour and accepted swaps.
func improve2Opt(order []int, cost func(i, j int) float64, maxPasses int) ([]int, int) {
	best := append([]int(nil), order...)
	bestDist := tourLength(best, cost)
	n := len(best)
	swaps := 0
	for pass := 0; maxPasses <= 0 || pass < maxPasses; pass++ {
		improved := false
		for i := 1; i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				cand := twoOptSwap(best, i, k)
				d := tourLength(cand, cost)
				if d+1e-6 < bestDist {
					best, bestDist = cand, d
					swaps++
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best, swaps
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
