package inference

// repairCycles removes the weakest edge of each cycle until none remain.
// Ties on confidence go to the earliest-inserted edge. Every pass removes
// one edge, so the loop terminates.
func repairCycles(n int, edges []Edge) (kept, removed []Edge) {
	kept = append([]Edge(nil), edges...)
	for {
		cycle := findEdgeCycle(n, kept)
		if cycle == nil {
			return kept, removed
		}
		weakest := cycle[0]
		for _, idx := range cycle[1:] {
			e, w := kept[idx], kept[weakest]
			if e.Confidence < w.Confidence-scoreEpsilon ||
				(e.Confidence <= w.Confidence+scoreEpsilon && e.seq < w.seq) {
				weakest = idx
			}
		}
		removed = append(removed, kept[weakest])
		kept = append(kept[:weakest:weakest], kept[weakest+1:]...)
	}
}

// findEdgeCycle returns the positions in edges of one cycle, or nil.
// The search visits nodes in index order and edges in insertion order.
func findEdgeCycle(n int, edges []Edge) []int {
	adj := make([][]int, n)
	for i, e := range edges {
		adj[e.From] = append(adj[e.From], i)
	}

	colors := make([]int, n)
	// via[v] is the edge used to reach v on the current path.
	via := make([]int, n)
	var cycle []int

	var visit func(v int) bool
	visit = func(v int) bool {
		colors[v] = 1
		for _, ei := range adj[v] {
			w := edges[ei].To
			switch colors[w] {
			case 1:
				cycle = []int{ei}
				for u := v; u != w; u = edges[via[u]].From {
					cycle = append(cycle, via[u])
				}
				return true
			case 0:
				via[w] = ei
				if visit(w) {
					return true
				}
			}
		}
		colors[v] = 2
		return false
	}

	for v := 0; v < n; v++ {
		if colors[v] == 0 && visit(v) {
			return cycle
		}
	}
	return nil
}
