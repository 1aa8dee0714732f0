package inference

// pruneRedundant drops i->j when some k gives i->k and k->j, each at least
// as confident as i->j. All removals are decided against the same acyclic
// edge set, which keeps reachability unchanged.
func pruneRedundant(edges []Edge) (kept, pruned []Edge) {
	type key struct{ from, to int }
	conf := make(map[key]float64, len(edges))
	out := make(map[int][]int)
	for _, e := range edges {
		conf[key{e.From, e.To}] = e.Confidence
		out[e.From] = append(out[e.From], e.To)
	}

	for _, e := range edges {
		redundant := false
		for _, k := range out[e.From] {
			if k == e.To {
				continue
			}
			second, ok := conf[key{k, e.To}]
			if !ok {
				continue
			}
			if conf[key{e.From, k}] >= e.Confidence-scoreEpsilon && second >= e.Confidence-scoreEpsilon {
				redundant = true
				break
			}
		}
		if redundant {
			pruned = append(pruned, e)
		} else {
			kept = append(kept, e)
		}
	}
	return kept, pruned
}
