package community

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
)

const maxLabelIterations = 100

// labelPropagation groups members by asynchronous label propagation. Every
// node starts with its own id as label and repeatedly adopts the label held
// by most of its neighbours, ties going to the smallest label. Nodes are
// visited in an order shuffled from src, so runs with the same source agree.
func labelPropagation(g *simple.UndirectedGraph, members []int64, src rand.Source) [][]int64 {
	if len(members) == 0 {
		return nil
	}

	labels := make(map[int64]int64, len(members))
	for _, id := range members {
		labels[id] = id
	}

	order := append([]int64(nil), members...)
	rng := rand.New(src)

	for iteration := 0; iteration < maxLabelIterations; iteration++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		changed := false
		for _, u := range order {
			counts := make(map[int64]int)
			nodes := g.From(u)
			for nodes.Next() {
				if l, ok := labels[nodes.Node().ID()]; ok {
					counts[l]++
				}
			}
			if len(counts) == 0 {
				continue
			}

			best, bestCount := labels[u], counts[labels[u]]
			for l, n := range counts {
				if n > bestCount || (n == bestCount && l < best) {
					best, bestCount = l, n
				}
			}
			if best != labels[u] {
				labels[u] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	byLabel := make(map[int64][]int64)
	for _, id := range members {
		byLabel[labels[id]] = append(byLabel[labels[id]], id)
	}

	groups := make([][]int64, 0, len(byLabel))
	for _, grp := range byLabel {
		sort.Slice(grp, func(i, j int) bool { return grp[i] < grp[j] })
		groups = append(groups, grp)
	}
	sortGroups(groups)
	return groups
}
