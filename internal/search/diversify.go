package search

import "sort"

// Diversify picks k passages so that no single document dominates the
// context when the corpus spans several. Passages are grouped by
// source, each group keeps its score order, the groups are visited
// round-robin in alphabetical source order, and leftovers fill the
// remaining slots once short groups run out. With S sources each
// source contributes at most ceil(k/S)+1 passages.
func Diversify(pool []Passage, k int) []Passage {
	if k <= 0 {
		return nil
	}
	if len(pool) <= k {
		return pool
	}

	bySource := make(map[string][]Passage)
	for _, p := range pool {
		bySource[p.Source] = append(bySource[p.Source], p)
	}
	if len(bySource) < 2 {
		return pool[:k]
	}

	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	perSource := k/len(sources) + 1
	if k%len(sources) != 0 {
		perSource++
	}

	picked := make([]Passage, 0, k)
	var leftovers []Passage
	for round := 0; ; round++ {
		progressed := false
		for _, s := range sources {
			group := bySource[s]
			if round >= len(group) {
				continue
			}
			progressed = true
			if round < perSource {
				picked = append(picked, group[round])
			} else {
				leftovers = append(leftovers, group[round])
			}
		}
		if !progressed || len(picked) >= k {
			break
		}
	}

	if len(picked) < k {
		sort.SliceStable(leftovers, func(i, j int) bool {
			return leftovers[i].Score > leftovers[j].Score
		})
		need := k - len(picked)
		if need > len(leftovers) {
			need = len(leftovers)
		}
		picked = append(picked, leftovers[:need]...)
	}
	if len(picked) > k {
		picked = picked[:k]
	}
	return picked
}
