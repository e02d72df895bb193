package search

import "sort"

// SmartCutoff selects the seed set from rerank-scored candidates using a
// dynamic threshold derived from the top score, rather than a fixed K.
//
// Candidates are sorted (on a copy) by score descending; ties are broken by
// (FilePath, ChunkIndex) for determinism.
func SmartCutoff(candidates []Seed) []Seed {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]Seed, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RerankScore != sorted[j].RerankScore {
			return sorted[i].RerankScore > sorted[j].RerankScore
		}
		if sorted[i].Key.FilePath != sorted[j].Key.FilePath {
			return sorted[i].Key.FilePath < sorted[j].Key.FilePath
		}
		return sorted[i].Key.ChunkIndex < sorted[j].Key.ChunkIndex
	})

	top := sorted[0].RerankScore
	if top < SmartMinScore {
		return sorted[:1]
	}

	ratioT := top * SmartTopScoreRatio
	deltaT := top - SmartTopScoreDeltaAbs
	dyn := ratioT
	if deltaT < dyn {
		dyn = deltaT
	}
	if dyn < SmartMinScore {
		dyn = SmartMinScore
	}

	selected := make([]Seed, 0, SmartMaxK)
	seen := make(map[Key]bool)

	for i, c := range sorted {
		if len(selected) >= SmartMaxK {
			break
		}
		threshold := dyn
		if i < SmartMinK {
			threshold = SmartMinScore
		}
		if c.RerankScore < threshold {
			break
		}
		if seen[c.Key] {
			continue
		}
		seen[c.Key] = true
		selected = append(selected, c)
	}

	minWanted := SmartMinK
	if SmartMaxK < minWanted {
		minWanted = SmartMaxK
	}
	if len(selected) < minWanted {
		for _, c := range sorted {
			if len(selected) >= minWanted {
				break
			}
			if seen[c.Key] {
				continue
			}
			if c.RerankScore < SmartMinScore {
				continue
			}
			seen[c.Key] = true
			selected = append(selected, c)
		}
	}

	return selected
}
