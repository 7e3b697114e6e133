package rag

import (
	"math"

	"sec-rag/internal/models"
)

// MMR picks k results by maximal marginal relevance: each step takes the
// candidate maximizing lambda*relevance - (1-lambda)*max similarity to the
// results already picked. Candidates must carry their embeddings; when any
// is missing the first k are returned unchanged.
func MMR(candidates []models.Result, k int, lambda float64) []models.Result {
	if k <= 0 {
		return nil
	}
	if len(candidates) <= k {
		return candidates
	}
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			return candidates[:k]
		}
	}

	picked := make([]int, 0, k)
	used := make([]bool, len(candidates))
	// maxSim[i] is the highest similarity of candidate i to any picked result
	maxSim := make([]float64, len(candidates))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}

	for len(picked) < k {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(picked) > 0 {
				redundancy = maxSim[i]
			}
			score := lambda*float64(c.Score) - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		picked = append(picked, best)
		for i, c := range candidates {
			if !used[i] {
				maxSim[i] = math.Max(maxSim[i], cosine(c.Embedding, candidates[best].Embedding))
			}
		}
	}

	out := make([]models.Result, len(picked))
	for i, idx := range picked {
		out[i] = candidates[idx]
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
