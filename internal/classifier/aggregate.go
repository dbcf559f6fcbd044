package classifier

import (
	"fmt"

	"github.com/fedactor/flmesh/internal/actor"
)

// FederatedAveraging combines updates weighted by each one's sample
// count: W_avg = sum_i (n_i / sum_n) * W_i, same for b. All updates must
// share the same weight shapes.
func FederatedAveraging(updates []actor.WeightedUpdate) (actor.ModelWeights, error) {
	if len(updates) == 0 {
		return actor.ModelWeights{}, fmt.Errorf("classifier: no updates to aggregate")
	}

	totalSamples := 0
	for _, u := range updates {
		totalSamples += u.NumSamples
	}
	if totalSamples == 0 {
		return actor.ModelWeights{}, fmt.Errorf("classifier: total sample count is zero")
	}

	first := updates[0].Weights
	for _, u := range updates[1:] {
		if !u.Weights.ShapeMatches(first) {
			return actor.ModelWeights{}, fmt.Errorf("classifier: shape mismatch from worker %s", u.WorkerID)
		}
	}

	avgW := make([]float64, len(first.W))
	avgB := make([]float64, len(first.B))
	for _, u := range updates {
		factor := float64(u.NumSamples) / float64(totalSamples)
		for i, v := range u.Weights.W {
			avgW[i] += factor * v
		}
		for i, v := range u.Weights.B {
			avgB[i] += factor * v
		}
	}

	return actor.ModelWeights{
		W:      avgW,
		WShape: first.WShape,
		B:      avgB,
		BShape: first.BShape,
		DType:  first.DType,
	}, nil
}
