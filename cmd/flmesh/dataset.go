package main

import (
	"math/rand"

	"github.com/fedactor/flmesh/internal/classifier"
)

// syntheticExamples builds a locally-separable synthetic dataset: each
// class is a one-hot cluster in feature space plus noise. Real feature
// extraction and dataset splitting are out of scope (§1) — every role
// process here stands in for that external collaborator with a
// synthetic split so the coordination protocols have data to move.
func syntheticExamples(n, inputDim, numClasses int, seed int64) []classifier.Example {
	rng := rand.New(rand.NewSource(seed))
	out := make([]classifier.Example, n)
	for i := range out {
		label := i % numClasses
		features := make([]float64, inputDim)
		for d := range features {
			if d == label {
				features[d] = 1.0
			}
			features[d] += rng.NormFloat64() * 0.1
		}
		out[i] = classifier.Example{Features: features, Label: label}
	}
	return out
}
