package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/classifier"
)

func syntheticExamples(n, inputDim, numClasses int) []classifier.Example {
	out := make([]classifier.Example, n)
	for i := range out {
		features := make([]float64, inputDim)
		label := i % numClasses
		for d := range features {
			if d == label {
				features[d] = 1.0
			}
		}
		out[i] = classifier.Example{Features: features, Label: label}
	}
	return out
}

func TestTrainEpochReducesLoss(t *testing.T) {
	c := classifier.New(4, 2, 0.5)
	examples := syntheticExamples(40, 4, 2)

	first, err := c.TrainEpoch(examples, 8)
	require.NoError(t, err)

	var last map[string]float64
	for i := 0; i < 20; i++ {
		last, err = c.TrainEpoch(examples, 8)
		require.NoError(t, err)
	}

	assert.Less(t, last["loss"], first["loss"])
}

func TestGetSetWeightsRoundTrip(t *testing.T) {
	c := classifier.New(3, 2, 0.1)
	w := c.GetWeights()

	c2 := classifier.New(3, 2, 0.1)
	c2.SetWeights(w)
	assert.Equal(t, w, c2.GetWeights())
}

func TestFederatedAveragingWeightsBySampleCount(t *testing.T) {
	updates := []actor.WeightedUpdate{
		{WorkerID: "a", NumSamples: 1, Weights: actor.ModelWeights{W: []float64{1, 1}, WShape: []int{2}, B: []float64{1}, BShape: []int{1}}},
		{WorkerID: "b", NumSamples: 3, Weights: actor.ModelWeights{W: []float64{5, 5}, WShape: []int{2}, B: []float64{5}, BShape: []int{1}}},
	}

	avg, err := classifier.FederatedAveraging(updates)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, avg.W[0], 1e-9)
	assert.InDelta(t, 4.0, avg.B[0], 1e-9)
}

func TestFederatedAveragingRejectsShapeMismatch(t *testing.T) {
	updates := []actor.WeightedUpdate{
		{WorkerID: "a", NumSamples: 1, Weights: actor.ModelWeights{WShape: []int{2}, BShape: []int{1}}},
		{WorkerID: "b", NumSamples: 1, Weights: actor.ModelWeights{WShape: []int{3}, BShape: []int{1}}},
	}
	_, err := classifier.FederatedAveraging(updates)
	assert.Error(t, err)
}

func TestFederatedAveragingRejectsEmpty(t *testing.T) {
	_, err := classifier.FederatedAveraging(nil)
	assert.Error(t, err)
}
