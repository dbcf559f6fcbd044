// Package classifier implements the numeric model each worker and gossip
// peer trains locally: a single linear layer followed by softmax, trained
// by plain gradient descent with an optional FedProx proximal term. This
// is the external-collaborator stub the coordination protocols move
// around as opaque ModelWeights — the protocols never depend on its
// internals, only on GetWeights/SetWeights/TrainEpoch/Evaluate.
package classifier

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/fedactor/flmesh/internal/actor"
)

// Example is one labeled training row: Features has length InputDim,
// Label is in [0, NumClasses).
type Example struct {
	Features []float64
	Label    int
}

// Classifier is a linear-softmax model: logits = X@W + b.
type Classifier struct {
	inputDim   int
	numClasses int
	lr         float64
	mu         float64

	w       []float64 // row-major, inputDim x numClasses
	b       []float64
	wGlobal []float64
	bGlobal []float64
}

// New constructs a classifier with weights drawn from a He-scaled normal
// distribution, matching the initialization the original numeric model
// used.
func New(inputDim, numClasses int, lr float64) *Classifier {
	c := &Classifier{
		inputDim:   inputDim,
		numClasses: numClasses,
		lr:         lr,
		w:          make([]float64, inputDim*numClasses),
		b:          make([]float64, numClasses),
	}
	scale := math.Sqrt(2.0 / float64(inputDim))
	for i := range c.w {
		c.w[i] = rand.NormFloat64() * scale
	}
	return c
}

// GetWeights returns a copy of the current parameters.
func (c *Classifier) GetWeights() actor.ModelWeights {
	return actor.ModelWeights{
		W:      append([]float64(nil), c.w...),
		WShape: []int{c.inputDim, c.numClasses},
		B:      append([]float64(nil), c.b...),
		BShape: []int{c.numClasses},
		DType:  "float64",
	}
}

// SetWeights replaces the current parameters with a copy of w.
func (c *Classifier) SetWeights(w actor.ModelWeights) {
	c.w = append([]float64(nil), w.W...)
	c.b = append([]float64(nil), w.B...)
}

// SetFedProx enables (mu > 0) or disables (mu == 0) the proximal penalty
// that pulls local updates back toward globalWeights.
func (c *Classifier) SetFedProx(mu float64, globalWeights *actor.ModelWeights) {
	c.mu = mu
	if globalWeights == nil {
		c.wGlobal, c.bGlobal = nil, nil
		return
	}
	c.wGlobal = append([]float64(nil), globalWeights.W...)
	c.bGlobal = append([]float64(nil), globalWeights.B...)
}

func (c *Classifier) forward(x []float64) []float64 {
	logits := make([]float64, c.numClasses)
	for k := 0; k < c.numClasses; k++ {
		sum := c.b[k]
		for d := 0; d < c.inputDim; d++ {
			sum += x[d] * c.w[d*c.numClasses+k]
		}
		logits[k] = sum
	}
	return softmax(logits)
}

func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// trainStep runs one gradient step over a single mini-batch and returns
// its loss and accuracy.
func (c *Classifier) trainStep(batch []Example) (loss, accuracy float64) {
	n := len(batch)
	gradW := make([]float64, len(c.w))
	gradB := make([]float64, len(c.b))

	correct := 0
	for _, ex := range batch {
		probs := c.forward(ex.Features)
		loss += -math.Log(probs[ex.Label] + 1e-10)

		pred := argmax(probs)
		if pred == ex.Label {
			correct++
		}

		dLogits := append([]float64(nil), probs...)
		dLogits[ex.Label] -= 1
		for k := range dLogits {
			dLogits[k] /= float64(n)
		}

		for d := 0; d < c.inputDim; d++ {
			for k := 0; k < c.numClasses; k++ {
				gradW[d*c.numClasses+k] += ex.Features[d] * dLogits[k]
			}
		}
		for k := range gradB {
			gradB[k] += dLogits[k]
		}
	}

	if c.mu > 0 && c.wGlobal != nil {
		for i := range gradW {
			gradW[i] += c.mu * (c.w[i] - c.wGlobal[i])
		}
		for i := range gradB {
			gradB[i] += c.mu * (c.b[i] - c.bGlobal[i])
		}
	}

	for i := range c.w {
		c.w[i] -= c.lr * gradW[i]
	}
	for i := range c.b {
		c.b[i] -= c.lr * gradB[i]
	}

	return loss / float64(n), float64(correct) / float64(n)
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// TrainEpoch shuffles examples once and runs gradient steps over batches
// of batchSize, returning the epoch's mean loss and accuracy.
func (c *Classifier) TrainEpoch(examples []Example, batchSize int) (map[string]float64, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("classifier: no training examples")
	}
	order := rand.Perm(len(examples))

	var totalLoss float64
	var totalCorrect float64
	batches := 0
	for start := 0; start < len(order); start += batchSize {
		end := start + batchSize
		if end > len(order) {
			end = len(order)
		}
		batch := make([]Example, 0, end-start)
		for _, idx := range order[start:end] {
			batch = append(batch, examples[idx])
		}
		loss, acc := c.trainStep(batch)
		totalLoss += loss
		totalCorrect += acc * float64(len(batch))
		batches++
	}

	return map[string]float64{
		"loss":     totalLoss / float64(batches),
		"accuracy": totalCorrect / float64(len(examples)),
	}, nil
}

// Evaluate computes loss and per-class accuracy over examples without
// updating any parameter.
func (c *Classifier) Evaluate(examples []Example) (loss, accuracy float64, perClass map[string]float64) {
	if len(examples) == 0 {
		return 0, 0, nil
	}

	correctByClass := make(map[int]int)
	totalByClass := make(map[int]int)
	var totalLoss float64
	correct := 0

	for _, ex := range examples {
		probs := c.forward(ex.Features)
		totalLoss += -math.Log(probs[ex.Label] + 1e-10)

		pred := argmax(probs)
		totalByClass[ex.Label]++
		if pred == ex.Label {
			correct++
			correctByClass[ex.Label]++
		}
	}

	perClass = make(map[string]float64, len(totalByClass))
	for class, total := range totalByClass {
		perClass[fmt.Sprintf("%d", class)] = float64(correctByClass[class]) / float64(total)
	}

	return totalLoss / float64(len(examples)), float64(correct) / float64(len(examples)), perClass
}
