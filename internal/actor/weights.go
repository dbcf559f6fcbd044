package actor

import "github.com/fedactor/flmesh/pkg/crdt"

// ModelWeights is the wire/persistence shape of a linear-softmax model's
// parameters: a weight matrix W flattened row-major plus its shape, and a
// bias vector b. Values travel as plain float64 slices (JSON numbers on
// the wire), with the shape carried alongside so every peer can validate
// compatibility before folding a remote model into its own aggregation,
// per §4.7.
type ModelWeights struct {
	W      []float64 `json:"w"`
	WShape []int     `json:"w_shape"`
	B      []float64 `json:"b"`
	BShape []int     `json:"b_shape"`
	DType  string    `json:"dtype"`
}

// ShapeMatches reports whether two weight sets share the same W and B
// shapes, the precondition for including a remote model in aggregation.
func (m ModelWeights) ShapeMatches(other ModelWeights) bool {
	return intsEqual(m.WShape, other.WShape) && intsEqual(m.BShape, other.BShape)
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GlobalModelEntry is the value stored under "model/<peer_id>" in a
// gossip peer's LWWMap, per §3.
type GlobalModelEntry struct {
	PeerID     string       `json:"peer_id"`
	Round      int          `json:"round"`
	NumSamples int          `json:"n_samples"`
	Weights    ModelWeights `json:"weights"`
}

// LWWSnapshot is the wire shape of an LWWMap's full state, used inside a
// CRDTDelta during gossip exchange.
type LWWSnapshot struct {
	Snapshot crdt.Snapshot `json:"snapshot"`
}

// PNSnapshot is the wire shape of a PNCounter's P/N maps.
type PNSnapshot struct {
	P map[string]int64 `json:"p"`
	N map[string]int64 `json:"n"`
}
