package crdt

import (
	"encoding/json"
	"fmt"
	"sync"
)

// PNCounter is a positive-negative counter CRDT: a pair of grow-only
// counters (P, N) keyed by replica id, merged element-wise by max. Value
// is sum(P) - sum(N).
type PNCounter struct {
	mu        sync.RWMutex
	replicaID string
	P         map[string]int64
	N         map[string]int64
}

// NewPNCounter constructs an empty PNCounter scoped to replicaID.
func NewPNCounter(replicaID string) *PNCounter {
	return &PNCounter{
		replicaID: replicaID,
		P:         make(map[string]int64),
		N:         make(map[string]int64),
	}
}

// Type implements CRDT.
func (c *PNCounter) Type() Type { return TypePNCounter }

// Increment bumps this replica's own entry in P by one.
func (c *PNCounter) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.P[c.replicaID]++
}

// Decrement bumps this replica's own entry in N by one.
func (c *PNCounter) Decrement() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.N[c.replicaID]++
}

// Value returns sum(P) - sum(N) across all replicas observed so far.
func (c *PNCounter) Value() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var sumP, sumN int64
	for _, v := range c.P {
		sumP += v
	}
	for _, v := range c.N {
		sumN += v
	}
	return sumP - sumN
}

// Merge folds another PNCounter's state into this one by element-wise max
// on both P and N, which is idempotent, commutative and associative.
func (c *PNCounter) Merge(other *PNCounter) {
	other.mu.RLock()
	otherP := make(map[string]int64, len(other.P))
	for k, v := range other.P {
		otherP[k] = v
	}
	otherN := make(map[string]int64, len(other.N))
	for k, v := range other.N {
		otherN[k] = v
	}
	other.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, v := range otherP {
		if v > c.P[id] {
			c.P[id] = v
		}
	}
	for id, v := range otherN {
		if v > c.N[id] {
			c.N[id] = v
		}
	}
}

// MergeSnapshot folds a wire/persisted snapshot's P/N maps into this
// counter, used when the peer only has the decoded maps rather than a live
// *PNCounter (e.g. after unmarshaling a gossip delta).
func (c *PNCounter) MergeSnapshot(p, n map[string]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, v := range p {
		if v > c.P[id] {
			c.P[id] = v
		}
	}
	for id, v := range n {
		if v > c.N[id] {
			c.N[id] = v
		}
	}
}

type pnCounterWire struct {
	Type Type             `json:"type"`
	P    map[string]int64 `json:"p"`
	N    map[string]int64 `json:"n"`
}

// Marshal implements CRDT.
func (c *PNCounter) Marshal() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(pnCounterWire{Type: TypePNCounter, P: c.P, N: c.N})
}

// Unmarshal implements CRDT, replacing the current contents entirely.
func (c *PNCounter) Unmarshal(data []byte) error {
	var aux pnCounterWire
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Type != TypePNCounter {
		return fmt.Errorf("%w: expected %s, got %s", ErrIncompatibleTypes, TypePNCounter, aux.Type)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.P = aux.P
	if c.P == nil {
		c.P = make(map[string]int64)
	}
	c.N = aux.N
	if c.N == nil {
		c.N = make(map[string]int64)
	}
	return nil
}

// Snapshot returns copies of the P and N maps for gossip transmission.
func (c *PNCounter) Snapshot() (p, n map[string]int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p = make(map[string]int64, len(c.P))
	for k, v := range c.P {
		p[k] = v
	}
	n = make(map[string]int64, len(c.N))
	for k, v := range c.N {
		n[k] = v
	}
	return p, n
}

// SetReplicaID re-stamps the replica identity used by subsequent
// Increment/Decrement calls.
func (c *PNCounter) SetReplicaID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replicaID = id
}
