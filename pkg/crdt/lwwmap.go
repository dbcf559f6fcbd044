package crdt

import (
	"encoding/json"
	"fmt"
	"sync"
)

// gcHorizon is the number of logical ticks a tombstone may lag behind the
// local clock before it becomes eligible for compaction, per §4.5.
const gcHorizon = 300

// entry is a single live value in the map, stamped with the timestamp that
// produced it.
type entry struct {
	Value any       `json:"value"`
	TS    Timestamp `json:"ts"`
}

// LWWMap is a last-writer-wins map CRDT: concurrent puts/deletes of the
// same key converge deterministically by (logical_time, replica_id), and
// deletes are recorded as tombstones so they can shadow older puts learned
// later, out of order, or duplicated.
type LWWMap struct {
	mu         sync.RWMutex
	replicaID  string
	clock      int64
	data       map[string]entry
	tombstones map[string]Timestamp
}

// NewLWWMap constructs an empty LWWMap scoped to replicaID.
func NewLWWMap(replicaID string) *LWWMap {
	return &LWWMap{
		replicaID:  replicaID,
		data:       make(map[string]entry),
		tombstones: make(map[string]Timestamp),
	}
}

// Type implements CRDT.
func (m *LWWMap) Type() Type { return TypeLWWMap }

// nextTimestamp advances the local clock and stamps it with this replica's
// id. Callers must hold mu.
func (m *LWWMap) nextTimestamp() Timestamp {
	m.clock++
	return Timestamp{ReplicaID: m.replicaID, LogicalTime: m.clock}
}

// observe folds a remote logical time into the local clock, per §3's
// invariant: local := max(local, remote) + 1.
func (m *LWWMap) observe(remote int64) {
	if remote > m.clock {
		m.clock = remote
	}
	m.clock++
}

// Put installs value under key with a freshly minted local timestamp,
// dropping any tombstone for key that is now stale.
func (m *LWWMap) Put(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.nextTimestamp()
	m.data[key] = entry{Value: value, TS: ts}
	if old, ok := m.tombstones[key]; ok && old.Less(ts) {
		delete(m.tombstones, key)
	}
}

// Delete records a tombstone for key at a freshly minted local timestamp,
// removing any data entry it shadows.
func (m *LWWMap) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.nextTimestamp()
	m.tombstones[key] = ts
	if e, ok := m.data[key]; ok && e.TS.LessOrEqual(ts) {
		delete(m.data, key)
	}
}

// Get returns the visible value for key: present iff key has a data entry
// whose timestamp is not shadowed by a tombstone at or after it.
func (m *LWWMap) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(key)
}

func (m *LWWMap) getLocked(key string) (any, bool) {
	e, ok := m.data[key]
	if !ok {
		return nil, false
	}
	if tomb, ok := m.tombstones[key]; ok && e.TS.LessOrEqual(tomb) {
		return nil, false
	}
	return e.Value, true
}

// DeltaFor packages the current data entry (if any) or tombstone (if any)
// for key as a Delta suitable for Merge on another replica. Used to ship a
// just-performed Put/Delete to peers without re-deriving its timestamp.
func (m *LWWMap) DeltaFor(key string) (Delta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.data[key]; ok {
		return NewPutDelta(key, e.Value, e.TS), true
	}
	if ts, ok := m.tombstones[key]; ok {
		return NewDeleteDelta(key, ts), true
	}
	return Delta{}, false
}

// Keys returns the set of keys currently visible (not shadowed by a
// tombstone), in no particular order.
func (m *LWWMap) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if _, ok := m.getLocked(k); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// putDelta is the wire shape of a single put operation exchanged between
// peers. Full snapshots (ToSnapshot/MergeState) carry entry values instead.
type putDelta struct {
	Key   string    `json:"key"`
	Value any       `json:"value"`
	TS    Timestamp `json:"ts"`
}

type deleteDelta struct {
	Key string    `json:"key"`
	TS  Timestamp `json:"ts"`
}

// Delta is the closed-set wire envelope for a single LWWMap operation:
// exactly one of Put or Del is populated, selected by Op.
type Delta struct {
	Op  string       `json:"op"` // "put" or "delete"
	Put *putDelta    `json:"put,omitempty"`
	Del *deleteDelta `json:"del,omitempty"`
}

// MergePut applies a remote put operation if it is strictly newer than
// whatever this replica currently holds for the key.
func (m *LWWMap) MergePut(key string, value any, ts Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergePutLocked(key, value, ts)
}

func (m *LWWMap) mergePutLocked(key string, value any, ts Timestamp) {
	defer m.observe(ts.LogicalTime)

	if tomb, ok := m.tombstones[key]; ok && ts.LessOrEqual(tomb) {
		return
	}
	if existing, ok := m.data[key]; ok && !existing.TS.Less(ts) {
		return
	}
	m.data[key] = entry{Value: value, TS: ts}
}

// MergeDelete applies a remote delete operation if it is at least as new as
// whatever this replica currently holds for the key (ties go to delete, so
// a concurrent delete-vs-put at the same logical time is resolved
// deterministically by the (logical_time, replica_id) order, with delete
// winning when timestamps are equal).
func (m *LWWMap) MergeDelete(key string, ts Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeDeleteLocked(key, ts)
}

func (m *LWWMap) mergeDeleteLocked(key string, ts Timestamp) {
	defer m.observe(ts.LogicalTime)

	if existing, ok := m.tombstones[key]; !ok || existing.Less(ts) {
		m.tombstones[key] = ts
	}
	if e, ok := m.data[key]; ok && e.TS.LessOrEqual(ts) {
		delete(m.data, key)
	}
}

// NewPutDelta wraps a put operation for transmission through Merge.
func NewPutDelta(key string, value any, ts Timestamp) Delta {
	return Delta{Op: "put", Put: &putDelta{Key: key, Value: value, TS: ts}}
}

// NewDeleteDelta wraps a delete operation for transmission through Merge.
func NewDeleteDelta(key string, ts Timestamp) Delta {
	return Delta{Op: "delete", Del: &deleteDelta{Key: key, TS: ts}}
}

// Merge applies a single delta (a put or a delete) received from a peer.
func (m *LWWMap) Merge(d Delta) error {
	switch d.Op {
	case "put":
		if d.Put == nil {
			return fmt.Errorf("crdt: lwwmap put delta missing payload")
		}
		m.MergePut(d.Put.Key, d.Put.Value, d.Put.TS)
		return nil
	case "delete":
		if d.Del == nil {
			return fmt.Errorf("crdt: lwwmap delete delta missing payload")
		}
		m.MergeDelete(d.Del.Key, d.Del.TS)
		return nil
	default:
		return fmt.Errorf("crdt: lwwmap delta missing or unknown op %q", d.Op)
	}
}

// Snapshot is the full wire/persistence form of an LWWMap: every data entry
// and every tombstone, enough to reconstruct state on another replica via
// MergeState, or to restore a peer's own state on restart.
type Snapshot struct {
	Data       map[string]entry     `json:"data"`
	Tombstones map[string]Timestamp `json:"tombstones"`
	Clock      int64                `json:"clock"`
}

// ToSnapshot captures the full current state for gossip transmission or
// persistence.
func (m *LWWMap) ToSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data := make(map[string]entry, len(m.data))
	for k, v := range m.data {
		data[k] = v
	}
	tomb := make(map[string]Timestamp, len(m.tombstones))
	for k, v := range m.tombstones {
		tomb[k] = v
	}
	return Snapshot{Data: data, Tombstones: tomb, Clock: m.clock}
}

// MergeState folds a full snapshot from another replica into this one.
// Tombstones are applied first so they can shadow data entries learned in
// the same pass, then data entries are merged under the same visibility
// rule as single-delta merges.
func (m *LWWMap) MergeState(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, ts := range snap.Tombstones {
		m.mergeDeleteLocked(key, ts)
	}
	for key, e := range snap.Data {
		m.mergePutLocked(key, e.Value, e.TS)
	}
}

// GC compacts tombstones (and the data entries they shadow) whose logical
// time trails the local clock by more than gcHorizon ticks.
func (m *LWWMap) GC() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, ts := range m.tombstones {
		if m.clock-ts.LogicalTime > gcHorizon {
			delete(m.tombstones, key)
			if e, ok := m.data[key]; ok && e.TS.LessOrEqual(ts) {
				delete(m.data, key)
			}
		}
	}
}

// Marshal implements CRDT by serializing the full snapshot.
func (m *LWWMap) Marshal() ([]byte, error) {
	return json.Marshal(struct {
		Type Type     `json:"type"`
		Snap Snapshot `json:"snapshot"`
	}{Type: TypeLWWMap, Snap: m.ToSnapshot()})
}

// Unmarshal implements CRDT by restoring state from a serialized snapshot,
// replacing the current contents entirely (used on startup restore, not
// merge).
func (m *LWWMap) Unmarshal(data []byte) error {
	var aux struct {
		Type Type     `json:"type"`
		Snap Snapshot `json:"snapshot"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Type != TypeLWWMap {
		return fmt.Errorf("%w: expected %s, got %s", ErrIncompatibleTypes, TypeLWWMap, aux.Type)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = aux.Snap.Data
	if m.data == nil {
		m.data = make(map[string]entry)
	}
	m.tombstones = aux.Snap.Tombstones
	if m.tombstones == nil {
		m.tombstones = make(map[string]Timestamp)
	}
	m.clock = aux.Snap.Clock
	return nil
}

// SetReplicaID re-stamps the replica identity used by subsequent Put/Delete
// calls, without touching existing entries. Used when a persisted snapshot
// is restored under a differently-configured peer id.
func (m *LWWMap) SetReplicaID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replicaID = id
}
