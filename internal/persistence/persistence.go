// Package persistence adapts the generic keyed-row Store from
// internal/storage into the two tables §6 calls for: a rounds table
// keyed by round index, and a gossip table keyed by (peer_id, round_num).
// Both are last-writer-wins: a Put simply overwrites whatever was at that
// key, since the actors above already resolve conflicting updates before
// they reach persistence.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/storage"
	"github.com/fedactor/flmesh/pkg/crdt"
)

const (
	roundPrefix  = "round/"
	gossipPrefix = "gossip/"
)

// RoundRecord is one orchestrated round's durable outcome.
type RoundRecord struct {
	Round        int                `json:"round"`
	Weights      actor.ModelWeights `json:"weights"`
	TrainSummary map[string]float64 `json:"train_summary"`
}

// RoundStore persists orchestrated aggregation results, one row per round.
type RoundStore struct {
	store storage.Store
}

// NewRoundStore wraps store for round-indexed access.
func NewRoundStore(store storage.Store) *RoundStore {
	return &RoundStore{store: store}
}

func roundKey(round int) []byte {
	return []byte(fmt.Sprintf("%s%08d", roundPrefix, round))
}

// Put overwrites the record for rec.Round.
func (s *RoundStore) Put(ctx context.Context, rec RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persistence: marshal round record: %w", err)
	}
	return s.store.Set(ctx, roundKey(rec.Round), data)
}

// Get retrieves the record for round, (zero value, false, nil) if absent.
func (s *RoundStore) Get(ctx context.Context, round int) (RoundRecord, bool, error) {
	data, err := s.store.Get(ctx, roundKey(round))
	if err != nil {
		return RoundRecord{}, false, err
	}
	if data == nil {
		return RoundRecord{}, false, nil
	}
	var rec RoundRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return RoundRecord{}, false, fmt.Errorf("persistence: unmarshal round record: %w", err)
	}
	return rec, true, nil
}

// Latest scans every round row and returns the highest round number
// recorded, or false if the table is empty.
func (s *RoundStore) Latest(ctx context.Context) (RoundRecord, bool, error) {
	var latest RoundRecord
	found := false
	err := s.store.Iterate(ctx, []byte(roundPrefix), func(_, value []byte) error {
		var rec RoundRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("persistence: unmarshal round record: %w", err)
		}
		if !found || rec.Round > latest.Round {
			latest = rec
			found = true
		}
		return nil
	})
	return latest, found, err
}

// GossipRecord is one peer's state at one observed round. It folds the two
// gossip tables §6 calls for — (peer_id, round_num, lww_snapshot,
// pn_snapshot, timestamp) and (peer_id, round_num, loss, accuracy,
// timestamp) — into a single row, the same way RoundRecord folds the
// orchestrated path's weights/train/eval columns into one; both are
// addressed by the same (peer_id, round_num) primary key, so one keyed Set
// per round naturally satisfies last-writer-wins across both.
type GossipRecord struct {
	PeerID      string           `json:"peer_id"`
	RoundNum    int              `json:"round_num"`
	DeltaNorm   float64          `json:"delta_norm"`
	LWWSnapshot crdt.Snapshot    `json:"lww_snapshot"`
	PNCounterP  map[string]int64 `json:"pn_counter_p"`
	PNCounterN  map[string]int64 `json:"pn_counter_n"`
	Loss        float64          `json:"loss"`
	Accuracy    float64          `json:"accuracy"`
	Timestamp   time.Time        `json:"timestamp"`
}

// GossipStore persists per-peer, per-round gossip progress snapshots.
type GossipStore struct {
	store storage.Store
}

// NewGossipStore wraps store for (peer_id, round_num)-indexed access.
func NewGossipStore(store storage.Store) *GossipStore {
	return &GossipStore{store: store}
}

func gossipKey(peerID string, round int) []byte {
	return []byte(fmt.Sprintf("%s%s/%08d", gossipPrefix, peerID, round))
}

// Put overwrites the row for (rec.PeerID, rec.RoundNum).
func (s *GossipStore) Put(ctx context.Context, rec GossipRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persistence: marshal gossip record: %w", err)
	}
	return s.store.Set(ctx, gossipKey(rec.PeerID, rec.RoundNum), data)
}

// ForPeer returns every recorded row for peerID, in storage iteration
// order (not necessarily sorted by round).
func (s *GossipStore) ForPeer(ctx context.Context, peerID string) ([]GossipRecord, error) {
	var out []GossipRecord
	err := s.store.Iterate(ctx, []byte(gossipPrefix+peerID+"/"), func(_, value []byte) error {
		var rec GossipRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("persistence: unmarshal gossip record: %w", err)
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Latest returns the highest-round_num row recorded for peerID, or false
// if nothing has been persisted for it yet. Used on startup to restore a
// peer's CRDT state and round_num per §4.7.
func (s *GossipStore) Latest(ctx context.Context, peerID string) (GossipRecord, bool, error) {
	var latest GossipRecord
	found := false
	err := s.store.Iterate(ctx, []byte(gossipPrefix+peerID+"/"), func(_, value []byte) error {
		var rec GossipRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("persistence: unmarshal gossip record: %w", err)
		}
		if !found || rec.RoundNum > latest.RoundNum {
			latest = rec
			found = true
		}
		return nil
	})
	return latest, found, err
}
