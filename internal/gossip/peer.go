// Package gossip implements the autonomous peer-to-peer protocol: each
// Peer runs its own training loop and gossip loop side by side, merging
// CRDT state from whatever peers it happens to exchange with rather than
// waiting on any central coordinator.
package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/classifier"
	"github.com/fedactor/flmesh/internal/persistence"
	"github.com/fedactor/flmesh/pkg/crdt"
)

const modelKeyPrefix = "model/"

// Config tunes one autonomous gossip peer. Zero values fall back to the
// same defaults the protocol ships with.
type Config struct {
	PeerID              string
	Fanout              int
	GossipInterval      time.Duration
	LocalEpochs         int
	BatchSize           int
	ConvergenceEps      float64
	ConvergencePatience int
	MaxRounds           int // 0 means unbounded
	MinGlobalApplyEps   float64
	SeedPeers           []actor.RemoteAddr
	ReporterAddr        *actor.RemoteAddr
}

func (c *Config) setDefaults() {
	if c.Fanout <= 0 {
		c.Fanout = 2
	}
	if c.GossipInterval <= 0 {
		c.GossipInterval = 3 * time.Second
	}
	if c.LocalEpochs <= 0 {
		c.LocalEpochs = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.ConvergenceEps <= 0 {
		c.ConvergenceEps = 1e-3
	}
	if c.ConvergencePatience <= 0 {
		c.ConvergencePatience = 3
	}
	if c.MinGlobalApplyEps <= 0 {
		c.MinGlobalApplyEps = 1e-9
	}
}

type peerLocation struct {
	Host string
	Port int
}

// Peer is the autonomous gossip actor: it publishes its own model under
// model/<peer_id> in an LWWMap, exchanges CRDT snapshots with a random
// subset of known peers on a fixed interval, and recomputes its working
// model as a sample-weighted average over every model entry it has seen.
type Peer struct {
	actor.BaseActor

	cfg      Config
	examples []classifier.Example
	model    *classifier.Classifier
	rounds   *persistence.GossipStore
	log      *zap.Logger

	lww *crdt.LWWMap
	pn  *crdt.PNCounter

	mu                sync.Mutex
	roundNum          int
	startRound        int
	knownPeers        map[string]actor.RemoteAddr
	peerLocations     map[string]peerLocation
	seedRefs          map[string]actor.RemoteAddr
	lastDeltaNorm     float64
	convergenceCount  int
	stopped           bool
	lastGlobalWeights *actor.ModelWeights

	stopCh chan struct{}
}

// NewPeer constructs a Peer over examples using model as its local working
// model. rounds may be nil to skip progress persistence.
func NewPeer(cfg Config, examples []classifier.Example, model *classifier.Classifier, rounds *persistence.GossipStore, log *zap.Logger) *Peer {
	cfg.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Peer{
		cfg:           cfg,
		examples:      examples,
		model:         model,
		rounds:        rounds,
		log:           log,
		lww:           crdt.NewLWWMap(cfg.PeerID),
		pn:            crdt.NewPNCounter(cfg.PeerID),
		knownPeers:    make(map[string]actor.RemoteAddr),
		peerLocations: make(map[string]peerLocation),
		seedRefs:      make(map[string]actor.RemoteAddr),
		stopCh:        make(chan struct{}),
	}
}

// PreStart seeds the CRDT state, publishes the initial model, resolves
// seed endpoints and launches the training and gossip loops.
func (p *Peer) PreStart() {
	p.log.Info("gossip peer started (autonomous)", zap.String("peer_id", p.cfg.PeerID))

	host, port := p.Context().ListenEndpoint()

	p.mu.Lock()
	p.peerLocations[p.cfg.PeerID] = peerLocation{Host: host, Port: port}
	for _, seed := range p.cfg.SeedPeers {
		if seed.Host == host && seed.Port == port {
			continue
		}
		key := endpointKey(seed.Host, seed.Port)
		if _, exists := p.seedRefs[key]; !exists {
			p.seedRefs[key] = seed
		}
	}
	p.mu.Unlock()

	p.restoreFromPersistence()

	shape := p.model.GetWeights()
	p.lww.Put("peer_id", p.cfg.PeerID)
	p.lww.Put("status", "active")
	if len(shape.WShape) == 2 {
		p.lww.Put("model_meta", map[string]int{"input_dim": shape.WShape[0], "num_classes": shape.WShape[1]})
	}
	p.pn.Increment()

	p.publishLocalModel(0)
	p.recomputeGlobalModel("startup")

	go p.trainingLoop()
	go p.gossipLoop()

	p.log.Info("peer running autonomously", zap.String("peer_id", p.cfg.PeerID))
}

// restoreFromPersistence loads the most recent persisted gossip snapshot
// for this peer_id, if any, restoring the CRDTs and round_num and
// normalizing both CRDTs' replica id to the configured peer_id, per §4.7's
// startup contract.
func (p *Peer) restoreFromPersistence() {
	if p.rounds == nil {
		return
	}
	rec, ok, err := p.rounds.Latest(context.Background(), p.cfg.PeerID)
	if err != nil {
		p.log.Warn("gossip state restore failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	p.lww.MergeState(rec.LWWSnapshot)
	p.pn.MergeSnapshot(rec.PNCounterP, rec.PNCounterN)
	p.lww.SetReplicaID(p.cfg.PeerID)
	p.pn.SetReplicaID(p.cfg.PeerID)

	p.mu.Lock()
	p.roundNum = rec.RoundNum
	p.startRound = rec.RoundNum
	p.lastDeltaNorm = rec.DeltaNorm
	p.mu.Unlock()

	p.log.Info("restored gossip state from persistence", zap.String("peer_id", p.cfg.PeerID), zap.Int("round_num", rec.RoundNum))
}

// PostStop halts both background loops.
func (p *Peer) PostStop() {
	close(p.stopCh)

	p.mu.Lock()
	p.stopped = true
	round, deltaNorm := p.roundNum, p.lastDeltaNorm
	p.mu.Unlock()

	p.log.Info("peer stopped", zap.String("peer_id", p.cfg.PeerID), zap.Int("rounds", round), zap.Float64("final_delta_norm", deltaNorm))
}

// Receive handles GossipPeerJoin, GossipState, HealthPing and Shutdown.
// MembershipUpdate carries no action here — membership is learned purely
// through GossipState's piggybacked peer_info, matching the protocol's
// original peer implementation.
func (p *Peer) Receive(msg actor.Message) {
	switch m := msg.(type) {
	case actor.GossipPeerJoin:
		p.registerPeer(m)
	case actor.MembershipUpdate:
		return
	case actor.GossipState:
		p.handleGossipState(m)
	case actor.HealthPing:
		if m.Sender != nil {
			self := p.Context().Self()
			m.Sender.Tell(actor.HealthAck{Envelope: actor.NewReply(&self, m), ActorID: self.ActorID})
		}
	case actor.Shutdown:
		p.log.Info("peer shutting down", zap.String("peer_id", p.cfg.PeerID))
	}
}

func (p *Peer) registerPeer(msg actor.GossipPeerJoin) {
	if msg.PeerID == "" || msg.PeerID == p.cfg.PeerID || strings.Contains(msg.PeerID, ":") {
		return
	}
	host, port := p.Context().ListenEndpoint()
	if msg.Host == host && msg.Port == port {
		return
	}

	p.log.Info("discovered peer", zap.String("peer_id", msg.PeerID), zap.String("host", msg.Host), zap.Int("port", msg.Port))

	p.mu.Lock()
	p.peerLocations[msg.PeerID] = peerLocation{Host: msg.Host, Port: msg.Port}
	p.knownPeers[msg.PeerID] = actor.RemoteAddr{Host: msg.Host, Port: msg.Port}
	delete(p.seedRefs, endpointKey(msg.Host, msg.Port))
	p.mu.Unlock()
}

func (p *Peer) handleGossipState(msg actor.GossipState) {
	p.log.Debug("merging gossip state", zap.String("from", msg.PeerID), zap.Int("deltas", len(msg.CRDTDeltas)))

	for _, delta := range msg.CRDTDeltas {
		switch delta.Type {
		case actor.DeltaTypeLWW:
			if delta.LWW != nil {
				p.lww.MergeState(delta.LWW.Snapshot)
			}
		case actor.DeltaTypePN:
			if delta.PN != nil {
				p.pn.MergeSnapshot(delta.PN.P, delta.PN.N)
			}
		}
	}

	host, port := p.Context().ListenEndpoint()
	p.mu.Lock()
	for peerID, ep := range msg.PeerInfo {
		if peerID == "" || strings.Contains(peerID, ":") || peerID == p.cfg.PeerID {
			continue
		}
		if ep.Host == host && ep.Port == port {
			continue
		}
		if _, known := p.knownPeers[peerID]; !known {
			p.log.Info("learned new peer via gossip", zap.String("peer_id", peerID), zap.String("host", ep.Host), zap.Int("port", ep.Port))
			p.peerLocations[peerID] = peerLocation{Host: ep.Host, Port: ep.Port}
			p.knownPeers[peerID] = actor.RemoteAddr{Host: ep.Host, Port: ep.Port}
			delete(p.seedRefs, endpointKey(ep.Host, ep.Port))
		}
	}
	p.mu.Unlock()

	p.recomputeGlobalModel("gossip_from=" + msg.PeerID)
}

func (p *Peer) gossipLoop() {
	select {
	case <-time.After(2 * time.Second):
	case <-p.stopCh:
		return
	}

	ticker := time.NewTicker(p.cfg.GossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.gossipOnce()
			if p.checkConverged() {
				p.log.Info("convergence detected", zap.Int("patience", p.cfg.ConvergencePatience))
				p.mu.Lock()
				p.stopped = true
				p.mu.Unlock()
				return
			}
		}
	}
}

func (p *Peer) gossipOnce() {
	lwwDelta := actor.CRDTDelta{Type: actor.DeltaTypeLWW, LWW: &actor.LWWSnapshot{Snapshot: p.lww.ToSnapshot()}}
	pnP, pnN := p.pn.Snapshot()
	pnDelta := actor.CRDTDelta{Type: actor.DeltaTypePN, PN: &actor.PNSnapshot{P: pnP, N: pnN}}
	deltas := []actor.CRDTDelta{lwwDelta, pnDelta}

	host, port := p.Context().ListenEndpoint()

	p.mu.Lock()
	peerInfoToSend := make(map[string]actor.PeerEndpoint, len(p.peerLocations))
	for id, loc := range p.peerLocations {
		if id == "" || strings.Contains(id, ":") {
			continue
		}
		peerInfoToSend[id] = actor.PeerEndpoint{Host: loc.Host, Port: loc.Port}
	}

	deltaNorm := p.lastDeltaNorm
	p.updateConvergenceLocked(deltaNorm)

	targets := make(map[string]actor.RemoteAddr, len(p.knownPeers)+len(p.seedRefs))
	for id, addr := range p.knownPeers {
		if id != p.cfg.PeerID {
			targets[id] = addr
		}
	}
	for key, addr := range p.seedRefs {
		if addr.Host == host && addr.Port == port {
			continue
		}
		targets[key] = addr
	}
	roundNum := p.roundNum
	reporterAddr := p.cfg.ReporterAddr
	p.mu.Unlock()

	keys := make([]string, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}
	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	fanout := p.cfg.Fanout
	if fanout > len(keys) {
		fanout = len(keys)
	}

	state := actor.GossipState{
		Envelope:   actor.NewEnvelope(nil),
		PeerID:     p.cfg.PeerID,
		RoundNum:   roundNum,
		DeltaNorm:  deltaNorm,
		CRDTDeltas: deltas,
		PeerInfo:   peerInfoToSend,
	}

	sentTo := make([]string, 0, fanout)
	for _, key := range keys[:fanout] {
		ref := p.Context().RemoteRef("peer", targets[key])
		ref.Tell(state)
		sentTo = append(sentTo, key)
	}
	if len(sentTo) > 0 {
		p.log.Info("gossip sent", zap.Strings("targets", sentTo), zap.Float64("delta_norm", deltaNorm))
	}

	if reporterAddr != nil {
		p.Context().RemoteRef("reporter", *reporterAddr).Tell(state)
	}
}

func (p *Peer) trainingLoop() {
	select {
	case <-time.After(time.Second):
	case <-p.stopCh:
		return
	}

	if len(p.examples) == 0 {
		p.log.Warn("no training data, skipping training loop", zap.String("peer_id", p.cfg.PeerID))
		return
	}

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		p.mu.Lock()
		stop := p.stopped || !p.canRunMoreRoundsLocked()
		p.mu.Unlock()
		if stop {
			return
		}

		p.recomputeGlobalModel("before_train")

		p.mu.Lock()
		p.roundNum++
		round := p.roundNum
		prevGlobal := p.lastGlobalWeights
		p.mu.Unlock()

		prevLocal := p.lockedGetWeights()

		var totalLoss, totalAcc float64
		for epoch := 0; epoch < p.cfg.LocalEpochs; epoch++ {
			metrics, err := p.lockedTrainEpoch()
			if err != nil {
				p.log.Error("local epoch failed", zap.Error(err))
				return
			}
			totalLoss += metrics["loss"]
			totalAcc += metrics["accuracy"]
		}
		avgLoss := totalLoss / float64(p.cfg.LocalEpochs)
		avgAcc := totalAcc / float64(p.cfg.LocalEpochs)

		p.publishLocalModel(round)
		p.recomputeGlobalModel("after_local_publish")

		p.mu.Lock()
		newGlobal := p.lastGlobalWeights
		var deltaNorm float64
		if prevGlobal != nil && newGlobal != nil {
			deltaNorm = weightDeltaNorm(*prevGlobal, *newGlobal)
		} else {
			deltaNorm = weightDeltaNorm(prevLocal, p.lockedGetWeightsNoLock())
		}
		p.lastDeltaNorm = deltaNorm
		p.mu.Unlock()

		p.log.Info("round complete", zap.Int("round", round), zap.Float64("global_delta_norm", deltaNorm), zap.Float64("loss", avgLoss), zap.Float64("accuracy", avgAcc))

		if p.rounds != nil {
			pnP, pnN := p.pn.Snapshot()
			rec := persistence.GossipRecord{
				PeerID:      p.cfg.PeerID,
				RoundNum:    round,
				DeltaNorm:   deltaNorm,
				LWWSnapshot: p.lww.ToSnapshot(),
				PNCounterP:  pnP,
				PNCounterN:  pnN,
				Loss:        avgLoss,
				Accuracy:    avgAcc,
				Timestamp:   time.Now(),
			}
			if err := p.rounds.Put(context.Background(), rec); err != nil {
				p.log.Warn("persistence save failed", zap.Error(err))
			}
		}

		select {
		case <-time.After(2 * time.Second):
		case <-p.stopCh:
			return
		}
	}
}

// lockedGetWeights and lockedTrainEpoch serialize every touch of the
// shared classifier against the gossip-triggered recomputation path,
// since both run from distinct goroutines (the training loop and this
// actor's own mailbox-consumer goroutine handling GossipState).
func (p *Peer) lockedGetWeights() actor.ModelWeights {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.GetWeights()
}

func (p *Peer) lockedGetWeightsNoLock() actor.ModelWeights {
	return p.model.GetWeights()
}

func (p *Peer) lockedTrainEpoch() (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.TrainEpoch(p.examples, p.cfg.BatchSize)
}

func (p *Peer) publishLocalModel(round int) {
	p.mu.Lock()
	weights := p.model.GetWeights()
	p.mu.Unlock()

	entry := actor.GlobalModelEntry{PeerID: p.cfg.PeerID, Round: round, NumSamples: len(p.examples), Weights: weights}
	p.lww.Put(modelKeyPrefix+p.cfg.PeerID, entry)
	p.pn.Increment()
}

func (p *Peer) collectPeerModels() []actor.WeightedUpdate {
	p.mu.Lock()
	shape := p.model.GetWeights()
	p.mu.Unlock()

	var updates []actor.WeightedUpdate
	for _, key := range p.lww.Keys() {
		if !strings.HasPrefix(key, modelKeyPrefix) {
			continue
		}
		raw, ok := p.lww.Get(key)
		if !ok {
			continue
		}
		entry, ok := decodeModelEntry(raw)
		if !ok {
			continue
		}
		if !entry.Weights.ShapeMatches(shape) {
			continue
		}
		n := entry.NumSamples
		if n <= 0 {
			n = 1
		}
		updates = append(updates, actor.WeightedUpdate{WorkerID: entry.PeerID, Weights: entry.Weights, NumSamples: n})
	}
	return updates
}

func decodeModelEntry(raw any) (actor.GlobalModelEntry, bool) {
	if entry, ok := raw.(actor.GlobalModelEntry); ok {
		return entry, true
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return actor.GlobalModelEntry{}, false
	}
	var entry actor.GlobalModelEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return actor.GlobalModelEntry{}, false
	}
	return entry, true
}

func (p *Peer) recomputeGlobalModel(reason string) {
	updates := p.collectPeerModels()
	if len(updates) == 0 {
		return
	}

	global, err := classifier.FederatedAveraging(updates)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var deltaNorm float64
	if p.lastGlobalWeights != nil {
		deltaNorm = weightDeltaNorm(*p.lastGlobalWeights, global)
	}

	if p.lastGlobalWeights == nil || deltaNorm > p.cfg.MinGlobalApplyEps {
		p.model.SetWeights(global)
		gCopy := global
		p.lastGlobalWeights = &gCopy
		p.lastDeltaNorm = deltaNorm
		p.log.Debug("applied global model", zap.String("reason", reason), zap.Float64("delta_norm", deltaNorm))
	}
}

func weightDeltaNorm(prev, next actor.ModelWeights) float64 {
	if len(prev.W) != len(next.W) || len(prev.B) != len(next.B) {
		return 0
	}
	var sum float64
	for i := range next.W {
		d := next.W[i] - prev.W[i]
		sum += d * d
	}
	for i := range next.B {
		d := next.B[i] - prev.B[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (p *Peer) canRunMoreRoundsLocked() bool {
	if p.cfg.MaxRounds <= 0 {
		return true
	}
	return p.roundNum-p.startRound < p.cfg.MaxRounds
}

func (p *Peer) updateConvergenceLocked(deltaNorm float64) {
	if math.IsNaN(deltaNorm) || math.IsInf(deltaNorm, 0) {
		deltaNorm = 0
	}
	if deltaNorm < p.cfg.ConvergenceEps {
		p.convergenceCount++
	} else {
		p.convergenceCount = 0
	}
	p.lastDeltaNorm = deltaNorm
}

func (p *Peer) checkConverged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.convergenceCount >= p.cfg.ConvergencePatience
}

func endpointKey(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// RoundNum reports how many local training rounds this peer has run.
func (p *Peer) RoundNum() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roundNum
}

// LastDeltaNorm reports the most recently observed global-model delta
// norm, the signal the convergence detector watches.
func (p *Peer) LastDeltaNorm() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDeltaNorm
}

// KnownPeerCount reports how many distinct peer ids this peer has learned
// about, excluding itself.
func (p *Peer) KnownPeerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.knownPeers)
}

// Converged reports whether this peer has detected convergence and
// stopped gossiping.
func (p *Peer) Converged() bool {
	return p.checkConverged()
}

// ModelKeys returns every model/<peer_id> key currently visible in this
// peer's LWWMap, for tests asserting on gossip propagation.
func (p *Peer) ModelKeys() []string {
	var keys []string
	for _, k := range p.lww.Keys() {
		if strings.HasPrefix(k, modelKeyPrefix) {
			keys = append(keys, k)
		}
	}
	return keys
}
