package gossip

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
)

// ReporterConfig tunes the passive gossip-network observer.
type ReporterConfig struct {
	ReporterID     string
	StartupDelay   time.Duration
	ReportInterval time.Duration
	LogEvery       int
}

func (c *ReporterConfig) setDefaults() {
	if c.ReporterID == "" {
		c.ReporterID = "reporter-1"
	}
	if c.StartupDelay <= 0 {
		c.StartupDelay = 2 * time.Second
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = 5 * time.Second
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 10
	}
}

type peerStatus struct {
	round     int
	status    string
	deltaNorm float64
	lastSeen  time.Time
}

// Reporter passively collects GossipState flushes and HealthAck replies
// from whichever peers choose to address it, and periodically logs a
// summary. It never sends a message back into the gossip protocol and
// never influences training or aggregation — strictly an observer.
type Reporter struct {
	actor.BaseActor

	cfg ReporterConfig
	log *zap.Logger

	mu           sync.Mutex
	peerStatus   map[string]*peerStatus
	globalRound  int
	totalGossips int
	startedAt    time.Time

	stopCh chan struct{}
}

// NewReporter constructs a Reporter with cfg, falling back to defaults for
// any zero-valued field.
func NewReporter(cfg ReporterConfig, log *zap.Logger) *Reporter {
	cfg.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{
		cfg:        cfg,
		log:        log,
		peerStatus: make(map[string]*peerStatus),
		stopCh:     make(chan struct{}),
	}
}

// PreStart launches the periodic summary loop.
func (r *Reporter) PreStart() {
	r.startedAt = time.Now()
	go r.monitorLoop()
	r.log.Info("gossip reporter started", zap.String("reporter_id", r.cfg.ReporterID))
}

// PostStop halts the summary loop and logs a final report.
func (r *Reporter) PostStop() {
	close(r.stopCh)
	r.logSummary()
}

// Receive handles GossipState, HealthAck and Shutdown.
func (r *Reporter) Receive(msg actor.Message) {
	switch m := msg.(type) {
	case actor.GossipState:
		r.handlePeerUpdate(m)
	case actor.HealthAck:
		r.handleHealthAck(m)
	case actor.Shutdown:
		r.log.Info("reporter shutting down")
	}
}

func (r *Reporter) handlePeerUpdate(msg actor.GossipState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalGossips++
	st, ok := r.peerStatus[msg.PeerID]
	if !ok {
		st = &peerStatus{}
		r.peerStatus[msg.PeerID] = st
	}
	st.round = msg.RoundNum
	st.deltaNorm = msg.DeltaNorm
	st.lastSeen = time.Now()

	if msg.RoundNum > r.globalRound {
		r.globalRound = msg.RoundNum
	}

	r.log.Debug("peer gossip observed", zap.String("peer_id", msg.PeerID), zap.Int("round", msg.RoundNum), zap.Int("deltas", len(msg.CRDTDeltas)), zap.Float64("delta_norm", msg.DeltaNorm))

	if r.cfg.LogEvery > 0 && r.totalGossips%r.cfg.LogEvery == 0 {
		r.log.Info("gossip updates received", zap.Int("total", r.totalGossips), zap.String("latest_peer", msg.PeerID), zap.Int("round", msg.RoundNum), zap.Float64("delta_norm", msg.DeltaNorm))
	}
}

func (r *Reporter) handleHealthAck(msg actor.HealthAck) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.peerStatus[msg.ActorID]
	if !ok {
		st = &peerStatus{}
		r.peerStatus[msg.ActorID] = st
	}
	st.status = "active"
	st.lastSeen = time.Now()
}

func (r *Reporter) monitorLoop() {
	select {
	case <-time.After(r.cfg.StartupDelay):
	case <-r.stopCh:
		return
	}

	ticker := time.NewTicker(r.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.logReport()
		}
	}
}

func (r *Reporter) logReport() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info("gossip network report",
		zap.Duration("elapsed", time.Since(r.startedAt)),
		zap.Int("global_round", r.globalRound),
		zap.Int("total_gossips", r.totalGossips),
		zap.Int("active_peers", len(r.peerStatus)),
	)
	for id, st := range r.peerStatus {
		r.log.Info("peer status", zap.String("peer_id", id), zap.Int("round", st.round), zap.String("status", st.status), zap.Float64("delta_norm", st.deltaNorm))
	}
}

func (r *Reporter) logSummary() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info("reporter stopped",
		zap.Duration("duration", time.Since(r.startedAt)),
		zap.Int("global_round", r.globalRound),
		zap.Int("total_gossips", r.totalGossips),
		zap.Int("final_peers", len(r.peerStatus)),
	)
}

// TotalGossips reports how many GossipState messages this reporter has
// observed so far.
func (r *Reporter) TotalGossips() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalGossips
}

// GlobalRound reports the highest round_num observed across all peers.
func (r *Reporter) GlobalRound() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globalRound
}

// ActivePeerCount reports how many distinct peer ids have reported in.
func (r *Reporter) ActivePeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peerStatus)
}
