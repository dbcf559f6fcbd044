// Package supervisor implements the one-level restart-on-failure
// supervision described in §4.4: a Supervisor actor owns a set of
// monitored children, health-checks them on a fixed interval, and
// restarts any child that misses consecutive health checks or reports
// itself failed.
package supervisor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
)

const (
	// DefaultWarmup is how long the health loop waits after pre_start
	// before the first check, giving children time to come up.
	DefaultWarmup = time.Second
	// DefaultInterval is the period between health check rounds.
	DefaultInterval = 5 * time.Second
	// DefaultTimeout is how long the supervisor waits for a HealthAck
	// before counting a check as missed.
	DefaultTimeout = 3 * time.Second
	// DefaultFailureThreshold is the number of consecutive missed checks
	// that triggers a restart.
	DefaultFailureThreshold = 2
	// RestartQuiescence is the pause between stopping a failed child and
	// respawning it, giving its mailbox and any open connections time to
	// unwind.
	RestartQuiescence = 500 * time.Millisecond
)

// Status is a child's last-known health.
type Status string

const (
	StatusStarting Status = "starting"
	StatusHealthy  Status = "healthy"
	StatusFailed   Status = "failed"
)

type childInfo struct {
	ref          actor.ActorRef
	factory      actor.ActorFactory
	status       Status
	lastAck      time.Time
	failedChecks int
}

// StatusReport summarizes the monitored set for an external caller (the
// status HTTP endpoint); it is never sent as an actor message.
type StatusReport struct {
	Healthy []string
	Failed  []string
}

// Supervisor restarts monitored children after repeated missed health
// checks or an explicit ChildFailed report. It is itself a plain actor —
// a supervision tree is built by nesting Supervisors, not by a distinct
// hierarchy type.
type Supervisor struct {
	actor.BaseActor

	interval          time.Duration
	timeout           time.Duration
	warmup            time.Duration
	failureThreshold  int
	log               *zap.Logger

	mu       sync.Mutex
	children map[string]*childInfo
	pending  map[string]chan struct{}

	stopHealthLoop chan struct{}
}

// New constructs a Supervisor with the given health-check cadence. Zero
// values fall back to the package defaults.
func New(interval, timeout time.Duration, log *zap.Logger) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		interval:         interval,
		timeout:          timeout,
		warmup:           DefaultWarmup,
		failureThreshold: DefaultFailureThreshold,
		log:              log,
		children:         make(map[string]*childInfo),
		pending:          make(map[string]chan struct{}),
		stopHealthLoop:   make(chan struct{}),
	}
}

// PreStart launches the periodic health-check loop.
func (s *Supervisor) PreStart() {
	go s.healthLoop()
	s.log.Info("supervisor started", zap.Duration("interval", s.interval))
}

// PostStop halts the health-check loop.
func (s *Supervisor) PostStop() {
	close(s.stopHealthLoop)
	s.log.Info("supervisor stopped")
}

// Receive dispatches MonitorChild, HealthAck, ChildFailed and RestartChild
// — the four control kinds this actor understands, all drawn from the
// closed message set.
func (s *Supervisor) Receive(msg actor.Message) {
	switch m := msg.(type) {
	case actor.MonitorChild:
		s.addChild(m)
	case actor.HealthAck:
		s.handleHealthAck(m)
	case actor.ChildFailed:
		s.handleChildFailed(m)
	case actor.RestartChild:
		s.restartChild(m.ChildID)
	}
}

func (s *Supervisor) addChild(msg actor.MonitorChild) {
	ref := s.Context().ActorOf(msg.ChildID, msg.Factory)

	s.mu.Lock()
	s.children[msg.ChildID] = &childInfo{ref: ref, factory: msg.Factory, status: StatusStarting}
	s.pending[msg.ChildID] = make(chan struct{}, 1)
	s.mu.Unlock()

	s.log.Info("monitoring child", zap.String("child_id", msg.ChildID))
}

func (s *Supervisor) healthLoop() {
	select {
	case <-time.After(s.warmup):
	case <-s.stopHealthLoop:
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopHealthLoop:
			return
		case <-ticker.C:
			s.runHealthRound()
		}
	}
}

func (s *Supervisor) runHealthRound() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.children))
	for id, info := range s.children {
		if info.status == StatusFailed {
			continue
		}
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.checkOne(id)
	}
}

func (s *Supervisor) checkOne(id string) {
	s.mu.Lock()
	info, ok := s.children[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	ackCh := make(chan struct{}, 1)
	s.pending[id] = ackCh
	ref := info.ref
	s.mu.Unlock()

	self := s.Context().Self()
	ref.Tell(actor.HealthPing{Envelope: actor.NewEnvelope(&self)})

	select {
	case <-ackCh:
		s.mu.Lock()
		info.status = StatusHealthy
		info.failedChecks = 0
		info.lastAck = time.Now()
		s.mu.Unlock()
	case <-time.After(s.timeout):
		s.mu.Lock()
		info.failedChecks++
		failed := info.failedChecks
		s.mu.Unlock()
		s.log.Warn("health check missed", zap.String("child_id", id), zap.Int("failed_checks", failed))
		if failed >= s.failureThreshold {
			s.restartChild(id)
		}
	}
}

func (s *Supervisor) handleHealthAck(msg actor.HealthAck) {
	s.mu.Lock()
	ch, ok := s.pending[msg.ActorID]
	s.mu.Unlock()
	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Supervisor) handleChildFailed(msg actor.ChildFailed) {
	s.log.Error("child reported failure", zap.String("child_id", msg.ChildID), zap.String("error", msg.Err))
	s.restartChild(msg.ChildID)
}

func (s *Supervisor) restartChild(id string) {
	s.mu.Lock()
	info, ok := s.children[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	info.status = StatusFailed
	factory := info.factory
	s.mu.Unlock()

	s.log.Warn("restarting child", zap.String("child_id", id))
	s.Context().Stop(id)

	time.Sleep(RestartQuiescence)

	ref := s.Context().ActorOf(id, factory)
	s.mu.Lock()
	s.children[id] = &childInfo{ref: ref, factory: factory, status: StatusStarting}
	s.pending[id] = make(chan struct{}, 1)
	s.mu.Unlock()

	s.log.Info("child restarted", zap.String("child_id", id))
}

// Report returns a snapshot of every monitored child's last-known status.
func (s *Supervisor) Report() StatusReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report StatusReport
	for id, info := range s.children {
		switch info.status {
		case StatusHealthy:
			report.Healthy = append(report.Healthy, id)
		case StatusFailed:
			report.Failed = append(report.Failed, id)
		}
	}
	return report
}
