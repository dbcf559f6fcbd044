// Package orchestrated implements the round-based aggregation pipeline:
// a Coordinator drives workers through a fixed number of training rounds,
// parking work behind a count-based barrier and handing each round's
// collected updates to an Aggregator, then a GlobalModelBroadcast to
// every worker and a standalone Evaluator.
package orchestrated

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/classifier"
)

// State is the coordinator's round life-cycle position.
type State string

const (
	StateInit            State = "init"
	StateCollectingPeers State = "collecting_peers"
	StateRunning         State = "running"
	StateAwaitAgg        State = "await_agg"
	StateAwaitEval       State = "await_eval"
	StateDone            State = "done"
)

const (
	healthCheckWarmup   = 8 * time.Second
	healthCheckInterval = 2 * time.Second
	healthCheckTimeout  = 2500 * time.Millisecond
	interRoundPause     = 500 * time.Millisecond
)

// RoundHistory is one completed round's recorded metrics.
type RoundHistory struct {
	Round            int
	TrainAvgLoss     float64
	TrainAvgAccuracy float64
	HasEval          bool
	EvalAccuracy     float64
	EvalLoss         float64
}

// Coordinator registers workers, an aggregator and an evaluator, then
// drives num_rounds rounds of training. It never trains a model itself —
// it only moves ModelWeights between the actors that do.
type Coordinator struct {
	actor.BaseActor

	numWorkers int
	numRounds  int
	autoStart  bool
	mu         float64
	log        *zap.Logger

	model *classifier.Classifier

	lock                sync.Mutex
	state               State
	workers             map[string]actor.ActorRef
	aggregatorRef       *actor.ActorRef
	aggregatorID        string
	evaluatorRef        *actor.ActorRef
	evaluatorID         string
	lastHealthAck       map[string]time.Time
	currentRound        int
	trainingStarted     bool
	trainingComplete    bool
	awaitingAggregation bool

	roundUpdates      []actor.WeightedUpdate
	roundTrainMetrics []map[string]float64

	pendingAggregate     *actor.AggregateRound
	pendingEvalBroadcast *actor.GlobalModelBroadcast

	history []RoundHistory

	stopHealthLoop chan struct{}
}

// NewCoordinator constructs a Coordinator expecting numWorkers
// registrations before (if autoStart) kicking off round 1 automatically.
func NewCoordinator(numWorkers, numRounds int, autoStart bool, mu float64, model *classifier.Classifier, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		numWorkers:     numWorkers,
		numRounds:      numRounds,
		autoStart:      autoStart,
		mu:             mu,
		model:          model,
		log:            log,
		state:          StateInit,
		workers:        make(map[string]actor.ActorRef),
		lastHealthAck:  make(map[string]time.Time),
		stopHealthLoop: make(chan struct{}),
	}
}

// PreStart transitions to COLLECTING_PEERS and launches the aggregator
// and evaluator health-check loop.
func (c *Coordinator) PreStart() {
	c.lock.Lock()
	c.state = StateCollectingPeers
	c.lock.Unlock()
	go c.healthLoop()
	c.log.Info("coordinator started", zap.Int("want_workers", c.numWorkers))
}

// PostStop halts the health-check loop.
func (c *Coordinator) PostStop() {
	close(c.stopHealthLoop)
}

// Receive dispatches the coordinator's half of the orchestrated protocol.
func (c *Coordinator) Receive(msg actor.Message) {
	switch m := msg.(type) {
	case actor.RegisterWorker:
		c.handleRegisterWorker(m)
	case actor.RegisterAggregator:
		c.handleRegisterAggregator(m)
	case actor.RegisterEvaluator:
		c.handleRegisterEvaluator(m)
	case actor.ModelUpdate:
		c.handleModelUpdate(m)
	case actor.AggregatedResult:
		c.handleAggregatedResult(m)
	case actor.EvaluationResult:
		c.handleEvaluationResult(m)
	case actor.HealthPing:
		if m.Sender != nil {
			self := c.Context().Self()
			m.Sender.Tell(actor.HealthAck{Envelope: actor.NewReply(&self, m), ActorID: self.ActorID})
		}
	case actor.HealthAck:
		c.handleHealthAck(m)
	case actor.Shutdown:
		c.log.Info("coordinator shutting down")
	}
}

func (c *Coordinator) handleRegisterWorker(msg actor.RegisterWorker) {
	c.lock.Lock()
	if _, exists := c.workers[msg.WorkerID]; exists {
		c.lock.Unlock()
		c.log.Warn("worker already registered", zap.String("worker_id", msg.WorkerID))
		return
	}
	c.workers[msg.WorkerID] = c.Context().RemoteRef(msg.WorkerID, actor.RemoteAddr{Host: msg.Host, Port: msg.Port})
	count := len(c.workers)
	shouldStart := count >= c.numWorkers && c.autoStart && !c.trainingStarted
	c.lock.Unlock()

	c.log.Info("worker registered", zap.String("worker_id", msg.WorkerID), zap.Int("count", count), zap.Int("want", c.numWorkers))

	if shouldStart {
		time.Sleep(time.Second)
		c.startRound(1)
	}
}

func (c *Coordinator) handleRegisterAggregator(msg actor.RegisterAggregator) {
	c.lock.Lock()
	ref := c.Context().RemoteRef("aggregator", actor.RemoteAddr{Host: msg.Host, Port: msg.Port})
	c.aggregatorRef = &ref
	c.aggregatorID = "aggregator"
	pending := c.pendingAggregate
	c.lock.Unlock()

	c.log.Info("aggregator registered", zap.String("host", msg.Host), zap.Int("port", msg.Port))

	if pending != nil {
		ref.Tell(*pending)
		c.lock.Lock()
		c.pendingAggregate = nil
		c.awaitingAggregation = false
		c.lock.Unlock()
	}
}

func (c *Coordinator) handleRegisterEvaluator(msg actor.RegisterEvaluator) {
	c.lock.Lock()
	ref := c.Context().RemoteRef("evaluator", actor.RemoteAddr{Host: msg.Host, Port: msg.Port})
	c.evaluatorRef = &ref
	c.evaluatorID = "evaluator"
	pending := c.pendingEvalBroadcast
	c.lock.Unlock()

	c.log.Info("evaluator registered", zap.String("host", msg.Host), zap.Int("port", msg.Port))

	if pending != nil {
		ref.Tell(*pending)
		c.lock.Lock()
		c.pendingEvalBroadcast = nil
		c.lock.Unlock()
	}
}

func (c *Coordinator) startRound(round int) {
	c.lock.Lock()
	if c.trainingComplete {
		c.lock.Unlock()
		return
	}
	c.state = StateRunning
	c.trainingStarted = true
	c.currentRound = round
	c.awaitingAggregation = false
	c.roundUpdates = nil
	c.roundTrainMetrics = nil
	workers := make(map[string]actor.ActorRef, len(c.workers))
	for id, ref := range c.workers {
		workers[id] = ref
	}
	c.lock.Unlock()

	c.log.Info("round started", zap.Int("round", round), zap.Int("of", c.numRounds))

	req := actor.TrainRequest{
		Envelope:      actor.NewEnvelope(nil),
		Round:         round,
		GlobalWeights: c.model.GetWeights(),
		Mu:            c.mu,
	}
	for id, ref := range workers {
		ref.Tell(req)
		c.log.Info("sent train request", zap.String("worker_id", id))
	}
}

func (c *Coordinator) handleModelUpdate(msg actor.ModelUpdate) {
	// A late update for a round the coordinator has already moved past is
	// dropped rather than folded into the new round's barrier, as is an
	// update from a worker id that never registered or that has already
	// reported for this round, so the barrier counts distinct workers.
	c.lock.Lock()
	if msg.Round != c.currentRound {
		c.lock.Unlock()
		c.log.Warn("dropping stale model update", zap.Int("got_round", msg.Round), zap.Int("current_round", c.currentRound))
		return
	}
	if _, registered := c.workers[msg.WorkerID]; !registered {
		c.lock.Unlock()
		c.log.Warn("dropping model update from unregistered worker", zap.String("worker_id", msg.WorkerID))
		return
	}
	for _, u := range c.roundUpdates {
		if u.WorkerID == msg.WorkerID {
			c.lock.Unlock()
			c.log.Warn("dropping duplicate model update", zap.String("worker_id", msg.WorkerID), zap.Int("round", msg.Round))
			return
		}
	}

	c.roundUpdates = append(c.roundUpdates, actor.WeightedUpdate{
		WorkerID: msg.WorkerID, Weights: msg.Weights, NumSamples: msg.NumSamples,
	})
	c.roundTrainMetrics = append(c.roundTrainMetrics, msg.Metrics)

	ready := len(c.roundUpdates) >= c.numWorkers && !c.awaitingAggregation
	var aggregateMsg actor.AggregateRound
	if ready {
		aggregateMsg = actor.AggregateRound{
			Envelope:     actor.NewEnvelope(nil),
			Round:        c.currentRound,
			Updates:      append([]actor.WeightedUpdate(nil), c.roundUpdates...),
			TrainMetrics: append([]map[string]float64(nil), c.roundTrainMetrics...),
		}
		c.state = StateAwaitAgg
	}
	aggRef := c.aggregatorRef
	c.lock.Unlock()

	if !ready {
		return
	}

	if aggRef == nil {
		c.lock.Lock()
		c.pendingAggregate = &aggregateMsg
		c.lock.Unlock()
		c.log.Warn("no aggregator registered yet; parking round", zap.Int("round", c.currentRound))
		return
	}

	c.lock.Lock()
	c.awaitingAggregation = true
	c.pendingAggregate = &aggregateMsg
	c.lock.Unlock()

	aggRef.Tell(aggregateMsg)
	c.log.Info("all updates received, sent to aggregator", zap.Int("round", c.currentRound))
}

func (c *Coordinator) handleAggregatedResult(msg actor.AggregatedResult) {
	c.lock.Lock()
	if msg.Round != c.currentRound {
		c.lock.Unlock()
		c.log.Warn("ignoring aggregated result for stale round", zap.Int("got_round", msg.Round), zap.Int("current_round", c.currentRound))
		return
	}
	c.pendingAggregate = nil
	c.model.SetWeights(msg.Weights)

	trainLoss := msg.TrainSummary["train_avg_loss"]
	trainAcc := msg.TrainSummary["train_avg_accuracy"]
	c.history = append(c.history, RoundHistory{Round: c.currentRound, TrainAvgLoss: trainLoss, TrainAvgAccuracy: trainAcc})
	c.state = StateAwaitEval

	workers := make(map[string]actor.ActorRef, len(c.workers))
	for id, ref := range c.workers {
		workers[id] = ref
	}
	evalRef := c.evaluatorRef
	round := c.currentRound
	c.lock.Unlock()

	c.log.Info("round aggregated", zap.Int("round", round), zap.Float64("train_avg_loss", trainLoss), zap.Float64("train_avg_accuracy", trainAcc))

	bcast := actor.GlobalModelBroadcast{Envelope: actor.NewEnvelope(nil), Round: round, Weights: msg.Weights}
	for _, ref := range workers {
		ref.Tell(bcast)
	}

	if evalRef != nil {
		evalRef.Tell(bcast)
		return
	}

	c.lock.Lock()
	c.pendingEvalBroadcast = &bcast
	c.lock.Unlock()
	c.log.Warn("no evaluator registered; proceeding without evaluation", zap.Int("round", round))
	go c.proceedToNextRound()
}

func (c *Coordinator) handleEvaluationResult(msg actor.EvaluationResult) {
	c.lock.Lock()
	if n := len(c.history); n > 0 && c.history[n-1].Round == msg.Round {
		c.history[n-1].HasEval = true
		c.history[n-1].EvalAccuracy = msg.Accuracy
		c.history[n-1].EvalLoss = msg.Loss
	}
	c.lock.Unlock()

	c.log.Info("evaluation received", zap.Int("round", msg.Round), zap.Float64("accuracy", msg.Accuracy), zap.Float64("loss", msg.Loss))
	c.proceedToNextRound()
}

func (c *Coordinator) proceedToNextRound() {
	c.lock.Lock()
	current := c.currentRound
	if current >= c.numRounds {
		c.trainingComplete = true
		c.state = StateDone
		c.lock.Unlock()
		c.log.Info("training complete", zap.Int("rounds", c.numRounds))
		return
	}
	c.lock.Unlock()

	time.Sleep(interRoundPause)
	c.startRound(current + 1)
}

func (c *Coordinator) handleHealthAck(msg actor.HealthAck) {
	c.lock.Lock()
	defer c.lock.Unlock()
	now := time.Now()
	if msg.ActorID == c.aggregatorID {
		c.lastHealthAck["aggregator"] = now
	} else if msg.ActorID == c.evaluatorID {
		c.lastHealthAck["evaluator"] = now
	}
}

func (c *Coordinator) healthLoop() {
	select {
	case <-time.After(healthCheckWarmup):
	case <-c.stopHealthLoop:
		return
	}

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthLoop:
			return
		case <-ticker.C:
			c.pingAndCheck("aggregator")
			c.pingAndCheck("evaluator")
		}
	}
}

func (c *Coordinator) pingAndCheck(target string) {
	c.lock.Lock()
	var ref *actor.ActorRef
	if target == "aggregator" {
		ref = c.aggregatorRef
	} else {
		ref = c.evaluatorRef
	}
	c.lock.Unlock()
	if ref == nil {
		return
	}

	sentAt := time.Now()
	self := c.Context().Self()
	ref.Tell(actor.HealthPing{Envelope: actor.NewEnvelope(&self)})

	go func() {
		time.Sleep(healthCheckTimeout)
		c.lock.Lock()
		defer c.lock.Unlock()
		lastAck, ok := c.lastHealthAck[target]
		if !ok || !lastAck.After(sentAt) {
			if target == "aggregator" && c.aggregatorRef != nil {
				c.log.Warn("aggregator health timeout; awaiting re-registration")
				c.aggregatorRef = nil
			} else if target == "evaluator" && c.evaluatorRef != nil {
				c.log.Warn("evaluator health timeout; awaiting re-registration")
				c.evaluatorRef = nil
			}
		}
	}()
}

// History returns a copy of every completed round's recorded metrics.
func (c *Coordinator) History() []RoundHistory {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]RoundHistory(nil), c.history...)
}

// CurrentState reports the coordinator's current state-machine position.
func (c *Coordinator) CurrentState() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}
