package orchestrated

import (
	"context"

	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/classifier"
	"github.com/fedactor/flmesh/internal/persistence"
)

// EvalHistoryEntry is one round's recorded evaluation outcome.
type EvalHistoryEntry struct {
	Round            int
	Accuracy         float64
	Loss             float64
	PerClassAccuracy map[string]float64
}

// Evaluator holds a held-out test set and scores each round's aggregated
// global model against it, purely as an observer: its result never
// feeds back into aggregation, only into the coordinator's history.
type Evaluator struct {
	actor.BaseActor

	testExamples   []classifier.Example
	model          *classifier.Classifier
	coordinatorRef actor.RemoteAddr
	rounds         *persistence.RoundStore
	log            *zap.Logger

	history []EvalHistoryEntry
}

// NewEvaluator constructs an Evaluator scoring against testExamples.
func NewEvaluator(testExamples []classifier.Example, model *classifier.Classifier, coordinatorAddr actor.RemoteAddr, rounds *persistence.RoundStore, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{testExamples: testExamples, model: model, coordinatorRef: coordinatorAddr, rounds: rounds, log: log}
}

// PreStart registers this evaluator with the coordinator.
func (e *Evaluator) PreStart() {
	host, port := e.Context().ListenEndpoint()
	coordRef := e.Context().RemoteRef("coordinator", e.coordinatorRef)
	coordRef.Tell(actor.RegisterEvaluator{Envelope: actor.NewEnvelope(nil), Host: host, Port: port})
	e.log.Info("registered with coordinator", zap.String("host", host), zap.Int("port", port))
}

// Receive handles GlobalModelBroadcast, HealthPing and Shutdown.
func (e *Evaluator) Receive(msg actor.Message) {
	switch m := msg.(type) {
	case actor.GlobalModelBroadcast:
		e.handleGlobalModel(m)
	case actor.HealthPing:
		if m.Sender != nil {
			self := e.Context().Self()
			m.Sender.Tell(actor.HealthAck{Envelope: actor.NewReply(&self, m), ActorID: self.ActorID})
		}
	case actor.Shutdown:
		e.log.Info("evaluator shutting down")
	}
}

func (e *Evaluator) handleGlobalModel(msg actor.GlobalModelBroadcast) {
	if len(e.testExamples) == 0 {
		e.log.Error("no test data loaded")
		return
	}

	e.model.SetWeights(msg.Weights)
	loss, accuracy, perClass := e.model.Evaluate(e.testExamples)

	e.log.Info("evaluation complete", zap.Int("round", msg.Round), zap.Float64("accuracy", accuracy), zap.Float64("loss", loss))

	e.history = append(e.history, EvalHistoryEntry{Round: msg.Round, Accuracy: accuracy, Loss: loss, PerClassAccuracy: perClass})

	if e.rounds != nil {
		ctx := context.Background()
		summary := make(map[string]float64)
		if prev, ok, err := e.rounds.Get(ctx, msg.Round); err == nil && ok {
			for k, v := range prev.TrainSummary {
				summary[k] = v
			}
		}
		summary["eval_accuracy"] = accuracy
		summary["eval_loss"] = loss
		for class, acc := range perClass {
			summary["eval_class_"+class+"_accuracy"] = acc
		}
		rec := persistence.RoundRecord{Round: msg.Round, Weights: msg.Weights, TrainSummary: summary}
		if err := e.rounds.Put(ctx, rec); err != nil {
			e.log.Error("persisting evaluation failed", zap.Error(err))
		}
	}

	coordRef := e.Context().RemoteRef("coordinator", e.coordinatorRef)
	coordRef.Tell(actor.EvaluationResult{
		Envelope:         actor.NewEnvelope(nil),
		Round:            msg.Round,
		Loss:             loss,
		Accuracy:         accuracy,
		PerClassAccuracy: perClass,
	})
	e.log.Info("sent evaluation result to coordinator")
}

// History returns a copy of every evaluation performed so far.
func (e *Evaluator) History() []EvalHistoryEntry {
	return append([]EvalHistoryEntry(nil), e.history...)
}
