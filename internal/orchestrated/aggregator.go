package orchestrated

import (
	"context"

	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/classifier"
	"github.com/fedactor/flmesh/internal/persistence"
)

// Aggregator folds a round's worker updates into new global weights via
// FedAvg and reports the result back to the coordinator. It holds no
// model of its own — ModelWeights pass through it untouched except for
// the averaging arithmetic.
type Aggregator struct {
	actor.BaseActor

	coordinatorRef actor.RemoteAddr
	rounds         *persistence.RoundStore
	log            *zap.Logger
}

// NewAggregator constructs an Aggregator that registers with, and reports
// results to, the coordinator listening at coordinatorAddr.
func NewAggregator(coordinatorAddr actor.RemoteAddr, rounds *persistence.RoundStore, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{coordinatorRef: coordinatorAddr, rounds: rounds, log: log}
}

// PreStart registers this aggregator with the coordinator, advertising
// the (host, port) the coordinator should address AggregateRound to.
func (a *Aggregator) PreStart() {
	host, port := a.Context().ListenEndpoint()
	coordRef := a.Context().RemoteRef("coordinator", a.coordinatorRef)
	coordRef.Tell(actor.RegisterAggregator{
		Envelope: actor.NewEnvelope(nil),
		Host:     host,
		Port:     port,
	})
	a.log.Info("registered with coordinator", zap.String("host", host), zap.Int("port", port))
}

// Receive handles HealthPing (always answered locally, since a
// Supervisor health-checks this actor directly) and AggregateRound.
func (a *Aggregator) Receive(msg actor.Message) {
	switch m := msg.(type) {
	case actor.HealthPing:
		if m.Sender != nil {
			self := a.Context().Self()
			m.Sender.Tell(actor.HealthAck{Envelope: actor.NewReply(&self, m), ActorID: self.ActorID})
		}
	case actor.AggregateRound:
		a.handleAggregateRound(m)
	}
}

func (a *Aggregator) handleAggregateRound(msg actor.AggregateRound) {
	if len(msg.Updates) == 0 {
		a.log.Warn("aggregate round received with no updates", zap.Int("round", msg.Round))
		return
	}

	aggregated, err := classifier.FederatedAveraging(msg.Updates)
	if err != nil {
		a.log.Error("federated averaging failed", zap.Int("round", msg.Round), zap.Error(err))
		return
	}

	trainLoss, trainAcc := meanLossAndAccuracy(msg.TrainMetrics)
	summary := map[string]float64{"train_avg_loss": trainLoss, "train_avg_accuracy": trainAcc}

	if a.rounds != nil {
		rec := persistence.RoundRecord{Round: msg.Round, Weights: aggregated, TrainSummary: summary}
		if err := a.rounds.Put(context.Background(), rec); err != nil {
			a.log.Error("persisting round failed", zap.Int("round", msg.Round), zap.Error(err))
		}
	}

	coordRef := a.Context().RemoteRef("coordinator", a.coordinatorRef)
	coordRef.Tell(actor.AggregatedResult{
		Envelope:     actor.NewEnvelope(nil),
		Round:        msg.Round,
		Weights:      aggregated,
		TrainSummary: summary,
	})
	a.log.Info("round aggregated", zap.Int("round", msg.Round), zap.Float64("train_avg_loss", trainLoss), zap.Float64("train_avg_accuracy", trainAcc))
}

func meanLossAndAccuracy(perWorker []map[string]float64) (loss, accuracy float64) {
	if len(perWorker) == 0 {
		return 0, 0
	}
	for _, m := range perWorker {
		loss += m["loss"]
		accuracy += m["accuracy"]
	}
	return loss / float64(len(perWorker)), accuracy / float64(len(perWorker))
}
