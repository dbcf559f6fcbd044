package orchestrated

import (
	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/classifier"
)

// Worker holds one region's local training examples and runs local
// epochs against whatever global weights each TrainRequest carries,
// reporting its ModelUpdate back to the coordinator.
type Worker struct {
	actor.BaseActor

	region         string
	examples       []classifier.Example
	localEpochs    int
	batchSize      int
	model          *classifier.Classifier
	coordinatorRef actor.RemoteAddr
	log            *zap.Logger

	roundsCompleted int
}

// NewWorker constructs a Worker for region, training over examples.
// model is the worker's own classifier instance, seeded independently of
// any global model until the first TrainRequest arrives.
func NewWorker(region string, examples []classifier.Example, localEpochs, batchSize int, model *classifier.Classifier, coordinatorAddr actor.RemoteAddr, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		region:         region,
		examples:       examples,
		localEpochs:    localEpochs,
		batchSize:      batchSize,
		model:          model,
		coordinatorRef: coordinatorAddr,
		log:            log,
	}
}

// PreStart registers this worker with the coordinator.
func (w *Worker) PreStart() {
	host, port := w.Context().ListenEndpoint()
	coordRef := w.Context().RemoteRef("coordinator", w.coordinatorRef)
	self := w.Context().Self()
	coordRef.Tell(actor.RegisterWorker{
		Envelope: actor.NewEnvelope(nil),
		WorkerID: self.ActorID,
		Host:     host,
		Port:     port,
	})
	w.log.Info("registered with coordinator", zap.String("region", w.region), zap.String("host", host), zap.Int("port", port))
}

// Receive handles TrainRequest, GlobalModelBroadcast, HealthPing and
// Shutdown — the worker side of the orchestrated protocol.
func (w *Worker) Receive(msg actor.Message) {
	switch m := msg.(type) {
	case actor.TrainRequest:
		w.handleTrainRequest(m)
	case actor.GlobalModelBroadcast:
		w.handleGlobalModel(m)
	case actor.HealthPing:
		if m.Sender != nil {
			self := w.Context().Self()
			m.Sender.Tell(actor.HealthAck{Envelope: actor.NewReply(&self, m), ActorID: self.ActorID})
		}
	case actor.Shutdown:
		w.log.Info("worker shutting down", zap.String("region", w.region))
	}
}

func (w *Worker) handleTrainRequest(msg actor.TrainRequest) {
	w.log.Info("train request received", zap.Int("round", msg.Round))

	if len(w.examples) == 0 {
		w.log.Error("no local training data loaded")
		return
	}

	w.model.SetWeights(msg.GlobalWeights)
	w.model.SetFedProx(msg.Mu, &msg.GlobalWeights)

	var totalLoss, totalAcc float64
	for epoch := 0; epoch < w.localEpochs; epoch++ {
		metrics, err := w.model.TrainEpoch(w.examples, w.batchSize)
		if err != nil {
			w.log.Error("local epoch failed", zap.Error(err))
			return
		}
		totalLoss += metrics["loss"]
		totalAcc += metrics["accuracy"]
		w.log.Info("local epoch complete", zap.Int("epoch", epoch+1), zap.Float64("loss", metrics["loss"]), zap.Float64("accuracy", metrics["accuracy"]))
	}

	avgLoss := totalLoss / float64(w.localEpochs)
	avgAcc := totalAcc / float64(w.localEpochs)

	self := w.Context().Self()
	update := actor.ModelUpdate{
		Envelope:   actor.NewEnvelope(nil),
		WorkerID:   self.ActorID,
		Round:      msg.Round,
		Weights:    w.model.GetWeights(),
		NumSamples: len(w.examples),
		Metrics:    map[string]float64{"loss": avgLoss, "accuracy": avgAcc},
	}

	coordRef := w.Context().RemoteRef("coordinator", w.coordinatorRef)
	coordRef.Tell(update)
	w.roundsCompleted++
	w.log.Info("model update sent", zap.Int("round", msg.Round), zap.Float64("loss", avgLoss), zap.Float64("accuracy", avgAcc))
}

func (w *Worker) handleGlobalModel(msg actor.GlobalModelBroadcast) {
	w.model.SetWeights(msg.Weights)
	w.log.Info("local model updated from global broadcast", zap.Int("round", msg.Round))
}

// RoundsCompleted reports how many TrainRequests this worker has finished.
func (w *Worker) RoundsCompleted() int { return w.roundsCompleted }
