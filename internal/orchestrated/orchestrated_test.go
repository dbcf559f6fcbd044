package orchestrated_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/classifier"
	"github.com/fedactor/flmesh/internal/orchestrated"
)

func mustListen(t *testing.T, sys *actor.ActorSystem) actor.RemoteAddr {
	t.Helper()
	addr, err := sys.StartServer("127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return actor.RemoteAddr{Host: "127.0.0.1", Port: port}
}

func syntheticExamples(n, inputDim, numClasses int) []classifier.Example {
	out := make([]classifier.Example, n)
	for i := range out {
		features := make([]float64, inputDim)
		label := i % numClasses
		features[label] = 1.0
		out[i] = classifier.Example{Features: features, Label: label}
	}
	return out
}

func TestSingleRoundEndToEnd(t *testing.T) {
	const inputDim, numClasses = 4, 2

	coordSys := actor.NewActorSystem(nil, nil)
	defer coordSys.Shutdown()
	coordAddr := mustListen(t, coordSys)

	coord := orchestrated.NewCoordinator(1, 1, true, 0.0, classifier.New(inputDim, numClasses, 0.1), nil)
	coordSys.ActorOf("coordinator", func() actor.Actor { return coord })

	aggSys := actor.NewActorSystem(nil, nil)
	defer aggSys.Shutdown()
	mustListen(t, aggSys)
	aggSys.ActorOf("aggregator", func() actor.Actor {
		return orchestrated.NewAggregator(coordAddr, nil, nil)
	})

	evalSys := actor.NewActorSystem(nil, nil)
	defer evalSys.Shutdown()
	mustListen(t, evalSys)
	testExamples := syntheticExamples(20, inputDim, numClasses)
	evalSys.ActorOf("evaluator", func() actor.Actor {
		return orchestrated.NewEvaluator(testExamples, classifier.New(inputDim, numClasses, 0.1), coordAddr, nil, nil)
	})

	workerSys := actor.NewActorSystem(nil, nil)
	defer workerSys.Shutdown()
	mustListen(t, workerSys)
	trainExamples := syntheticExamples(40, inputDim, numClasses)
	workerSys.ActorOf("worker-1", func() actor.Actor {
		return orchestrated.NewWorker("region-a", trainExamples, 2, 8, classifier.New(inputDim, numClasses, 0.1), coordAddr, nil)
	})

	assert.Eventually(t, func() bool {
		return coord.CurrentState() == orchestrated.StateDone
	}, 5*time.Second, 20*time.Millisecond, "expected coordinator to reach StateDone after one round")

	history := coord.History()
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Round)
	assert.True(t, history[0].HasEval)
}

func TestStaleModelUpdateIsDropped(t *testing.T) {
	coordSys := actor.NewActorSystem(nil, nil)
	defer coordSys.Shutdown()
	mustListen(t, coordSys)

	coord := orchestrated.NewCoordinator(2, 1, false, 0.0, classifier.New(4, 2, 0.1), nil)
	coordSys.ActorOf("coordinator", func() actor.Actor { return coord })

	coordSys.LocalRef("coordinator").Tell(actor.ModelUpdate{
		Envelope: actor.NewEnvelope(nil),
		WorkerID: "ghost",
		Round:    99,
		Weights:  actor.ModelWeights{},
	})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, coord.History())
}
