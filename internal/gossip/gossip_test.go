package gossip_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/classifier"
	"github.com/fedactor/flmesh/internal/gossip"
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

// TestTwoPeersConvergeOnSharedModel seeds two peers with each other's
// endpoint and checks that, within a handful of gossip intervals, each
// peer's LWWMap carries both models.
func TestTwoPeersConvergeOnSharedModel(t *testing.T) {
	const inputDim, numClasses = 4, 2

	sysA := actor.NewActorSystem(nil, nil)
	defer sysA.Shutdown()
	addrA := mustListen(t, sysA)

	sysB := actor.NewActorSystem(nil, nil)
	defer sysB.Shutdown()
	addrB := mustListen(t, sysB)

	cfgA := gossip.Config{PeerID: "peer-a", Fanout: 1, GossipInterval: 200 * time.Millisecond, SeedPeers: []actor.RemoteAddr{addrB}}
	peerA := gossip.NewPeer(cfgA, syntheticExamples(20, inputDim, numClasses), classifier.New(inputDim, numClasses, 0.1), nil, nil)
	sysA.ActorOf("peer", func() actor.Actor { return peerA })

	cfgB := gossip.Config{PeerID: "peer-b", Fanout: 1, GossipInterval: 200 * time.Millisecond, SeedPeers: []actor.RemoteAddr{addrA}}
	peerB := gossip.NewPeer(cfgB, syntheticExamples(20, inputDim, numClasses), classifier.New(inputDim, numClasses, 0.1), nil, nil)
	sysB.ActorOf("peer", func() actor.Actor { return peerB })

	assert.Eventually(t, func() bool {
		return len(peerA.ModelKeys()) >= 2 && len(peerB.ModelKeys()) >= 2
	}, 5*time.Second, 50*time.Millisecond, "expected both peers to learn each other's model entry")

	assert.Eventually(t, func() bool {
		return peerA.KnownPeerCount() >= 1 && peerB.KnownPeerCount() >= 1
	}, 5*time.Second, 50*time.Millisecond, "expected both peers to learn about each other")
}

// TestPeerWithoutTrainingDataStaysIdle checks that a peer configured with
// no local examples never panics and simply skips its training loop.
func TestPeerWithoutTrainingDataStaysIdle(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	defer sys.Shutdown()
	mustListen(t, sys)

	p := gossip.NewPeer(gossip.Config{PeerID: "solo", GossipInterval: 100 * time.Millisecond}, nil, classifier.New(4, 2, 0.1), nil, nil)
	sys.ActorOf("peer", func() actor.Actor { return p })

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, p.RoundNum())
}

// TestPeerRespectsMaxRounds checks the training loop stops once it has
// completed the configured number of rounds.
func TestPeerRespectsMaxRounds(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	defer sys.Shutdown()
	mustListen(t, sys)

	p := gossip.NewPeer(gossip.Config{PeerID: "bounded", MaxRounds: 2, GossipInterval: time.Second}, syntheticExamples(20, 4, 2), classifier.New(4, 2, 0.1), nil, nil)
	sys.ActorOf("peer", func() actor.Actor { return p })

	assert.Eventually(t, func() bool {
		return p.RoundNum() >= 2
	}, 6*time.Second, 100*time.Millisecond, "expected peer to reach max_rounds")

	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, 2, p.RoundNum(), "peer must not keep training past max_rounds")
}

// TestGossipPeerJoinRegistersSender verifies the explicit join message a
// bootstrap/CLI caller can use to introduce two peers immediately, rather
// than waiting on the first gossip flush.
func TestGossipPeerJoinRegistersSender(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	defer sys.Shutdown()
	mustListen(t, sys)

	p := gossip.NewPeer(gossip.Config{PeerID: "joinable"}, nil, classifier.New(4, 2, 0.1), nil, nil)
	sys.ActorOf("peer", func() actor.Actor { return p })

	sys.LocalRef("peer").Tell(actor.GossipPeerJoin{
		Envelope: actor.NewEnvelope(nil),
		PeerID:   "remote-peer",
		Host:     "127.0.0.1",
		Port:     9999,
	})

	assert.Eventually(t, func() bool {
		return p.KnownPeerCount() == 1
	}, time.Second, 20*time.Millisecond)
}

// TestReporterTracksGossipTraffic checks the passive observer aggregates
// GossipState flushes without ever talking back into the protocol.
func TestReporterTracksGossipTraffic(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	defer sys.Shutdown()
	mustListen(t, sys)

	r := gossip.NewReporter(gossip.ReporterConfig{ReporterID: "obs-1", StartupDelay: time.Hour}, nil)
	sys.ActorOf("reporter", func() actor.Actor { return r })

	sys.LocalRef("reporter").Tell(actor.GossipState{
		Envelope:  actor.NewEnvelope(nil),
		PeerID:    "peer-a",
		RoundNum:  3,
		DeltaNorm: 0.01,
	})
	sys.LocalRef("reporter").Tell(actor.GossipState{
		Envelope:  actor.NewEnvelope(nil),
		PeerID:    "peer-b",
		RoundNum:  4,
		DeltaNorm: 0.02,
	})

	assert.Eventually(t, func() bool {
		return r.TotalGossips() == 2 && r.GlobalRound() == 4 && r.ActivePeerCount() == 2
	}, time.Second, 10*time.Millisecond)
}
