package actor_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedactor/flmesh/internal/actor"
)

func TestRemoteFrameRoundTrip(t *testing.T) {
	serverSys := actor.NewActorSystem(nil, nil)
	recv := &echoActor{}
	serverSys.ActorOf("inbox", func() actor.Actor { return recv })

	addr, err := serverSys.StartServer("127.0.0.1:0")
	require.NoError(t, err)
	defer serverSys.Shutdown()

	_, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	clientSys := actor.NewActorSystem(nil, nil)
	defer clientSys.Shutdown()

	remoteRef := clientSys.RemoteRef("inbox", actor.RemoteAddr{Host: "127.0.0.1", Port: port})
	remoteRef.Tell(actor.HealthAck{Envelope: actor.NewEnvelope(nil), ActorID: "probe-over-wire"})

	assert.Eventually(t, func() bool { return recv.count() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestMonitorChildCannotBeEncoded(t *testing.T) {
	// MonitorChild carries an unserializable factory closure and must never
	// cross the wire: the encoder rejects its kind, so a remote Tell of one
	// is dropped on the sending side, while a message sent after it on the
	// same ref still arrives.
	assert.Equal(t, actor.MessageKind("monitor_child"), actor.MonitorChild{}.Kind())

	serverSys := actor.NewActorSystem(nil, nil)
	recv := &echoActor{}
	serverSys.ActorOf("inbox", func() actor.Actor { return recv })

	addr, err := serverSys.StartServer("127.0.0.1:0")
	require.NoError(t, err)
	defer serverSys.Shutdown()

	_, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	clientSys := actor.NewActorSystem(nil, nil)
	defer clientSys.Shutdown()

	remoteRef := clientSys.RemoteRef("inbox", actor.RemoteAddr{Host: "127.0.0.1", Port: port})
	remoteRef.Tell(actor.MonitorChild{Envelope: actor.NewEnvelope(nil), ChildID: "c"})
	remoteRef.Tell(actor.HealthAck{Envelope: actor.NewEnvelope(nil), ActorID: "after-monitor-child"})

	assert.Eventually(t, func() bool { return recv.count() >= 1 }, time.Second, 10*time.Millisecond)
	recv.mu.Lock()
	defer recv.mu.Unlock()
	require.Len(t, recv.received, 1)
	assert.IsType(t, actor.HealthAck{}, recv.received[0])
}
