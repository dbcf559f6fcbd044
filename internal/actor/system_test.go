package actor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedactor/flmesh/internal/actor"
)

type echoActor struct {
	actor.BaseActor
	mu       sync.Mutex
	received []actor.Message
}

func (e *echoActor) Receive(msg actor.Message) {
	e.mu.Lock()
	e.received = append(e.received, msg)
	e.mu.Unlock()

	if ping, ok := msg.(actor.HealthPing); ok && ping.Sender != nil {
		self := e.Context().Self()
		reply := actor.HealthAck{Envelope: actor.NewReply(&self, ping), ActorID: self.ActorID}
		ping.Sender.Tell(reply)
	}
}

func (e *echoActor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.received)
}

func TestLocalPingPong(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	pinger := &echoActor{}
	pingerRef := sys.ActorOf("pinger", func() actor.Actor { return pinger })
	ponger := &echoActor{}
	_ = sys.ActorOf("ponger", func() actor.Actor { return ponger })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reply, err := sys.LocalRef("ponger").Ask(ctx, actor.HealthPing{Envelope: actor.NewEnvelope(&pingerRef)}, 500*time.Millisecond)
	require.NoError(t, err)
	ack, ok := reply.(actor.HealthAck)
	require.True(t, ok)
	assert.Equal(t, "ponger", ack.ActorID)
}

func TestMailboxFIFOOrdering(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	recv := &echoActor{}
	sys.ActorOf("recv", func() actor.Actor { return recv })

	ref := sys.LocalRef("recv")
	for i := 0; i < 20; i++ {
		ref.Tell(actor.HealthAck{Envelope: actor.NewEnvelope(nil), ActorID: fmt.Sprintf("probe-%d", i)})
	}
	assert.Eventually(t, func() bool { return recv.count() >= 20 }, time.Second, 10*time.Millisecond)

	recv.mu.Lock()
	defer recv.mu.Unlock()
	for i, msg := range recv.received {
		assert.Equal(t, fmt.Sprintf("probe-%d", i), msg.(actor.HealthAck).ActorID)
	}
}

func TestDeliverToUnknownActorIsDropped(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	assert.NotPanics(t, func() {
		sys.LocalRef("ghost").Tell(actor.Shutdown{Envelope: actor.NewEnvelope(nil)})
	})
}

type becomeActor struct {
	actor.BaseActor
	mu     sync.Mutex
	phase  string
	events []string
}

func (b *becomeActor) PreStart() {
	b.phase = "greeting"
}

func (b *becomeActor) Receive(msg actor.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, b.phase)
	if _, ok := msg.(actor.RestartChild); ok {
		b.phase = "restarted"
		b.Become(func(actor.Message) {
			b.mu.Lock()
			b.events = append(b.events, "swapped")
			b.mu.Unlock()
		})
	}
}

func TestBecomeSwapsBehaviorForSubsequentMessages(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	ba := &becomeActor{}
	sys.ActorOf("becomer", func() actor.Actor { return ba })

	ref := sys.LocalRef("becomer")
	ref.Tell(actor.RestartChild{Envelope: actor.NewEnvelope(nil), ChildID: "x"})
	ref.Tell(actor.RestartChild{Envelope: actor.NewEnvelope(nil), ChildID: "x"})

	assert.Eventually(t, func() bool {
		ba.mu.Lock()
		defer ba.mu.Unlock()
		return len(ba.events) >= 2
	}, time.Second, 10*time.Millisecond)

	ba.mu.Lock()
	defer ba.mu.Unlock()
	assert.Equal(t, []string{"greeting", "swapped"}, ba.events)
}

func TestStopTearsDownChildrenPostOrder(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	parent := &echoActor{}
	parentRef := sys.ActorOf("parent", func() actor.Actor { return parent })
	_ = parentRef

	child := &echoActor{}
	parentCtx := parent.Context()
	require.NotNil(t, parentCtx)
	parentCtx.ActorOf("child", func() actor.Actor { return child })

	sys.Stop("parent")

	// Stopping the parent must also have removed the child: a message sent
	// to the child's id afterwards is dropped instead of being received.
	sys.LocalRef("child").Tell(actor.HealthAck{Envelope: actor.NewEnvelope(nil), ActorID: "probe"})
	assert.Never(t, func() bool {
		return child.count() > 0
	}, 200*time.Millisecond, 10*time.Millisecond)
}
