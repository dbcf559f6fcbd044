package supervisor_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/supervisor"
)

type flakyChild struct {
	actor.BaseActor
	acksEnabled *int32
	spawnCount  *int32
}

func (c *flakyChild) PreStart() {
	atomic.AddInt32(c.spawnCount, 1)
}

func (c *flakyChild) Receive(msg actor.Message) {
	if ping, ok := msg.(actor.HealthPing); ok {
		if atomic.LoadInt32(c.acksEnabled) == 1 && ping.Sender != nil {
			self := c.Context().Self()
			ping.Sender.Tell(actor.HealthAck{Envelope: actor.NewEnvelope(nil), ActorID: self.ActorID})
		}
	}
}

func TestSupervisorRestartsAfterMissedHealthChecks(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	sup := supervisor.New(50*time.Millisecond, 20*time.Millisecond, nil)
	sys.ActorOf("sup", func() actor.Actor { return sup })

	acksEnabled := int32(0)
	spawnCount := int32(0)
	factory := func() actor.Actor {
		return &flakyChild{acksEnabled: &acksEnabled, spawnCount: &spawnCount}
	}

	sys.LocalRef("sup").Tell(actor.MonitorChild{
		Envelope: actor.NewEnvelope(nil),
		ChildID:  "worker-1",
		Factory:  factory,
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&spawnCount) >= 2 }, 5*time.Second, 10*time.Millisecond,
		"expected at least one restart after repeated missed health checks")
}

func TestSupervisorReportsHealthyAfterAck(t *testing.T) {
	sys := actor.NewActorSystem(nil, nil)
	sup := supervisor.New(30*time.Millisecond, 100*time.Millisecond, nil)
	sys.ActorOf("sup", func() actor.Actor { return sup })

	acksEnabled := int32(1)
	spawnCount := int32(0)
	factory := func() actor.Actor {
		return &flakyChild{acksEnabled: &acksEnabled, spawnCount: &spawnCount}
	}

	sys.LocalRef("sup").Tell(actor.MonitorChild{
		Envelope: actor.NewEnvelope(nil),
		ChildID:  "worker-1",
		Factory:  factory,
	})

	assert.Eventually(t, func() bool {
		report := sup.Report()
		for _, id := range report.Healthy {
			if id == "worker-1" {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}
