package actor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedactor/flmesh/internal/actor"
)

func TestMailboxDefaultsCapacityWhenNonPositive(t *testing.T) {
	mb := actor.NewMailbox(0)
	for i := 0; i < 10; i++ {
		mb.Put(actor.Shutdown{Envelope: actor.NewEnvelope(nil)})
	}
	assert.Len(t, mb.Chan(), 10)
}
