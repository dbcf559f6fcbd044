package actor

import "go.uber.org/zap"

// ActorContext is the per-actor handle into the system: its own ref, its
// parent (if spawned as a child), and the children it has spawned. Children
// are tracked so Stop can tear down subtrees in post-order, mirroring the
// supervision-tree shutdown in the Python source this runtime is modeled on.
type ActorContext struct {
	self     ActorRef
	parent   *ActorRef
	system   *ActorSystem
	log      *zap.Logger
	children map[string]ActorRef
}

// Self returns this actor's own ref.
func (c *ActorContext) Self() ActorRef { return c.self }

// Parent returns the spawning actor's ref, or nil for a top-level actor.
func (c *ActorContext) Parent() *ActorRef { return c.parent }

// ActorOf spawns a child actor under this context: id is scoped under the
// system's registry exactly like a top-level spawn, and is idempotent —
// spawning twice with the same id returns the existing ref rather than
// replacing the running actor, per §4.1.
func (c *ActorContext) ActorOf(id string, factory ActorFactory) ActorRef {
	ref := c.system.spawn(id, factory, &c.self)
	c.children[id] = ref
	return ref
}

// Children returns refs to every child actor spawned through this context.
func (c *ActorContext) Children() []ActorRef {
	out := make([]ActorRef, 0, len(c.children))
	for _, ref := range c.children {
		out = append(out, ref)
	}
	return out
}

// Stop tears down the child actor registered under id: its own children
// first (post-order), then the actor itself.
func (c *ActorContext) Stop(id string) {
	if _, ok := c.children[id]; !ok {
		return
	}
	c.system.stopActor(id)
	delete(c.children, id)
}

// Log returns a logger scoped to this actor's id.
func (c *ActorContext) Log() *zap.Logger { return c.log }

// RemoteRef builds a ref to actorID on the system listening at addr,
// bound to this actor's own ActorSystem so Tell/Ask work immediately.
func (c *ActorContext) RemoteRef(actorID string, addr RemoteAddr) ActorRef {
	return c.system.RemoteRef(actorID, addr)
}

// ListenEndpoint returns this actor's own system's advertised (host,
// port), the address a remote peer should dial to reach it.
func (c *ActorContext) ListenEndpoint() (string, int) {
	return c.system.ListenAddr()
}
