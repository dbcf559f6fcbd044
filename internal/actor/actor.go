package actor

import "go.uber.org/zap"

// Behavior is the function shape invoked for each dequeued message. It is
// swappable at runtime via Become/Unbecome without affecting mailbox
// ordering — the mailbox loop always calls whatever the current pointer
// is at dispatch time.
type Behavior func(msg Message)

// Actor is the capability-set every actor implementation satisfies: a
// concrete state record, not a class hierarchy. PreStart/PostStop default
// to no-ops when embedded via BaseActor.
type Actor interface {
	PreStart()
	PostStop()
	Receive(msg Message)
	setContext(ctx *ActorContext)
	context() *ActorContext
	behavior() Behavior
	become(b Behavior)
	unbecome()
}

// BaseActor is embedded by concrete actor state records to supply the
// ActorContext plumbing and the become/unbecome behavior swap, matching
// §9's "capability-set interface implemented by concrete state records;
// there is no deep hierarchy" re-architecture note.
type BaseActor struct {
	ctx *ActorContext
	cur Behavior
}

// PreStart is the default no-op lifecycle hook; embedders override it.
func (b *BaseActor) PreStart() {}

// PostStop is the default no-op lifecycle hook; embedders override it.
func (b *BaseActor) PostStop() {}

func (b *BaseActor) setContext(ctx *ActorContext) { b.ctx = ctx }
func (b *BaseActor) context() *ActorContext       { return b.ctx }

// Context returns this actor's ActorContext. Valid only after the actor
// has been spawned via ActorSystem.ActorOf.
func (b *BaseActor) Context() *ActorContext { return b.ctx }

// Log returns a logger scoped to this actor's id.
func (b *BaseActor) Log() *zap.Logger {
	if b.ctx == nil {
		return zap.NewNop()
	}
	return b.ctx.log
}

func (b *BaseActor) behavior() Behavior {
	return b.cur
}

// Become swaps the active behavior; the mailbox loop dispatches to it
// starting with the next message.
func (b *BaseActor) become(fn Behavior) { b.cur = fn }

func (b *BaseActor) unbecome() { b.cur = nil }

// Become installs a new behavior, to be called by the embedding actor's
// Receive implementation or anywhere else on its own goroutine.
func (b *BaseActor) Become(fn Behavior) { b.become(fn) }

// Unbecome restores the actor's declared default Receive method as the
// active behavior.
func (b *BaseActor) Unbecome() { b.unbecome() }
