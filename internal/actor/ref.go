package actor

import (
	"context"
	"fmt"
	"time"
)

// RemoteAddr is a (host, port) pair identifying another ActorSystem's
// listener.
type RemoteAddr struct {
	Host string
	Port int
}

// ActorRef is an immutable handle to an actor, local or remote. Refs are
// freely copyable and never own the actor they address.
type ActorRef struct {
	ActorID string      `json:"actor_id"`
	Remote  *RemoteAddr `json:"remote,omitempty"`

	system *ActorSystem
}

// IsRemote reports whether this ref addresses another system's listener.
func (r ActorRef) IsRemote() bool { return r.Remote != nil }

// Tell delivers msg asynchronously; it never blocks the caller beyond
// mailbox backpressure and never returns an error (fire-and-forget, per
// §7's delivery taxonomy). The call itself runs on the caller's goroutine —
// only the mailbox's own buffering, not a detached goroutine, absorbs
// backpressure — so two Tells from the same sender to the same target are
// enqueued in the order they were called, per §4.1/§8's local FIFO
// invariant.
func (r ActorRef) Tell(msg Message) {
	if r.system == nil {
		return
	}
	if r.Remote != nil {
		r.system.sendRemote(*r.Remote, r.ActorID, msg)
		return
	}
	r.system.deliverLocal(r.ActorID, msg)
}

// Ask sends msg and awaits a reply echoing the same message id, up to
// timeout. The recipient must explicitly support the reply protocol for
// this message type; this is opt-in per message, not a property of Ask
// itself.
func (r ActorRef) Ask(ctx context.Context, msg Message, timeout time.Duration) (Message, error) {
	if r.system == nil {
		return nil, fmt.Errorf("actor: ask on zero-value ref: %w", ErrUnknownActor)
	}
	replyCh := make(chan Message, 1)
	r.system.registerPendingAsk(msg.MsgID(), replyCh)
	defer r.system.clearPendingAsk(msg.MsgID())

	r.Tell(msg)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		return nil, fmt.Errorf("actor: %s: %w", msg.MsgID(), ErrAskTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
