package actor

import "errors"

// Error taxonomy, per §7. Each is a sentinel so callers can test with
// errors.Is across the %w-wrapping boundaries the rest of the codebase
// applies consistently.
var (
	// ErrConnectFailed marks a failed outbound dial.
	ErrConnectFailed = errors.New("actor: connect failed")
	// ErrFraming marks a short read or invalid frame length.
	ErrFraming = errors.New("actor: framing error")
	// ErrSerialization marks a failure to encode or decode a frame payload.
	ErrSerialization = errors.New("actor: serialization error")
	// ErrAskTimeout is returned by ActorRef.Ask when no reply arrives in time.
	ErrAskTimeout = errors.New("actor: ask timed out")
	// ErrUnknownActor is returned internally when addressing a non-existent
	// local actor id; it never surfaces to tell() callers, which is a
	// deliberate fire-and-forget contract.
	ErrUnknownActor = errors.New("actor: unknown actor id")
	// ErrActorInitFailed marks a panic recovered from an actor's PreStart.
	ErrActorInitFailed = errors.New("actor: init failed")
	// ErrBehaviorFailed marks a panic recovered from an actor's behavior
	// dispatch (Receive or a Become'd Behavior).
	ErrBehaviorFailed = errors.New("actor: behavior failed")
)
