package actor

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// SendMiddleware inspects or transforms a message before it reaches a
// local mailbox or is written to a remote connection. Returning nil drops
// the message silently, per §4.2's interception chain semantics.
type SendMiddleware func(targetID string, msg Message) Message

// ReceiveMiddleware inspects or transforms a message after dequeue, before
// the actor's behavior is invoked. Returning nil drops the message.
type ReceiveMiddleware func(actorID string, msg Message) Message

// ActorSystem owns the actor registry, mailboxes, pending outbound
// connections and pending Ask replies for one process. Every actor runs its
// mailbox-consumer loop on its own goroutine; no two goroutines ever drain
// the same mailbox, and an actor's own state is touched only from that
// goroutine — the cooperative single-threaded-per-actor model in §5.
type ActorSystem struct {
	log *zap.Logger

	mu        sync.RWMutex
	actors    map[string]Actor
	mailboxes map[string]*Mailbox
	stopCh    map[string]chan struct{}

	sendMW    []SendMiddleware
	receiveMW []ReceiveMiddleware

	askMu sync.Mutex
	asks  map[string]chan Message

	connMu sync.Mutex
	conns  map[RemoteAddr]net.Conn

	listener      net.Listener
	tlsConf       *TLSConfig
	AdvertiseHost string

	// MailboxCapacity overrides the per-actor mailbox depth for every
	// subsequent spawn; 0 (the zero value) falls back to
	// DefaultMailboxCapacity, per §3's "capacity 1000 (configurable)".
	MailboxCapacity int
}

// NewActorSystem constructs an empty ActorSystem. Pass nil for tlsConf to
// run an unencrypted transport.
func NewActorSystem(log *zap.Logger, tlsConf *TLSConfig) *ActorSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &ActorSystem{
		log:       log,
		actors:    make(map[string]Actor),
		mailboxes: make(map[string]*Mailbox),
		stopCh:    make(map[string]chan struct{}),
		asks:      make(map[string]chan Message),
		conns:     make(map[RemoteAddr]net.Conn),
		tlsConf:   tlsConf,
	}
}

// AddSendMiddleware appends mw to the chain applied to every Tell/Ask
// before local mailbox enqueue or outbound remote send.
func (s *ActorSystem) AddSendMiddleware(mw SendMiddleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendMW = append(s.sendMW, mw)
}

// AddReceiveMiddleware appends mw to the chain applied to every message
// immediately before an actor's behavior runs.
func (s *ActorSystem) AddReceiveMiddleware(mw ReceiveMiddleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiveMW = append(s.receiveMW, mw)
}

// ActorOf spawns a top-level actor under id. Spawning twice with the same
// id is idempotent: it returns the already-running actor's ref.
func (s *ActorSystem) ActorOf(id string, factory ActorFactory) ActorRef {
	return s.spawn(id, factory, nil)
}

func (s *ActorSystem) spawn(id string, factory ActorFactory, parent *ActorRef) ActorRef {
	s.mu.Lock()
	if _, exists := s.actors[id]; exists {
		s.mu.Unlock()
		return ActorRef{ActorID: id, system: s}
	}

	a := factory()
	mb := NewMailbox(s.MailboxCapacity)
	stop := make(chan struct{})
	self := ActorRef{ActorID: id, system: s}

	ctx := &ActorContext{
		self:     self,
		parent:   parent,
		system:   s,
		log:      s.log.With(zap.String("actor_id", id)),
		children: make(map[string]ActorRef),
	}
	a.setContext(ctx)

	s.actors[id] = a
	s.mailboxes[id] = mb
	s.stopCh[id] = stop
	s.mu.Unlock()

	go s.runActor(id, a, mb, stop)
	return self
}

func (s *ActorSystem) runActor(id string, a Actor, mb *Mailbox, stop chan struct{}) {
	s.safeCall(id, a, ErrActorInitFailed, a.PreStart)
	defer a.PostStop()

	for {
		select {
		case <-stop:
			return
		case msg, ok := <-mb.Chan():
			if !ok {
				return
			}
			if _, isShutdown := msg.(Shutdown); isShutdown {
				return
			}

			s.mu.RLock()
			chain := append([]ReceiveMiddleware(nil), s.receiveMW...)
			s.mu.RUnlock()
			for _, mw := range chain {
				msg = mw(id, msg)
				if msg == nil {
					break
				}
			}
			if msg == nil {
				continue
			}

			s.dispatchAskReply(msg)

			s.safeCall(id, a, ErrBehaviorFailed, func() {
				if b := a.behavior(); b != nil {
					b(msg)
				} else {
					a.Receive(msg)
				}
			})
		}
	}
}

// safeCall invokes fn with a recover guard, matching §4.1/§7's "actors never
// let exceptions escape their receive loop": a panic is logged, classified
// by cause (errKind, either ErrActorInitFailed or ErrBehaviorFailed), and
// reported to the actor's parent as ChildFailed if one is known. The actor
// keeps running afterward unless its parent restarts it.
func (s *ActorSystem) safeCall(id string, a Actor, errKind error, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("%w: %v", errKind, r)
		s.log.Error("actor panic recovered", zap.String("actor_id", id), zap.Error(err))

		if parent := a.context().Parent(); parent != nil {
			parent.Tell(ChildFailed{
				Envelope: NewEnvelope(nil),
				ChildID:  id,
				Err:      err.Error(),
			})
		}
	}()
	fn()
}

// correlated is implemented by Envelope; it exposes the request id a reply
// is answering, distinct from the reply's own MsgID.
type correlated interface {
	replyCorrelation() string
}

// dispatchAskReply hands msg to a waiting Ask caller if msg carries a
// ReplyTo correlating it to a pending request, in addition to the actor's
// own Receive. A plain request (ReplyTo unset) never self-matches its own
// pending Ask entry, even though the two share the same ActorSystem-wide
// asks map.
func (s *ActorSystem) dispatchAskReply(msg Message) {
	c, ok := msg.(correlated)
	if !ok {
		return
	}
	replyTo := c.replyCorrelation()
	if replyTo == "" {
		return
	}

	s.askMu.Lock()
	ch, ok := s.asks[replyTo]
	s.askMu.Unlock()
	if ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (s *ActorSystem) registerPendingAsk(id string, ch chan Message) {
	s.askMu.Lock()
	defer s.askMu.Unlock()
	s.asks[id] = ch
}

func (s *ActorSystem) clearPendingAsk(id string) {
	s.askMu.Lock()
	defer s.askMu.Unlock()
	delete(s.asks, id)
}

// deliverLocal applies the send middleware chain and enqueues msg on the
// target's mailbox. Delivery to an unknown id is silently dropped, matching
// the fire-and-forget contract of Tell.
func (s *ActorSystem) deliverLocal(targetID string, msg Message) {
	s.mu.RLock()
	chain := append([]SendMiddleware(nil), s.sendMW...)
	mb, ok := s.mailboxes[targetID]
	s.mu.RUnlock()
	if !ok {
		s.log.Debug("deliver to unknown actor dropped", zap.String("target", targetID))
		return
	}
	for _, mw := range chain {
		msg = mw(targetID, msg)
		if msg == nil {
			return
		}
	}
	mb.Put(msg)
}

// stopActor tears down the actor registered under id, post-order over its
// children first.
func (s *ActorSystem) stopActor(id string) {
	s.mu.RLock()
	a, ok := s.actors[id]
	stop, hasStop := s.stopCh[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	for _, child := range a.context().Children() {
		s.stopActor(child.ActorID)
	}

	if hasStop {
		close(stop)
	}

	s.mu.Lock()
	delete(s.actors, id)
	delete(s.mailboxes, id)
	delete(s.stopCh, id)
	s.mu.Unlock()
}

// Stop tears down the actor registered under id and its subtree.
func (s *ActorSystem) Stop(id string) {
	s.stopActor(id)
}

// Shutdown stops every actor, then closes the listener and any cached
// outbound connections, in that order.
func (s *ActorSystem) Shutdown() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		s.stopActor(id)
	}

	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.connMu.Lock()
	for addr, conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, addr)
	}
	s.connMu.Unlock()
}

// ListenAddr returns the advertised host (AdvertiseHost, defaulting to
// "localhost") and the TCP port this system's listener bound to. The
// second return is 0 if StartServer has not been called yet.
func (s *ActorSystem) ListenAddr() (string, int) {
	host := s.AdvertiseHost
	if host == "" {
		host = "localhost"
	}
	if s.listener == nil {
		return host, 0
	}
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return host, tcpAddr.Port
	}
	return host, 0
}

// LocalRef returns a ref bound to this system addressing the local actor
// registered under id, without checking whether it actually exists yet.
func (s *ActorSystem) LocalRef(id string) ActorRef {
	return ActorRef{ActorID: id, system: s}
}

// RemoteRef constructs a ref addressing actorID on the system listening at
// addr. No connection is opened until a message is actually sent.
func (s *ActorSystem) RemoteRef(actorID string, addr RemoteAddr) ActorRef {
	a := addr
	return ActorRef{ActorID: actorID, Remote: &a, system: s}
}

func (s *ActorSystem) errUnknownLocal(id string) error {
	return fmt.Errorf("%w: %s", ErrUnknownActor, id)
}
