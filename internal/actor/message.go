package actor

import "github.com/google/uuid"

// MessageKind tags the closed set of message variants exchanged between
// actors, local or remote. It is also the discriminator used by the wire
// codec (see codec.go) — there is no open-ended reflection-based dispatch.
type MessageKind string

const (
	KindShutdown     MessageKind = "shutdown"
	KindHealthPing   MessageKind = "health_ping"
	KindHealthAck    MessageKind = "health_ack"
	KindChildFailed  MessageKind = "child_failed"
	KindRestartChild MessageKind = "restart_child"
	KindMonitorChild MessageKind = "monitor_child"

	KindRegisterWorker       MessageKind = "register_worker"
	KindRegisterAggregator   MessageKind = "register_aggregator"
	KindRegisterEvaluator    MessageKind = "register_evaluator"
	KindTrainRequest         MessageKind = "train_request"
	KindModelUpdate          MessageKind = "model_update"
	KindGlobalModelBroadcast MessageKind = "global_model_broadcast"
	KindAggregateRound       MessageKind = "aggregate_round"
	KindAggregatedResult     MessageKind = "aggregated_result"
	KindEvaluationResult     MessageKind = "evaluation_result"

	KindGossipPeerJoin   MessageKind = "gossip_peer_join"
	KindGossipState      MessageKind = "gossip_state"
	KindMembershipUpdate MessageKind = "membership_update"
)

// Message is implemented by every variant in the closed set above. The
// envelope itself carries no ordering information — only an opaque id and
// an optional sender reference used for replies.
type Message interface {
	Kind() MessageKind
	MsgID() string
}

// Envelope is embedded by every concrete message type. It supplies the
// identity and optional sender required by §3's DATA MODEL; individual
// message types add their own payload fields and a Kind() method.
//
// ReplyTo is distinct from ID: ID names this message, ReplyTo (when set)
// names the request this message answers. Ask correlates on ReplyTo, never
// on a reply's own ID, since a reply mints its own fresh ID like any other
// message.
type Envelope struct {
	ID      string    `json:"id"`
	Sender  *ActorRef `json:"sender,omitempty"`
	ReplyTo string    `json:"reply_to,omitempty"`
}

// NewEnvelope mints a fresh opaque id and attaches an optional sender ref,
// the reply address a recipient echoes back for the ask/reply protocol.
func NewEnvelope(sender *ActorRef) Envelope {
	return Envelope{ID: uuid.NewString(), Sender: sender}
}

// NewReply mints a fresh envelope answering request, stamping ReplyTo so
// the original asker's Ask call can correlate it.
func NewReply(sender *ActorRef, request Message) Envelope {
	return Envelope{ID: uuid.NewString(), Sender: sender, ReplyTo: request.MsgID()}
}

// MsgID implements Message.
func (e Envelope) MsgID() string { return e.ID }

// replyCorrelation implements the unexported correlated interface system.go
// uses to route a reply back to a pending Ask call.
func (e Envelope) replyCorrelation() string { return e.ReplyTo }

// --- control messages -------------------------------------------------

// Shutdown terminates an actor's mailbox loop without invoking its
// behavior.
type Shutdown struct{ Envelope }

func (Shutdown) Kind() MessageKind { return KindShutdown }

// HealthPing is sent by a Supervisor to a monitored child; the child is
// expected to reply with HealthAck addressed back to Envelope.Sender.
type HealthPing struct{ Envelope }

func (HealthPing) Kind() MessageKind { return KindHealthPing }

// HealthAck acknowledges a HealthPing.
type HealthAck struct {
	Envelope
	ActorID string `json:"actor_id"`
}

func (HealthAck) Kind() MessageKind { return KindHealthAck }

// ChildFailed reports an uncaught error from a child's behavior or
// pre_start to its parent.
type ChildFailed struct {
	Envelope
	ChildID string `json:"child_id"`
	Err     string `json:"error"`
}

func (ChildFailed) Kind() MessageKind { return KindChildFailed }

// RestartChild requests that a supervisor restart a specific child
// immediately, bypassing the health-check threshold.
type RestartChild struct {
	Envelope
	ChildID string `json:"child_id"`
}

func (RestartChild) Kind() MessageKind { return KindRestartChild }

// ActorFactory rebuilds an actor instance from its stored recipe on
// restart. Factories are never serialized — MonitorChild is always a
// local, in-process message.
type ActorFactory func() Actor

// MonitorChild registers a child (spawned under the supervisor's context)
// along with the recipe needed to rebuild it after a restart.
type MonitorChild struct {
	Envelope
	ChildID string
	Factory ActorFactory
}

func (MonitorChild) Kind() MessageKind { return KindMonitorChild }

// --- orchestrated federated-learning messages --------------------------

// RegisterWorker, RegisterAggregator and RegisterEvaluator carry the
// advertised (host, port) of the sender's listener so the coordinator can
// build a remote ActorRef back to it.

type RegisterWorker struct {
	Envelope
	WorkerID string `json:"worker_id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

func (RegisterWorker) Kind() MessageKind { return KindRegisterWorker }

type RegisterAggregator struct {
	Envelope
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (RegisterAggregator) Kind() MessageKind { return KindRegisterAggregator }

type RegisterEvaluator struct {
	Envelope
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (RegisterEvaluator) Kind() MessageKind { return KindRegisterEvaluator }

// TrainRequest dispatches one round's global weights to a worker.
type TrainRequest struct {
	Envelope
	Round         int          `json:"round"`
	GlobalWeights ModelWeights `json:"global_weights"`
	Mu            float64      `json:"mu"`
}

func (TrainRequest) Kind() MessageKind { return KindTrainRequest }

// ModelUpdate is a worker's reply to TrainRequest.
type ModelUpdate struct {
	Envelope
	WorkerID   string             `json:"worker_id"`
	Round      int                `json:"round"`
	Weights    ModelWeights       `json:"weights"`
	NumSamples int                `json:"num_samples"`
	Metrics    map[string]float64 `json:"metrics"`
}

func (ModelUpdate) Kind() MessageKind { return KindModelUpdate }

// GlobalModelBroadcast announces the newly aggregated global weights to
// workers and the evaluator.
type GlobalModelBroadcast struct {
	Envelope
	Round   int          `json:"round"`
	Weights ModelWeights `json:"weights"`
}

func (GlobalModelBroadcast) Kind() MessageKind { return KindGlobalModelBroadcast }

// WeightedUpdate pairs one worker's weights with its sample count, the
// unit the aggregator averages over.
type WeightedUpdate struct {
	WorkerID   string       `json:"worker_id"`
	Weights    ModelWeights `json:"weights"`
	NumSamples int          `json:"num_samples"`
}

// AggregateRound forwards a round's collected updates to the aggregator.
// TrainMetrics holds one metrics map per worker update, in the same order
// as Updates; the aggregator averages across them.
type AggregateRound struct {
	Envelope
	Round        int                  `json:"round"`
	Updates      []WeightedUpdate     `json:"updates"`
	TrainMetrics []map[string]float64 `json:"train_metrics"`
}

func (AggregateRound) Kind() MessageKind { return KindAggregateRound }

// AggregatedResult is the aggregator's reply, carrying the new global
// weights.
type AggregatedResult struct {
	Envelope
	Round        int                `json:"round"`
	Weights      ModelWeights       `json:"weights"`
	TrainSummary map[string]float64 `json:"train_summary"`
}

func (AggregatedResult) Kind() MessageKind { return KindAggregatedResult }

// EvaluationResult is the evaluator's report back to the coordinator; it
// never feeds back into aggregation.
type EvaluationResult struct {
	Envelope
	Round            int                `json:"round"`
	Loss             float64            `json:"loss"`
	Accuracy         float64            `json:"accuracy"`
	PerClassAccuracy map[string]float64 `json:"per_class_accuracy"`
}

func (EvaluationResult) Kind() MessageKind { return KindEvaluationResult }

// --- gossip messages -----------------------------------------------------

// PeerEndpoint is the (host, port) pair advertised for a peer_id.
type PeerEndpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// GossipPeerJoin announces the sender's identity and listener endpoint.
type GossipPeerJoin struct {
	Envelope
	PeerID string `json:"peer_id"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

func (GossipPeerJoin) Kind() MessageKind { return KindGossipPeerJoin }

// CRDTDelta is the wire shape of one full CRDT snapshot exchanged during
// gossip, tagged by which CRDT it belongs to.
type CRDTDelta struct {
	Type crdtDeltaType `json:"type"`
	LWW  *LWWSnapshot  `json:"lww,omitempty"`
	PN   *PNSnapshot   `json:"pn,omitempty"`
}

type crdtDeltaType string

const (
	DeltaTypeLWW crdtDeltaType = "lww"
	DeltaTypePN  crdtDeltaType = "pn"
)

// GossipState is the periodic snapshot exchange between peers: CRDT
// deltas, discovered peer endpoints, and a progress signal (round_num,
// delta_norm) an Observer can summarize without participating.
type GossipState struct {
	Envelope
	PeerID     string                  `json:"peer_id"`
	RoundNum   int                     `json:"round_num"`
	DeltaNorm  float64                 `json:"delta_norm"`
	CRDTDeltas []CRDTDelta             `json:"crdt_deltas"`
	PeerInfo   map[string]PeerEndpoint `json:"peer_info"`
}

func (GossipState) Kind() MessageKind { return KindGossipState }

// MembershipUpdate carries a batch of newly learned peer endpoints. The
// gossip Peer takes no action on it; known_peers is filled only from
// GossipState.PeerInfo and GossipPeerJoin.
type MembershipUpdate struct {
	Envelope
	PeerInfo map[string]PeerEndpoint `json:"peer_info"`
}

func (MembershipUpdate) Kind() MessageKind { return KindMembershipUpdate }
