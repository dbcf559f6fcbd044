package actor

import (
	"encoding/json"
	"fmt"
)

// wireEnvelope is the only shape that ever crosses the network: a target
// actor id, a kind discriminator, and the raw payload for that kind. The
// decoder switches over a closed set of known kinds into concrete structs —
// it never deserializes into an arbitrary or interface{} type, so a remote
// peer cannot smuggle in a type this process wasn't built to handle.
type wireEnvelope struct {
	Target  string      `json:"target"`
	Kind    MessageKind `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func encodeFrame(target string, msg Message) ([]byte, error) {
	switch msg.(type) {
	case MonitorChild:
		return nil, fmt.Errorf("actor: %s is local-only and cannot be sent remotely", KindMonitorChild)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	env := wireEnvelope{Target: target, Kind: msg.Kind(), Payload: payload}
	return json.Marshal(env)
}

func decodeFrame(data []byte) (string, Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, err
	}

	switch env.Kind {
	case KindShutdown:
		var m Shutdown
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindHealthPing:
		var m HealthPing
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindHealthAck:
		var m HealthAck
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindChildFailed:
		var m ChildFailed
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindRestartChild:
		var m RestartChild
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindRegisterWorker:
		var m RegisterWorker
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindRegisterAggregator:
		var m RegisterAggregator
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindRegisterEvaluator:
		var m RegisterEvaluator
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindTrainRequest:
		var m TrainRequest
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindModelUpdate:
		var m ModelUpdate
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindGlobalModelBroadcast:
		var m GlobalModelBroadcast
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindAggregateRound:
		var m AggregateRound
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindAggregatedResult:
		var m AggregatedResult
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindEvaluationResult:
		var m EvaluationResult
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindGossipPeerJoin:
		var m GossipPeerJoin
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindGossipState:
		var m GossipState
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	case KindMembershipUpdate:
		var m MembershipUpdate
		msg, err := unmarshalInto(&m, env.Payload)
		return env.Target, msg, err
	default:
		return "", nil, fmt.Errorf("actor: unknown wire kind %q", env.Kind)
	}
}

func unmarshalInto[T Message](dst *T, payload json.RawMessage) (Message, error) {
	if err := json.Unmarshal(payload, dst); err != nil {
		return nil, err
	}
	return *dst, nil
}
