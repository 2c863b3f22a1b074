package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrUnknownKind = errors.New("unknown message kind")

// Envelope is the wire form of a Message. To is empty for broadcasts.
type Envelope struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	From    string          `json:"from"`
	To      string          `json:"to,omitempty"`
	Tick    int64           `json:"tick"`
	Payload json.RawMessage `json:"payload"`
}

// Delivery is a decoded message together with its routing metadata.
type Delivery struct {
	ID      string
	From    string
	To      string
	Tick    int64
	Message Message
}

// Encode wraps msg in a fresh envelope and marshals it.
func Encode(from, to string, tick int64, msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.Kind(), err)
	}
	env := Envelope{
		ID:      uuid.New().String(),
		Kind:    msg.Kind(),
		From:    from,
		To:      to,
		Tick:    tick,
		Payload: payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope and its payload into the matching Message variant.
func Decode(data []byte) (Delivery, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Delivery{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	msg, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return Delivery{}, err
	}

	return Delivery{
		ID:      env.ID,
		From:    env.From,
		To:      env.To,
		Tick:    env.Tick,
		Message: msg,
	}, nil
}

func decodePayload(kind Kind, payload json.RawMessage) (Message, error) {
	switch kind {
	case KindCandidacy:
		return unmarshalAs[Candidacy](kind, payload)
	case KindCommanderAnnouncement:
		return unmarshalAs[CommanderAnnouncement](kind, payload)
	case KindPositionUpdate:
		return unmarshalAs[PositionUpdate](kind, payload)
	case KindDistanceReport:
		return unmarshalAs[DistanceReport](kind, payload)
	case KindHierarchyUpdate:
		return unmarshalAs[HierarchyUpdate](kind, payload)
	case KindSightingReport:
		return unmarshalAs[SightingReport](kind, payload)
	case KindSharedTargetUpdate:
		return unmarshalAs[SharedTargetUpdate](kind, payload)
	case KindDeathNotification:
		return unmarshalAs[DeathNotification](kind, payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func unmarshalAs[T Message](kind Kind, payload json.RawMessage) (Message, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", kind, err)
	}
	return v, nil
}
