package message

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fbittq01/vehicle-manage/errors"
)

// Kind identifies the message type carried by an envelope. Outbound kinds
// are fixed; inbound kinds are collector-defined command names and are
// treated as opaque strings.
type Kind string

// Outbound message kinds
const (
	KindLicensePlateDetected Kind = "license_plate_detected"
	KindProcessingStatus     Kind = "processing_status"
	KindError                Kind = "error"
)

// Inbound command kinds handled by the agent
const (
	KindStartProcessing Kind = "start_processing"
	KindStopProcessing  Kind = "stop_processing"
	KindGetStatus       Kind = "get_status"
)

// Payload is the data portion of an envelope. The concrete type is
// determined by the envelope's Kind.
type Payload interface {
	Kind() Kind
}

// Envelope is the wire message unit. An envelope is built fresh per send
// and never mutated after construction.
type Envelope struct {
	Type      Kind
	Data      Payload
	Timestamp string
}

// wireEnvelope is the JSON shape on the wire: exactly type, data, timestamp.
type wireEnvelope struct {
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// PayloadFactory constructs an empty payload for a kind so Decode can
// materialize typed data.
type PayloadFactory func() Payload

var (
	factoryMu sync.RWMutex
	factories = make(map[Kind]PayloadFactory)
)

// RegisterPayload associates a kind with a payload factory. Registration
// of a duplicate kind replaces the previous factory.
func RegisterPayload(kind Kind, factory PayloadFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[kind] = factory
}

func lookupFactory(kind Kind) (PayloadFactory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[kind]
	return f, ok
}

func init() {
	RegisterPayload(KindLicensePlateDetected, func() Payload { return &DetectionPayload{} })
	RegisterPayload(KindProcessingStatus, func() Payload { return &StatusPayload{} })
	RegisterPayload(KindError, func() Payload { return &ErrorPayload{} })
}

// Timestamp format on the wire (ISO-8601 / RFC 3339)
const timestampLayout = time.RFC3339

// now is swapped out in tests for deterministic timestamps
var now = time.Now

func stamp() string {
	return now().UTC().Format(timestampLayout)
}

// New constructs an envelope for an arbitrary payload with a fresh timestamp.
func New(data Payload) Envelope {
	return Envelope{
		Type:      data.Kind(),
		Data:      data,
		Timestamp: stamp(),
	}
}

// NewDetection constructs a license_plate_detected envelope.
func NewDetection(data *DetectionPayload) Envelope {
	return New(data)
}

// NewStatus constructs a processing_status envelope.
func NewStatus(data *StatusPayload) Envelope {
	return New(data)
}

// NewError constructs an error envelope. The payload's own timestamp is
// stamped if unset.
func NewError(data *ErrorPayload) Envelope {
	if data.Timestamp == "" {
		data.Timestamp = stamp()
	}
	return New(data)
}

// Encode serializes an envelope to its wire form.
func Encode(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Envelope", "Encode", "missing message type")
	}
	if env.Data == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Envelope", "Encode", "missing message data")
	}

	data, err := json.Marshal(env.Data)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Envelope", "Encode",
			fmt.Sprintf("marshal %s payload", env.Type))
	}

	raw, err := json.Marshal(wireEnvelope{
		Type:      env.Type,
		Data:      data,
		Timestamp: env.Timestamp,
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "Envelope", "Encode", "marshal envelope")
	}
	return raw, nil
}

// Decode parses a wire frame into an envelope. Known kinds get typed
// payloads; unknown kinds decode to a RawPayload so new collector command
// types pass through instead of failing.
func Decode(raw []byte) (*Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errors.WrapInvalid(errors.ErrMalformedFrame,
			"Envelope", "Decode", fmt.Sprintf("parse frame: %v", err))
	}
	if wire.Type == "" {
		return nil, errors.WrapInvalid(errors.ErrMalformedFrame,
			"Envelope", "Decode", "frame missing type field")
	}

	env := &Envelope{
		Type:      wire.Type,
		Timestamp: wire.Timestamp,
	}

	if factory, ok := lookupFactory(wire.Type); ok {
		payload := factory()
		if len(wire.Data) > 0 {
			if err := json.Unmarshal(wire.Data, payload); err != nil {
				return nil, errors.WrapInvalid(errors.ErrMalformedFrame,
					"Envelope", "Decode",
					fmt.Sprintf("parse %s payload: %v", wire.Type, err))
			}
		}
		env.Data = payload
		return env, nil
	}

	// Unknown kind - preserve the data opaquely
	rawPayload := &RawPayload{MessageKind: wire.Type, Fields: map[string]any{}}
	if len(wire.Data) > 0 {
		if err := json.Unmarshal(wire.Data, &rawPayload.Fields); err != nil {
			return nil, errors.WrapInvalid(errors.ErrMalformedFrame,
				"Envelope", "Decode",
				fmt.Sprintf("parse %s payload: %v", wire.Type, err))
		}
	}
	env.Data = rawPayload
	return env, nil
}
