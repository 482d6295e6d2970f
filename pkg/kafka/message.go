package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

type MessageType string

const (
	MessageTenderOffered   MessageType = "tender.offered"
	MessageTenderCancelled MessageType = "tender.cancelled"
	MessageTenderResponse  MessageType = "tender.response"
	MessageLifecycleEvent  MessageType = "lifecycle.event"
	MessageNotification    MessageType = "notification"
	MessageBroadcast       MessageType = "broadcast"
	MessageEmail           MessageType = "email"
)

const (
	headerMessageType = "message_type"
	headerTraceParent = "traceparent"
	headerTraceState  = "tracestate"
)

// Envelope wraps every payload clover puts on the wire.
type Envelope struct {
	Type       MessageType     `json:"type"`
	ID         string          `json:"id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(msgType MessageType, at time.Time, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s payload: %w", msgType, err)
	}
	return &Envelope{Type: msgType, ID: uuid.NewString(), OccurredAt: at, Payload: data}, nil
}

func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse message as JSON: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &env, nil
}

// Decode unmarshals the payload into out.
func (e *Envelope) Decode(out any) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("invalid %s payload: %w", e.Type, err)
	}
	return nil
}

// TenderMessage is sent to a carrier when a tender is offered or withdrawn.
type TenderMessage struct {
	Tender *models.Tender `json:"tender"`
	Reason string         `json:"reason,omitempty"`
}

// TenderResponse is a carrier's reply to an offered tender.
type TenderResponse struct {
	CounterRateCents *int64    `json:"counter_rate_cents,omitempty"`
	CarrierID        uuid.UUID `json:"carrier_id"`
	TenderID         uuid.UUID `json:"tender_id"`
	Accepted         bool      `json:"accepted"`
}

// MessageHeaders are the Kafka headers clover sets on every message
type MessageHeaders struct {
	Type        MessageType
	TraceParent string
	TraceState  string
}

func (h *MessageHeaders) ToKafkaHeaders() []Header {
	headers := make([]Header, 0, 3)
	if h.Type != "" {
		headers = append(headers, Header{Key: headerMessageType, Value: []byte(h.Type)})
	}
	if h.TraceParent != "" {
		headers = append(headers, Header{Key: headerTraceParent, Value: []byte(h.TraceParent)})
	}
	if h.TraceState != "" {
		headers = append(headers, Header{Key: headerTraceState, Value: []byte(h.TraceState)})
	}
	return headers
}

// Header represents a Kafka message header
type Header struct {
	Key   string
	Value []byte
}

func ExtractHeaders(headers []Header) MessageHeaders {
	var mh MessageHeaders
	for _, h := range headers {
		switch h.Key {
		case headerMessageType:
			mh.Type = MessageType(h.Value)
		case headerTraceParent:
			mh.TraceParent = string(h.Value)
		case headerTraceState:
			mh.TraceState = string(h.Value)
		}
	}
	return mh
}
