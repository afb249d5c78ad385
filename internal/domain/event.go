package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DispatchEvent is the envelope published to the message bus.
// SentTo is both the destination channel and the routing key.
type DispatchEvent struct {
	ID        string          `json:"id"`
	Origin    string          `json:"origin"`
	SentTo    string          `json:"sent_to"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewDispatchEvent wraps payload in an envelope addressed to sentTo.
func NewDispatchEvent(origin, sentTo string, payload any) (*DispatchEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	now := time.Now().UTC()
	return &DispatchEvent{
		ID:        uuid.NewString(),
		Origin:    origin,
		SentTo:    sentTo,
		Payload:   body,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// DecodeDispatchEvent parses a message body. A payload delivered as a JSON
// string holding an encoded object is unwrapped into that object.
func DecodeDispatchEvent(body []byte) (*DispatchEvent, error) {
	var event DispatchEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	payload := bytes.TrimSpace(event.Payload)
	if len(payload) > 0 && payload[0] == '"' {
		var encoded string
		if err := json.Unmarshal(payload, &encoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		payload = bytes.TrimSpace([]byte(encoded))
	}

	if len(payload) == 0 || payload[0] != '{' || !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrInvalidPayload)
	}
	event.Payload = payload

	return &event, nil
}

// DecodePayload unmarshals the event payload into v.
func (e *DispatchEvent) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
