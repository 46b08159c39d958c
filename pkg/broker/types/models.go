package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType is the closed set of wire message types
type MessageType string

const (
	TypeChat  MessageType = "CHAT"
	TypeJoin  MessageType = "JOIN"
	TypeLeave MessageType = "LEAVE"
)

// Valid reports whether t is a known wire type
func (t MessageType) Valid() bool {
	switch t {
	case TypeChat, TypeJoin, TypeLeave:
		return true
	}
	return false
}

// ErrInvalidPayload is wrapped by every Decode failure
var ErrInvalidPayload = errors.New("invalid chat payload")

// Payload is the JSON body carried by every frame, inbound and outbound
type Payload struct {
	Sender  string      `json:"sender"`
	Content string      `json:"content,omitempty"`
	Type    MessageType `json:"type"`
}

type rawPayload struct {
	Sender  *string `json:"sender"`
	Content *string `json:"content"`
	Type    *string `json:"type"`
}

// Decode parses a frame body. Anything not matching the wire contract is rejected.
func Decode(body []byte) (Payload, error) {
	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if raw.Type == nil {
		return Payload{}, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}
	msgType := MessageType(*raw.Type)
	if !msgType.Valid() {
		return Payload{}, fmt.Errorf("%w: unknown type %q", ErrInvalidPayload, *raw.Type)
	}
	if raw.Sender == nil || strings.TrimSpace(*raw.Sender) == "" {
		return Payload{}, fmt.Errorf("%w: missing sender", ErrInvalidPayload)
	}

	p := Payload{Sender: *raw.Sender, Type: msgType}
	if raw.Content != nil {
		p.Content = *raw.Content
	}
	return p, nil
}

// Encode renders the payload as a UTF-8 JSON frame body
func Encode(p Payload) (string, error) {
	if !p.Type.Valid() {
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidPayload, p.Type)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
