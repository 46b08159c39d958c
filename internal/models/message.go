package models

import (
	"fmt"
	"time"
)

// MessageKind is the closed set of message variants held by the store
type MessageKind string

const (
	KindChat  MessageKind = "chat"
	KindJoin  MessageKind = "join"
	KindLeave MessageKind = "leave"
	KindFile  MessageKind = "file"
	KindVoice MessageKind = "voice"
)

// IsPresence reports whether the kind is a join/leave notification
func (k MessageKind) IsPresence() bool {
	return k == KindJoin || k == KindLeave
}

// DeliveryStatus orders a message's delivery progress. Values only move forward.
type DeliveryStatus int

const (
	StatusUnknown DeliveryStatus = iota
	StatusSending
	StatusSent
	StatusDelivered
	StatusRead
)

var statusNames = map[DeliveryStatus]string{
	StatusUnknown:   "unknown",
	StatusSending:   "sending",
	StatusSent:      "sent",
	StatusDelivered: "delivered",
	StatusRead:      "read",
}

func (s DeliveryStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// After reports whether s is strictly later than other
func (s DeliveryStatus) After(other DeliveryStatus) bool {
	return s > other
}

// Valid reports whether s is one of the four real statuses
func (s DeliveryStatus) Valid() bool {
	return s >= StatusSending && s <= StatusRead
}

// MarshalText encodes the status by name
func (s DeliveryStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name
func (s *DeliveryStatus) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown delivery status %q", string(text))
}

// Origin records who created a message. It never changes after creation.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// MediaKind classifies an attachment
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Media describes a file attachment
type Media struct {
	URL      string    `json:"url"`
	Name     string    `json:"name,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
	Kind     MediaKind `json:"kind"`
}

// Voice describes a recorded voice note
type Voice struct {
	DurationLabel string `json:"duration_label"`
}

// Message is one entry of the chat log
type Message struct {
	ID        int64               `json:"id"`
	Sender    string              `json:"sender"`
	Content   string              `json:"content"`
	Kind      MessageKind         `json:"kind"`
	CreatedAt time.Time           `json:"created_at"`
	Status    DeliveryStatus      `json:"status"`
	Origin    Origin              `json:"origin"`
	ReplyTo   *int64              `json:"reply_to,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
	Starred   bool                `json:"starred"`
	Forwarded bool                `json:"forwarded"`
	Editing   bool                `json:"editing"`
	Media     *Media              `json:"media,omitempty"`
	Voice     *Voice              `json:"voice,omitempty"`
}

// Clone returns a deep copy so callers can never alias store-owned state
func (m Message) Clone() Message {
	out := m
	if m.ReplyTo != nil {
		id := *m.ReplyTo
		out.ReplyTo = &id
	}
	if m.Reactions != nil {
		out.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, actors := range m.Reactions {
			out.Reactions[emoji] = append([]string(nil), actors...)
		}
	}
	if m.Media != nil {
		media := *m.Media
		out.Media = &media
	}
	if m.Voice != nil {
		voice := *m.Voice
		out.Voice = &voice
	}
	return out
}

// IsLocal reports whether this client created the message
func (m Message) IsLocal() bool {
	return m.Origin == OriginLocal
}

// HasReacted reports whether actor reacted with emoji
func (m Message) HasReacted(emoji, actor string) bool {
	for _, a := range m.Reactions[emoji] {
		if a == actor {
			return true
		}
	}
	return false
}
