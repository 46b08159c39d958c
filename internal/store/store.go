// Package store holds the in-memory chat log.
//
// The Store owns message creation, delivery status transitions, reactions, starring,
// edits, deletes and reply/forward linkage. It performs no I/O. All accessors return
// deep copies, so callers never alias store-owned state.
package store

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"chatline/internal/errors"
	"chatline/internal/models"
	"chatline/pkg/broker/types"
)

// Receipt describes what ReceiveRemote did with an inbound payload
type Receipt struct {
	ID        int64
	Kind      models.MessageKind
	Sender    string
	Discarded bool
}

// Store is an ordered, mutable log of messages
type Store struct {
	mu     sync.RWMutex
	order  []int64
	byID   map[int64]*models.Message
	lastID int64
	now    func() time.Time
}

// New creates an empty store. now supplies creation timestamps; nil means time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		byID: make(map[int64]*models.Message),
		now:  now,
	}
}

// Append adds msg to the end of the log and returns its id. Zero-valued kind, origin,
// status and timestamp are filled with Chat, Local, Sending and the current time.
func (s *Store) Append(msg models.Message) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

func (s *Store) appendLocked(msg models.Message) int64 {
	m := msg.Clone()
	s.lastID++
	m.ID = s.lastID
	if m.Kind == "" {
		m.Kind = models.KindChat
	}
	if m.Origin == "" {
		m.Origin = models.OriginLocal
	}
	if !m.Status.Valid() {
		m.Status = models.StatusSending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	if len(m.Reactions) == 0 {
		m.Reactions = nil
	}

	s.byID[m.ID] = &m
	s.order = append(s.order, m.ID)
	return m.ID
}

// ReceiveRemote decodes an inbound payload and appends it. A CHAT payload whose sender
// is self is the broker echoing our own optimistic append and is discarded.
func (s *Store) ReceiveRemote(raw []byte, self string) (Receipt, error) {
	payload, err := types.Decode(raw)
	if err != nil {
		return Receipt{}, errors.NewProtocolDecodeError("inbound chat payload", err)
	}

	receipt := Receipt{Sender: payload.Sender}
	msg := models.Message{
		Sender: payload.Sender,
		Origin: models.OriginRemote,
		Status: models.StatusDelivered,
	}

	switch payload.Type {
	case types.TypeChat:
		receipt.Kind = models.KindChat
		if payload.Sender == self {
			receipt.Discarded = true
			return receipt, nil
		}
		msg.Kind = models.KindChat
		msg.Content = payload.Content
	case types.TypeJoin:
		receipt.Kind = models.KindJoin
		msg.Kind = models.KindJoin
		msg.Content = PresenceText(models.KindJoin, payload.Sender)
	case types.TypeLeave:
		receipt.Kind = models.KindLeave
		msg.Kind = models.KindLeave
		msg.Content = PresenceText(models.KindLeave, payload.Sender)
	}

	receipt.ID = s.Append(msg)
	return receipt, nil
}

// PresenceText renders the human readable line for a join or leave
func PresenceText(kind models.MessageKind, sender string) string {
	switch kind {
	case models.KindJoin:
		return fmt.Sprintf("%s joined the chat", sender)
	case models.KindLeave:
		return fmt.Sprintf("%s left the chat", sender)
	}
	return ""
}

// AdvanceStatus moves a message forward to next. It reports false when the message is
// gone or next is not strictly later than the current status.
func (s *Store) AdvanceStatus(id int64, next models.DeliveryStatus) bool {
	if !next.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || !next.After(m.Status) {
		return false
	}
	m.Status = next
	return true
}

// StartEdit flags a message as being edited
func (s *Store) StartEdit(id int64) bool {
	return s.update(id, func(m *models.Message) bool {
		if m.Kind.IsPresence() {
			return false
		}
		m.Editing = true
		return true
	})
}

// CancelEdit clears the editing flag without touching content
func (s *Store) CancelEdit(id int64) bool {
	return s.update(id, func(m *models.Message) bool {
		if !m.Editing {
			return false
		}
		m.Editing = false
		return true
	})
}

// Edit replaces the content and clears the editing flag. Blank content is ignored.
func (s *Store) Edit(id int64, content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	return s.update(id, func(m *models.Message) bool {
		if m.Kind.IsPresence() {
			return false
		}
		m.Content = content
		m.Editing = false
		return true
	})
}

// Delete removes a message. Replies pointing at it keep their dangling reference.
func (s *Store) Delete(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

// ToggleReaction adds actor to the emoji's set, or removes it when already present.
// An emoji whose set becomes empty is dropped.
func (s *Store) ToggleReaction(id int64, emoji, actor string) bool {
	if emoji == "" || actor == "" {
		return false
	}
	return s.update(id, func(m *models.Message) bool {
		actors := m.Reactions[emoji]
		if i := slices.Index(actors, actor); i >= 0 {
			actors = slices.Delete(actors, i, i+1)
			if len(actors) == 0 {
				delete(m.Reactions, emoji)
				if len(m.Reactions) == 0 {
					m.Reactions = nil
				}
			} else {
				m.Reactions[emoji] = actors
			}
			return true
		}

		if m.Reactions == nil {
			m.Reactions = make(map[string][]string)
		}
		actors = append(actors, actor)
		slices.Sort(actors)
		m.Reactions[emoji] = actors
		return true
	})
}

// ToggleStar flips the starred flag
func (s *Store) ToggleStar(id int64) bool {
	return s.update(id, func(m *models.Message) bool {
		m.Starred = !m.Starred
		return true
	})
}

// Forward appends a copy of a message sent by newSender. The copy shares no state with
// the source and starts at Sent.
func (s *Store) Forward(id int64, newSender string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.byID[id]
	if !ok || src.Kind.IsPresence() {
		return 0, false
	}

	copied := src.Clone()
	fwd := models.Message{
		Sender:    newSender,
		Content:   copied.Content,
		Kind:      copied.Kind,
		Status:    models.StatusSent,
		Origin:    models.OriginLocal,
		Forwarded: true,
		Media:     copied.Media,
		Voice:     copied.Voice,
	}
	return s.appendLocked(fwd), true
}

// Clear drops every message. Ids are never reused afterwards.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.byID = make(map[int64]*models.Message)
}

// Get returns a copy of one message
func (s *Store) Get(id int64) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return models.Message{}, false
	}
	return m.Clone(), true
}

// ResolveReply follows a message's reply reference. It reports false when the message has
// no reply target or the target was deleted.
func (s *Store) ResolveReply(id int64) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok || m.ReplyTo == nil {
		return models.Message{}, false
	}
	target, ok := s.byID[*m.ReplyTo]
	if !ok {
		return models.Message{}, false
	}
	return target.Clone(), true
}

// Snapshot returns every message in insertion order
func (s *Store) Snapshot() []models.Message {
	return s.filter(func(*models.Message) bool { return true })
}

// Len returns the number of messages held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) update(id int64, fn func(m *models.Message) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return false
	}
	return fn(m)
}

func (s *Store) filter(keep func(m *models.Message) bool) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0, len(s.order))
	for _, id := range s.order {
		m := s.byID[id]
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	return out
}
