package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"note-history-server/internal/domain"
)

type MessageType string

// Note events reuse the service's event names on the wire.
const (
	TypeNoteCreated = MessageType(domain.NoteCreated)
	TypeNoteUpdated = MessageType(domain.NoteUpdated)
	TypeNoteDeleted = MessageType(domain.NoteDeleted)

	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message is the envelope for both directions. Clients only ever send ping.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// encodeMessage stamps and serializes one frame. A nil payload is omitted.
func encodeMessage(msgType MessageType, payload any) ([]byte, error) {
	msg := Message{Type: msgType, Timestamp: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

func (m *Message) IsNoteEvent() bool {
	switch m.Type {
	case TypeNoteCreated, TypeNoteUpdated, TypeNoteDeleted:
		return true
	}
	return false
}

// Note decodes the version carried by a note event.
func (m *Message) Note() (*domain.NoteVersion, error) {
	if !m.IsNoteEvent() {
		return nil, fmt.Errorf("message %q carries no note", m.Type)
	}
	var note domain.NoteVersion
	if err := json.Unmarshal(m.Payload, &note); err != nil {
		return nil, err
	}
	return &note, nil
}
