package chat

import (
	"time"

	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
)

// MessageType tells who authored a message.
type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeBot  MessageType = "bot"
)

// Valid reports whether t is a known author type.
func (t MessageType) Valid() bool {
	return t == MessageTypeUser || t == MessageTypeBot
}

// Message is one append-only turn in a session's log.
type Message struct {
	ID           string                 `json:"id"`
	SessionToken string                 `json:"sessionToken"`
	Type         MessageType            `json:"type"`
	Content      string                 `json:"content"`
	Options      []knowledge.MenuOption `json:"options,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Clone returns a copy that does not share the options slice.
func (m Message) Clone() Message {
	if m.Options != nil {
		m.Options = append([]knowledge.MenuOption(nil), m.Options...)
	}
	return m
}
