package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message is an entry of the append-only direct-message log. Only Read is
// ever mutated after creation, and only from false to true.
type Message struct {
	ID             uint         `gorm:"primaryKey" json:"id" yaml:"id"`
	ConversationID string       `gorm:"not null;index;size:64" json:"conversation_id" yaml:"conversation_id"`
	SenderID       uint         `gorm:"not null;index" json:"sender_id" yaml:"sender_id"`
	Content        string       `gorm:"type:text;not null" json:"content" yaml:"content"`
	Read           bool         `gorm:"default:false;index" json:"read" yaml:"read"`
	CreatedAt      time.Time    `gorm:"index" json:"created_at" yaml:"created_at"`
	Sender         *UserSummary `gorm:"-" json:"sender,omitempty" yaml:"-"`
}

// TableName specifies the table name for GORM
func (Message) TableName() string {
	return "messages"
}

func (m *Message) RecordID() uint      { return m.ID }
func (m *Message) SetRecordID(id uint) { m.ID = id }

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// Conversation is derived from the message log on every read.
type Conversation struct {
	ConversationID string       `json:"conversation_id"`
	OtherUser      *UserSummary `json:"other_user"`
	LastMessage    *Message     `json:"last_message"`
	UnreadCount    int          `json:"unread_count"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// DeriveConversationID returns the key shared by the two participants,
// independent of argument order.
func DeriveConversationID(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}

// ParseConversationID decodes a key produced by DeriveConversationID. Only
// the canonical form is accepted: two distinct positive ids, smaller first,
// without leading zeros.
func ParseConversationID(id string) (uint, uint, error) {
	left, right, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed conversation id %q", id)
	}
	a, err := strconv.ParseUint(left, 10, 64)
	if err != nil || a == 0 {
		return 0, 0, fmt.Errorf("malformed conversation id %q", id)
	}
	b, err := strconv.ParseUint(right, 10, 64)
	if err != nil || b == 0 {
		return 0, 0, fmt.Errorf("malformed conversation id %q", id)
	}
	if a >= b || DeriveConversationID(uint(a), uint(b)) != id {
		return 0, 0, fmt.Errorf("non-canonical conversation id %q", id)
	}
	return uint(a), uint(b), nil
}

// ConversationPeer returns the participant of id that is not viewer. ok is
// false when viewer does not take part or the id is malformed.
func ConversationPeer(id string, viewer uint) (uint, bool) {
	a, b, err := ParseConversationID(id)
	if err != nil {
		return 0, false
	}
	switch viewer {
	case a:
		return b, true
	case b:
		return a, true
	default:
		return 0, false
	}
}
