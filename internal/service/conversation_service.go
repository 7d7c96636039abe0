package service

import (
	"context"
	"sort"
	"time"

	"kinship/internal/lock"
	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// ConversationService derives conversations from the direct-message log.
// Conversations are never stored; every read regroups the viewer's messages.
type ConversationService struct {
	messages  repository.MessageRepository
	users     repository.UserRepository
	locker    lock.Locker
	maxLength int
	now       func() time.Time
}

// NewConversationService returns a new ConversationService. maxLength <= 0
// uses DefaultMaxMessageLength.
func NewConversationService(messages repository.MessageRepository, users repository.UserRepository, locker lock.Locker, maxLength int) *ConversationService {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	return &ConversationService{
		messages:  messages,
		users:     users,
		locker:    locker,
		maxLength: maxLength,
		now:       time.Now,
	}
}

// WithClock replaces the timestamp source for new messages.
func (s *ConversationService) WithClock(now func() time.Time) *ConversationService {
	s.now = now
	return s
}

// DeriveConversationID returns the id shared by every message between a and b.
func (s *ConversationService) DeriveConversationID(a, b uint) string {
	return models.DeriveConversationID(a, b)
}

// ListConversations groups the viewer's messages by conversation, newest
// activity first. Equal timestamps fall back to conversation id order.
// Conversations whose peer no longer resolves are left out.
func (s *ConversationService) ListConversations(ctx context.Context, viewerID uint) ([]*models.Conversation, error) {
	ctx, end := observability.StartSpan(ctx, "conversation.list", attribute.Int64("viewer_id", int64(viewerID)))
	convs, err := s.listConversations(ctx, viewerID)
	end(err)
	return convs, err
}

func (s *ConversationService) listConversations(ctx context.Context, viewerID uint) ([]*models.Conversation, error) {
	msgs, err := s.messages.ListForParticipant(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Conversation)
	peers := make(map[string]uint)
	for _, m := range msgs {
		peer, ok := models.ConversationPeer(m.ConversationID, viewerID)
		if !ok {
			continue
		}
		conv, seen := byID[m.ConversationID]
		if !seen {
			conv = &models.Conversation{ConversationID: m.ConversationID}
			byID[m.ConversationID] = conv
			peers[m.ConversationID] = peer
		}
		if conv.LastMessage == nil || !m.CreatedAt.Before(conv.LastMessage.CreatedAt) {
			conv.LastMessage = m
		}
		if m.SenderID != viewerID && !m.Read {
			conv.UnreadCount++
		}
	}

	peerIDs := make([]uint, 0, len(peers))
	for _, id := range peers {
		peerIDs = append(peerIDs, id)
	}
	summaries, err := attachSummaries(ctx, s.users, peerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Conversation, 0, len(byID))
	for id, conv := range byID {
		other, ok := summaries[peers[id]]
		if !ok {
			continue
		}
		conv.OtherUser = other
		conv.UpdatedAt = conv.LastMessage.CreatedAt
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessage.CreatedAt, out[j].LastMessage.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out, nil
}

// MarkConversationRead flips every unread message the peer sent the viewer
// and returns how many changed. Only participants may mark a conversation.
func (s *ConversationService) MarkConversationRead(ctx context.Context, conversationID string, viewerID uint) (int, error) {
	if _, ok := models.ConversationPeer(conversationID, viewerID); !ok {
		return 0, models.NewForbiddenError("You are not a participant in this conversation")
	}
	ctx, end := observability.StartSpan(ctx, "conversation.mark_read", attribute.String("conversation_id", conversationID))
	var n int
	err := withLock(ctx, s.locker, []string{lock.ConversationKey(conversationID)}, func() error {
		var err error
		n, err = s.messages.MarkConversationRead(ctx, conversationID, viewerID)
		return err
	})
	end(err)
	if err != nil {
		return 0, err
	}
	observability.MessagesMarkedRead.Add(float64(n))
	return n, nil
}

// SendMessage appends a message from sender to the conversation.
func (s *ConversationService) SendMessage(ctx context.Context, conversationID string, senderID uint, content string) (*models.Message, error) {
	ctx, end := observability.StartSpan(ctx, "conversation.send", attribute.String("conversation_id", conversationID))
	msg, err := s.sendMessage(ctx, conversationID, senderID, content)
	end(err)
	if err != nil {
		return nil, err
	}
	observability.MessagesSent.Inc()
	observability.Logger.DebugContext(ctx, "message sent",
		"conversation_id", conversationID, "message_id", msg.ID, "sender_id", senderID)
	return msg, nil
}

func (s *ConversationService) sendMessage(ctx context.Context, conversationID string, senderID uint, content string) (*models.Message, error) {
	content, err := cleanContent(content, s.maxLength, "Message")
	if err != nil {
		return nil, err
	}
	if _, _, err := models.ParseConversationID(conversationID); err != nil {
		return nil, models.NewValidationError("Invalid conversation ID")
	}
	peerID, ok := models.ConversationPeer(conversationID, senderID)
	if !ok {
		return nil, models.NewValidationError("Sender is not a participant in this conversation")
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, peerID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Read:           false,
	}
	err = withLock(ctx, s.locker, []string{lock.ConversationKey(conversationID)}, func() error {
		msg.CreatedAt = s.now()
		return s.messages.Create(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	msg.Sender = sender.Summary()
	return msg, nil
}

// Messages returns a conversation oldest first with sender summaries. Only
// participants may read it.
func (s *ConversationService) Messages(ctx context.Context, conversationID string, viewerID uint) ([]*models.Message, error) {
	if _, ok := models.ConversationPeer(conversationID, viewerID); !ok {
		return nil, models.NewForbiddenError("You are not a participant in this conversation")
	}
	msgs, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	a, b, _ := models.ParseConversationID(conversationID)
	summaries, err := attachSummaries(ctx, s.users, []uint{a, b})
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		m.Sender = summaries[m.SenderID]
	}
	return msgs, nil
}

// MarkMessageRead flips one message to read for its recipient. It reports
// false when nothing changed, including when the viewer sent the message.
func (s *ConversationService) MarkMessageRead(ctx context.Context, messageID, viewerID uint) (bool, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return false, err
	}
	if _, ok := models.ConversationPeer(msg.ConversationID, viewerID); !ok {
		return false, models.NewForbiddenError("You are not a participant in this conversation")
	}
	if msg.SenderID == viewerID || msg.Read {
		return false, nil
	}

	var changed bool
	err = withLock(ctx, s.locker, []string{lock.ConversationKey(msg.ConversationID)}, func() error {
		changed, err = s.messages.MarkRead(ctx, messageID)
		return err
	})
	if err != nil {
		return false, err
	}
	if changed {
		observability.MessagesMarkedRead.Inc()
	}
	return changed, nil
}

// DeleteMessage removes a message from the log.
func (s *ConversationService) DeleteMessage(ctx context.Context, messageID uint) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	return withLock(ctx, s.locker, []string{lock.ConversationKey(msg.ConversationID)}, func() error {
		return s.messages.Delete(ctx, messageID)
	})
}

// UnreadTotal sums unread counts across the viewer's conversations.
func (s *ConversationService) UnreadTotal(ctx context.Context, viewerID uint) (int, error) {
	convs, err := s.listConversations(ctx, viewerID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range convs {
		total += c.UnreadCount
	}
	return total, nil
}
