package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"kinship/internal/observability"
)

// Event type constants prevent typos in event names.
const (
	EventFriendRequestReceived  = "friend_request_received"
	EventFriendRequestAccepted  = "friend_request_accepted"
	EventFriendRequestRejected  = "friend_request_rejected"
	EventFriendRequestCancelled = "friend_request_cancelled"
	EventFriendRemoved          = "friend_removed"
	EventFriendPresenceChanged  = "friend_presence_changed"
	EventMessageReceived        = "message_received"
	EventConversationRead       = "conversation_read"
	EventPostCreated            = "post_created"
	EventPostReactionUpdated    = "post_reaction_updated"
	EventCommentCreated         = "comment_created"
	EventNotificationCreated    = "notification_created"
)

// Event is the envelope written to websocket clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Encode marshals the event to the wire form.
func (e Event) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Publisher routes events to users. With Redis available events go through
// the notifier so every instance's hub sees them; otherwise they are handed
// to the local hub directly. A nil Publisher drops everything.
type Publisher struct {
	hub      *Hub
	notifier *Notifier
}

// NewPublisher creates a Publisher. Either argument may be nil.
func NewPublisher(hub *Hub, notifier *Notifier) *Publisher {
	return &Publisher{hub: hub, notifier: notifier}
}

// ToUser delivers an event to every connection of userID.
func (p *Publisher) ToUser(ctx context.Context, userID uint, eventType string, payload any) {
	if p == nil {
		return
	}
	msg, ok := p.encode(ctx, eventType, payload)
	if !ok {
		return
	}
	if p.notifier.Enabled() {
		err := p.notifier.PublishUser(ctx, userID, msg)
		if err == nil {
			return
		}
		observability.Logger.WarnContext(ctx, "failed to publish user event, delivering locally",
			slog.String("type", eventType),
			slog.Uint64("target_user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
	}
	if p.hub != nil {
		p.hub.Broadcast(userID, msg)
	}
}

// ToAll delivers an event to every connected user.
func (p *Publisher) ToAll(ctx context.Context, eventType string, payload any) {
	if p == nil {
		return
	}
	msg, ok := p.encode(ctx, eventType, payload)
	if !ok {
		return
	}
	if p.notifier.Enabled() {
		err := p.notifier.PublishBroadcast(ctx, msg)
		if err == nil {
			return
		}
		observability.Logger.WarnContext(ctx, "failed to publish broadcast event, delivering locally",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
	if p.hub != nil {
		p.hub.BroadcastAll(msg)
	}
}

func (p *Publisher) encode(ctx context.Context, eventType string, payload any) (string, bool) {
	msg, err := Event{Type: eventType, Payload: payload}.Encode()
	if err != nil {
		observability.Logger.ErrorContext(ctx, "failed to marshal event",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	observability.RealtimeEvents.WithLabelValues(eventType).Inc()
	return msg, true
}
