package service

import (
	"context"
	"time"

	"kinship/internal/models"
	"kinship/internal/repository"
)

type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	now           func() time.Time
}

type CreateNotificationInput struct {
	UserID  uint
	ActorID uint
	Type    models.NotificationType
	Content string
	PostID  *uint
}

func NewNotificationService(notifications repository.NotificationRepository, users repository.UserRepository) *NotificationService {
	return &NotificationService{notifications: notifications, users: users, now: time.Now}
}

// ListForUser returns the user's notifications, newest first, with actor
// summaries.
func (s *NotificationService) ListForUser(ctx context.Context, userID uint) ([]*models.Notification, error) {
	items, err := s.notifications.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.ActorID)
	}
	summaries, err := attachSummaries(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	for _, n := range items {
		n.Actor = summaries[n.ActorID]
	}
	return items, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int, error) {
	return s.notifications.CountUnread(ctx, userID)
}

// Create records a notification for in.UserID. Users are never notified of
// their own actions; that case returns (nil, nil).
func (s *NotificationService) Create(ctx context.Context, in CreateNotificationInput) (*models.Notification, error) {
	if in.UserID == in.ActorID {
		return nil, nil
	}
	actor, err := s.users.GetByID(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}
	n := &models.Notification{
		UserID:    in.UserID,
		ActorID:   in.ActorID,
		Type:      in.Type,
		Content:   in.Content,
		PostID:    in.PostID,
		CreatedAt: s.now(),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}
	n.Actor = actor.Summary()
	return n, nil
}

// MarkRead flips one of the user's notifications to read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) (bool, error) {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if n.UserID != userID {
		return false, models.NewForbiddenError("Notification belongs to another user")
	}
	return s.notifications.MarkRead(ctx, id)
}

// MarkAllRead flips every unread notification of the user and returns the
// count changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uint) error {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return models.NewForbiddenError("Notification belongs to another user")
	}
	return s.notifications.Delete(ctx, id)
}
