// Package repository provides the record store behind the services: one
// repository per collection, with an in-memory and a GORM implementation.
package repository

import (
	"context"

	"kinship/internal/models"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []uint) ([]*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	ListRequestedBy(ctx context.Context, requesterID uint) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	// UpdatePair persists both users or neither.
	UpdatePair(ctx context.Context, a, b *models.User) error
	Delete(ctx context.Context, id uint) error
}

// MessageRepository defines the interface for the direct-message log
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*models.Message, error)
	ListForParticipant(ctx context.Context, userID uint) ([]*models.Message, error)
	// MarkConversationRead flips unread messages not sent by viewer and
	// returns how many changed.
	MarkConversationRead(ctx context.Context, conversationID string, viewerID uint) (int, error)
	MarkRead(ctx context.Context, id uint) (bool, error)
	Delete(ctx context.Context, id uint) error
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, limit, offset int) ([]*models.Post, error)
	ListByAuthors(ctx context.Context, authorIDs []uint, limit, offset int) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
}

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uint) ([]*models.Comment, error)
	Update(ctx context.Context, comment *models.Comment) error
	Delete(ctx context.Context, id uint) error
}

// NotificationRepository defines the interface for notification data operations
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	ListByUser(ctx context.Context, userID uint) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID uint) (int, error)
	MarkRead(ctx context.Context, id uint) (bool, error)
	MarkAllRead(ctx context.Context, userID uint) (int, error)
	Delete(ctx context.Context, id uint) error
}

// Store bundles the collections of one record store.
type Store struct {
	Users         UserRepository
	Messages      MessageRepository
	Posts         PostRepository
	Comments      CommentRepository
	Notifications NotificationRepository
}

func pageBounds(n, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
